package protocol

import (
	"sync"

	"github.com/rs/zerolog"

	"pearcron/internal/network"
)

// PeerRegistry tracks live connections, keyed by handle identity.
type PeerRegistry struct {
	mu    sync.RWMutex
	conns map[network.Conn]struct{}
	log   zerolog.Logger
}

func NewPeerRegistry(log zerolog.Logger) *PeerRegistry {
	return &PeerRegistry{conns: make(map[network.Conn]struct{}), log: log}
}

// Add registers c and reports whether it was new.
func (p *PeerRegistry) Add(c network.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.conns[c]; ok {
		return false
	}
	p.conns[c] = struct{}{}
	return true
}

// Remove drops c and reports whether it was registered.
func (p *PeerRegistry) Remove(c network.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.conns[c]; !ok {
		return false
	}
	delete(p.conns, c)
	return true
}

func (p *PeerRegistry) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

func (p *PeerRegistry) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.conns)
}

// IDs lists the display ids of every live connection.
func (p *PeerRegistry) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.conns))
	for c := range p.conns {
		ids = append(ids, c.RemoteID())
	}
	return ids
}

// Broadcast sends one frame to every registered connection. Failures are
// logged and otherwise ignored: the connection stays registered and is not
// retried. It returns the number of successful sends.
func (p *PeerRegistry) Broadcast(frame []byte) int {
	sent, _ := p.fanout(frame)
	return sent
}

func (p *PeerRegistry) fanout(frame []byte) (sent, failed int) {
	p.mu.RLock()
	targets := make([]network.Conn, 0, len(p.conns))
	for c := range p.conns {
		targets = append(targets, c)
	}
	p.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			p.log.Debug().Str("peer", c.RemoteID()).Err(err).Msg("broadcast send failed")
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}
