// Package network carries newline-framed messages between peers over TCP.
package network

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pearcron/internal/crypto"
)

const maxFrameSize = 1 << 20

// Options tune a ConnManager. Zero values pick the defaults.
type Options struct {
	Box          *crypto.Box
	Logger       zerolog.Logger
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// FrameRate limits inbound frames per second per connection; zero
	// disables limiting.
	FrameRate  float64
	FrameBurst int
}

// ConnManager manages inbound and outbound peer connections.
type ConnManager struct {
	addr     string
	listener net.Listener
	handler  Handler
	opts     Options
	log      zerolog.Logger

	connsMu sync.RWMutex
	conns   map[string]*peerConn

	dropped atomic.Int64
	quit    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewConnManager returns a manager for addr that reports events to h.
func NewConnManager(addr string, h Handler, opts Options) *ConnManager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.FrameRate > 0 && opts.FrameBurst <= 0 {
		opts.FrameBurst = int(opts.FrameRate) + 1
	}
	return &ConnManager{
		addr:    addr,
		handler: h,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "network").Logger(),
		conns:   make(map[string]*peerConn),
		quit:    make(chan struct{}),
	}
}

// StartListen starts accepting inbound peers. A bind failure is returned
// to the caller, which treats it as fatal.
func (cm *ConnManager) StartListen() error {
	ln, err := net.Listen("tcp", cm.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cm.addr, err)
	}
	cm.listener = ln
	if strings.HasSuffix(cm.addr, ":0") {
		cm.addr = ln.Addr().String()
	}
	cm.wg.Add(1)
	go cm.acceptLoop()
	return nil
}

func (cm *ConnManager) acceptLoop() {
	defer cm.wg.Done()
	for {
		raw, err := cm.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-cm.quit:
				return
			default:
				cm.log.Warn().Err(err).Msg("accept failed")
			}
			continue
		}
		cm.attach(raw, raw.RemoteAddr().String(), false)
	}
}

// ConnectToPeer dials peerAddr unless a connection to it already exists.
func (cm *ConnManager) ConnectToPeer(peerAddr string) error {
	if peerAddr == cm.addr {
		return nil
	}
	if cm.Connected(peerAddr) {
		return nil
	}
	select {
	case <-cm.quit:
		return net.ErrClosed
	default:
	}
	raw, err := net.DialTimeout("tcp", peerAddr, cm.opts.DialTimeout)
	if err != nil {
		return err
	}
	cm.attach(raw, peerAddr, true)
	return nil
}

func (cm *ConnManager) attach(raw net.Conn, key string, outbound bool) {
	var limiter *rate.Limiter
	if cm.opts.FrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cm.opts.FrameRate), cm.opts.FrameBurst)
	}
	c := newPeerConn(raw, key, cm.opts.Box, limiter, cm.opts.WriteTimeout, outbound)

	cm.connsMu.Lock()
	if old, ok := cm.conns[key]; ok {
		_ = old.Close()
	}
	cm.conns[key] = c
	cm.connsMu.Unlock()

	cm.log.Debug().Str("peer", c.id).Str("addr", key).Bool("outbound", outbound).Msg("connection attached")
	cm.wg.Add(1)
	go cm.handleConn(c)
}

func (cm *ConnManager) handleConn(c *peerConn) {
	defer cm.wg.Done()
	defer cm.removeConn(c)

	cm.handler.HandleConnect(c)

	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	for scanner.Scan() {
		frame := bytes.TrimSpace(scanner.Bytes())
		if len(frame) == 0 {
			continue
		}
		if !c.allow() {
			cm.dropped.Add(1)
			cm.log.Debug().Str("peer", c.id).Msg("frame dropped by rate limit")
			continue
		}
		data, err := c.box.Open(frame)
		if err != nil {
			cm.dropped.Add(1)
			cm.log.Debug().Str("peer", c.id).Err(err).Msg("frame rejected")
			continue
		}
		cm.handler.HandleData(c, append([]byte(nil), data...))
	}

	err := scanner.Err()
	select {
	case <-cm.quit:
		err = nil
	default:
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		cm.handler.HandleClose(c)
		return
	}
	cm.log.Debug().Str("peer", c.id).Err(err).Msg("read failed")
	cm.handler.HandleError(c, err)
}

func (cm *ConnManager) removeConn(c *peerConn) {
	cm.connsMu.Lock()
	if cur, ok := cm.conns[c.key]; ok && cur == c {
		delete(cm.conns, c.key)
	}
	cm.connsMu.Unlock()
	_ = c.Close()
}

// Connected reports whether a connection keyed by addr is open.
func (cm *ConnManager) Connected(addr string) bool {
	cm.connsMu.RLock()
	defer cm.connsMu.RUnlock()
	_, ok := cm.conns[addr]
	return ok
}

// ConnsList returns current peer addresses.
func (cm *ConnManager) ConnsList() []string {
	cm.connsMu.RLock()
	defer cm.connsMu.RUnlock()
	list := make([]string, 0, len(cm.conns))
	for addr := range cm.conns {
		list = append(list, addr)
	}
	return list
}

// Dropped counts inbound frames discarded before reaching the handler.
func (cm *ConnManager) Dropped() int64 {
	return cm.dropped.Load()
}

// Stop closes the listener and every connection, then waits for the reader
// goroutines to exit.
func (cm *ConnManager) Stop() {
	cm.stopped.Do(func() {
		close(cm.quit)
		if cm.listener != nil {
			_ = cm.listener.Close()
		}
		cm.connsMu.Lock()
		for addr, c := range cm.conns {
			_ = c.Close()
			delete(cm.conns, addr)
		}
		cm.connsMu.Unlock()
		cm.wg.Wait()
	})
}

// Addr is the listening address, resolved after StartListen.
func (cm *ConnManager) Addr() string {
	return cm.addr
}

// EncryptionEnabled reports whether frames are sealed.
func (cm *ConnManager) EncryptionEnabled() bool {
	return cm.opts.Box.Enabled()
}

// DialAddr formats host:port.
func DialAddr(host string, port int) string {
	return net.JoinHostPort(host, fmt.Sprint(port))
}
