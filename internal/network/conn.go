package network

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pearcron/internal/crypto"
)

// ErrSend wraps every failed write to a peer.
var ErrSend = errors.New("send to peer failed")

// Conn is a live peer connection as seen by a Handler.
type Conn interface {
	// Send writes one frame. It is safe for concurrent use.
	Send(data []byte) error
	// RemoteID is the short display id of the remote end.
	RemoteID() string
	RemoteAddr() string
	Close() error
}

// Handler receives connection events. Methods for different connections may
// be called concurrently; events for one connection arrive in order.
type Handler interface {
	HandleConnect(c Conn)
	HandleData(c Conn, data []byte)
	HandleClose(c Conn)
	HandleError(c Conn, err error)
}

// RemoteID derives the display id for an endpoint: the first 8 hex digits of
// its SHA-256, upper-cased.
func RemoteID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return strings.ToUpper(hex.EncodeToString(sum[:4]))
}

type peerConn struct {
	raw      net.Conn
	key      string
	id       string
	box      *crypto.Box
	limiter  *rate.Limiter
	outbound bool

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newPeerConn(raw net.Conn, key string, box *crypto.Box, limiter *rate.Limiter, writeTimeout time.Duration, outbound bool) *peerConn {
	return &peerConn{
		raw:          raw,
		key:          key,
		id:           RemoteID(key),
		box:          box,
		limiter:      limiter,
		outbound:     outbound,
		writeTimeout: writeTimeout,
	}
}

func (c *peerConn) Send(data []byte) error {
	frame, err := c.box.Seal(data)
	if err != nil {
		return fmt.Errorf("%w: %s: seal: %v", ErrSend, c.id, err)
	}
	frame = append(frame, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSend, c.id, err)
	}
	return nil
}

func (c *peerConn) RemoteID() string   { return c.id }
func (c *peerConn) RemoteAddr() string { return c.key }

func (c *peerConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.raw.Close() })
	return err
}

// allow reports whether an inbound frame fits the connection's rate budget.
func (c *peerConn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
