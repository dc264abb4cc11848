package protocol

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const dialQueueSize = 128

var (
	dialBackoff     = 5 * time.Second
	dialMaxBackoff  = time.Minute
	dialJitterRange = 2 * time.Second
	randSrc         = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMu          sync.Mutex
)

type peerConnector interface {
	ConnectToPeer(string) error
}

// DialScheduler keeps desired peers connected, redialling with exponential
// backoff and jitter. A successful dial is re-checked after the base backoff
// so dropped connections come back.
type DialScheduler struct {
	cm       peerConnector
	selfAddr string
	log      zerolog.Logger

	mu       sync.RWMutex
	desired  map[string]time.Time
	failures map[string]int

	queue     chan string
	quit      chan struct{}
	closeOnce sync.Once
}

func NewDialScheduler(cm peerConnector, self string, log zerolog.Logger) *DialScheduler {
	return &DialScheduler{
		cm:       cm,
		selfAddr: self,
		log:      log.With().Str("component", "dialer").Logger(),
		desired:  make(map[string]time.Time),
		failures: make(map[string]int),
		queue:    make(chan string, dialQueueSize),
		quit:     make(chan struct{}),
	}
}

// Add marks addr as desired and queues a dial. Duplicates and our own
// address are ignored.
func (d *DialScheduler) Add(addr string) {
	if addr == "" || addr == d.selfAddr {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.desired[addr]; exists {
		return
	}
	d.desired[addr] = time.Now()
	d.enqueue(addr)
}

// Remove stops redialling addr.
func (d *DialScheduler) Remove(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.desired, addr)
	delete(d.failures, addr)
}

func (d *DialScheduler) Desired() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := make([]string, 0, len(d.desired))
	for addr := range d.desired {
		list = append(list, addr)
	}
	return list
}

func (d *DialScheduler) enqueue(addr string) {
	select {
	case d.queue <- addr:
	default:
		d.log.Warn().Str("addr", addr).Msg("dial queue full, dropping")
	}
}

func (d *DialScheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		case addr := <-d.queue:
			d.tryDial(ctx, addr)
		}
	}
}

func (d *DialScheduler) tryDial(ctx context.Context, addr string) {
	d.mu.RLock()
	_, wanted := d.desired[addr]
	d.mu.RUnlock()
	if !wanted {
		return
	}

	if err := d.cm.ConnectToPeer(addr); err != nil {
		d.mu.Lock()
		d.failures[addr]++
		n := d.failures[addr]
		d.mu.Unlock()
		d.log.Debug().Str("addr", addr).Int("attempt", n).Err(err).Msg("dial failed")
		d.scheduleRetry(ctx, addr, backoffFor(n))
		return
	}

	d.mu.Lock()
	_, stillDesired := d.desired[addr]
	if stillDesired {
		d.desired[addr] = time.Now()
		delete(d.failures, addr)
	}
	d.mu.Unlock()
	if stillDesired {
		d.scheduleRetry(ctx, addr, dialBackoff)
	}
}

// backoffFor doubles the base backoff per consecutive failure, capped.
func backoffFor(failures int) time.Duration {
	delay := dialBackoff
	for i := 1; i < failures && delay < dialMaxBackoff; i++ {
		delay *= 2
	}
	if delay > dialMaxBackoff {
		delay = dialMaxBackoff
	}
	return delay
}

func (d *DialScheduler) scheduleRetry(ctx context.Context, addr string, base time.Duration) {
	go func() {
		var jitter time.Duration
		if dialJitterRange > 0 {
			randMu.Lock()
			jitter = time.Duration(randSrc.Int63n(int64(dialJitterRange)))
			randMu.Unlock()
		}
		timer := time.NewTimer(base + jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		case <-timer.C:
		}
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		default:
			d.enqueue(addr)
		}
	}()
}

func (d *DialScheduler) Close() {
	d.closeOnce.Do(func() { close(d.quit) })
}
