package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pearcron/internal/jobs"
	"pearcron/internal/message"
	"pearcron/internal/ui"
)

// Journal records activity lines. It is write-mostly: nothing read back
// from it ever reaches the scheduler.
type Journal interface {
	Append(ui.Activity) error
	Recent(limit int) ([]ui.Activity, error)
}

// DropCounter reports frames discarded below the envelope layer.
type DropCounter interface {
	Dropped() int64
}

// Runtime ties the local scheduler to the peer set: local job events are
// shown and broadcast, inbound envelopes are shown and never applied.
type Runtime struct {
	ctx       context.Context
	channel   string
	topic     string
	peerID    string
	sink      ui.Sink
	scheduler *jobs.Scheduler
	peers     *PeerRegistry
	metrics   *Metrics
	journal   Journal
	transport DropCounter
	log       zerolog.Logger
	now       func() time.Time

	quitOnce sync.Once
	quit     chan struct{}
}

// RuntimeOptions describes the dependencies needed to construct Runtime.
type RuntimeOptions struct {
	Channel string
	// PeerID defaults to a fresh random id.
	PeerID    string
	Sink      ui.Sink
	Metrics   *Metrics
	Journal   Journal
	Transport DropCounter
	Logger    zerolog.Logger
	Clock     func() time.Time
}

func NewRuntime(ctx context.Context, opts RuntimeOptions) *Runtime {
	if opts.Channel == "" {
		opts.Channel = "default"
	}
	if opts.PeerID == "" {
		opts.PeerID = message.NewPeerID()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sink == nil {
		opts.Sink = ui.NewMultiSink()
	}
	log := opts.Logger.With().Str("peer", opts.PeerID).Logger()
	rt := &Runtime{
		ctx:       ctx,
		channel:   opts.Channel,
		topic:     ChannelTopic(opts.Channel),
		peerID:    opts.PeerID,
		sink:      opts.Sink,
		peers:     NewPeerRegistry(log),
		metrics:   opts.Metrics,
		journal:   opts.Journal,
		transport: opts.Transport,
		log:       log,
		now:       opts.Clock,
		quit:      make(chan struct{}),
	}
	rt.scheduler = jobs.New(rt, jobs.WithLogger(log), jobs.WithClock(opts.Clock))
	return rt
}

func (r *Runtime) Context() context.Context   { return r.ctx }
func (r *Runtime) Channel() string            { return r.channel }
func (r *Runtime) Topic() string              { return r.topic }
func (r *Runtime) PeerID() string             { return r.peerID }
func (r *Runtime) Sink() ui.Sink              { return r.sink }
func (r *Runtime) SetSink(s ui.Sink)          { r.sink = s }
func (r *Runtime) Scheduler() *jobs.Scheduler { return r.scheduler }
func (r *Runtime) Peers() *PeerRegistry       { return r.peers }
func (r *Runtime) Metrics() *Metrics          { return r.metrics }
func (r *Runtime) SetTransport(t DropCounter) { r.transport = t }

// Start arms the scheduler.
func (r *Runtime) Start() {
	r.scheduler.Start()
}

// Shutdown stops every timer and forgets every peer. It does not close
// connections; the transport owns those.
func (r *Runtime) Shutdown() {
	r.scheduler.Stop()
	r.peers.Clear()
	r.RequestQuit()
}

// RequestQuit asks the application to shut down.
func (r *Runtime) RequestQuit() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Done is closed once a shutdown has been requested.
func (r *Runtime) Done() <-chan struct{} { return r.quit }

// Broadcast encodes p once and sends it to every live peer. It returns the
// number of peers reached.
func (r *Runtime) Broadcast(p message.Payload) int {
	frame, err := message.Encode(r.peerID, p)
	if err != nil {
		r.log.Error().Err(err).Str("kind", string(p.Kind())).Msg("encode outbound envelope")
		return 0
	}
	sent, failed := r.peers.fanout(frame)
	r.metrics.AddSent(sent, failed)
	return sent
}

// JobRows renders the scheduler table for display surfaces.
func (r *Runtime) JobRows() []ui.JobRow {
	snaps := r.scheduler.List()
	rows := make([]ui.JobRow, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, ui.JobRow{
			ID:        s.ID,
			Message:   s.Message,
			Remaining: s.Remaining,
			Repeat:    s.Repeat,
			Interval:  s.Interval,
		})
	}
	return rows
}

// Stats snapshots the counters, including frames the transport dropped.
func (r *Runtime) Stats() MetricsSnapshot {
	snap := r.metrics.Snapshot()
	if r.transport != nil {
		snap.TransportDropped = r.transport.Dropped()
	}
	return snap
}

func (r *Runtime) record(a ui.Activity) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(a); err != nil {
		r.log.Warn().Err(err).Msg("journal append")
	}
}

// StatusLoop refreshes peer counts and live job tables until ctx is done.
func (r *Runtime) StatusLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.quit:
			return
		case <-ticker.C:
			r.sink.UpdatePeers(r.peers.Len())
			if board, ok := r.sink.(ui.JobBoard); ok {
				board.RefreshJobs(r.JobRows())
			}
		}
	}
}
