// Package jobs owns the peer-local job table and the timers that fire it.
package jobs

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pearcron/internal/logging"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrEmptyMessage    = errors.New("message must not be empty")
	ErrInvalidDelay    = errors.New("delay must be positive")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Job is a scheduled reminder owned by this peer.
type Job struct {
	ID       int64
	Message  string
	Delay    time.Duration
	FireAt   time.Time
	Repeat   bool
	Interval time.Duration
}

// Snapshot is a read-only view of a job for listing.
type Snapshot struct {
	ID        int64
	Message   string
	FireAt    time.Time
	Remaining time.Duration
	Repeat    bool
	Interval  time.Duration
}

// Notifier observes job lifecycle events. Methods run after the table has
// been updated and the scheduler lock released, so they may be slow and may
// read the table. A job's fired and cancelled events are delivered only after
// its scheduled event has returned, so JobScheduled must not cancel its own job.
type Notifier interface {
	JobScheduled(Job)
	JobFired(Job)
	JobCancelled(Job)
}

type entry struct {
	job   Job
	timer cron.EntryID
	// closed once JobScheduled has returned
	ready chan struct{}
}

// Scheduler is the job store. Every job in the table has exactly one cron
// entry, and the two are removed together.
type Scheduler struct {
	mu     sync.Mutex
	nextID int64
	table  map[int64]*entry

	cron     *cron.Cron
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger routes scheduler and cron diagnostics to log.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock overrides the wall clock used for FireAt and Remaining.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New builds a stopped scheduler. A nil notifier is allowed.
func New(notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		table:    make(map[int64]*entry),
		notifier: notifier,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := logging.CronLogger{Log: s.log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s
}

// Start runs the timer loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop releases every timer, clears the table and waits for running fire
// handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, e := range s.table {
		s.cron.Remove(e.timer)
		delete(s.table, id)
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// Schedule arms a new job. Repeating jobs ignore delay: they first fire one
// interval from now.
func (s *Scheduler) Schedule(message string, delay time.Duration, repeat bool, interval time.Duration) (Job, error) {
	if strings.TrimSpace(message) == "" {
		return Job{}, ErrEmptyMessage
	}
	if repeat {
		if interval <= 0 {
			return Job{}, ErrInvalidInterval
		}
		delay = interval
	} else {
		if delay <= 0 {
			return Job{}, ErrInvalidDelay
		}
		interval = 0
	}

	s.mu.Lock()
	s.nextID++
	job := Job{
		ID:       s.nextID,
		Message:  message,
		Delay:    delay,
		FireAt:   s.now().Add(delay),
		Repeat:   repeat,
		Interval: interval,
	}
	var sched cron.Schedule = intervalSchedule{every: interval}
	if !repeat {
		sched = &onceSchedule{after: delay}
	}
	id := job.ID
	ready := make(chan struct{})
	timer := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	s.table[id] = &entry{job: job, timer: timer, ready: ready}
	s.mu.Unlock()

	s.log.Debug().Int64("job", id).Dur("delay", delay).Bool("repeat", repeat).Msg("job scheduled")
	if s.notifier != nil {
		s.notifier.JobScheduled(job)
	}
	close(ready)
	return job, nil
}

// Cancel releases the job's timer and removes it. Unknown ids return
// ErrJobNotFound and notify nobody.
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	e, ok := s.table[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	s.cron.Remove(e.timer)
	delete(s.table, id)
	s.mu.Unlock()

	s.log.Debug().Int64("job", id).Msg("job cancelled")
	s.notify(e.ready, func(n Notifier) { n.JobCancelled(e.job) })
	return nil
}

// List returns a snapshot of every job ordered by id.
func (s *Scheduler) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Snapshot, 0, len(s.table))
	for _, e := range s.table {
		remaining := e.job.FireAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, Snapshot{
			ID:        e.job.ID,
			Message:   e.job.Message,
			FireAt:    e.job.FireAt,
			Remaining: remaining,
			Repeat:    e.job.Repeat,
			Interval:  e.job.Interval,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up a job by id.
func (s *Scheduler) Get(id int64) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.table[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// Len is the number of live jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	e, ok := s.table[id]
	if !ok {
		// cancelled after cron dispatched the run
		s.mu.Unlock()
		return
	}
	fired := e.job
	if e.job.Repeat {
		e.job.FireAt = s.now().Add(e.job.Interval)
	} else {
		s.cron.Remove(e.timer)
		delete(s.table, id)
	}
	ready := e.ready
	s.mu.Unlock()

	s.log.Debug().Int64("job", id).Msg("job fired")
	s.notify(ready, func(n Notifier) { n.JobFired(fired) })
}

// notify waits for the job's scheduled event, then calls fn outside the lock.
func (s *Scheduler) notify(ready <-chan struct{}, fn func(Notifier)) {
	if s.notifier == nil {
		return
	}
	<-ready
	fn(s.notifier)
}
