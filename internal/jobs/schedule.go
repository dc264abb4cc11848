package jobs

import (
	"sync/atomic"
	"time"
)

// onceSchedule fires a single time, after delay from when cron first asks.
// cron asks for Next when the entry is added and again after every run; the
// second answer is the zero time, which cron treats as "never".
type onceSchedule struct {
	after time.Duration
	used  atomic.Bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.used.Swap(true) {
		return time.Time{}
	}
	return t.Add(s.after)
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}
