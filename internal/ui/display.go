package ui

import (
	"fmt"
	"time"

	"pearcron/internal/duration"
)

// Level grades a system line.
type Level string

const (
	LevelInfo Level = "info"
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelErr  Level = "err"
)

// Activity kinds mirror the envelope types.
const (
	ActivitySchedule = "schedule"
	ActivityReminder = "reminder"
	ActivityCancel   = "cancel"
	ActivityPing     = "ping"
	ActivityPong     = "pong"
)

// Activity is a scheduling event observed on the channel, local or remote.
type Activity struct {
	Kind      string        `json:"kind"`
	PeerID    string        `json:"peerId"`
	Local     bool          `json:"local"`
	JobID     int64         `json:"jobId,omitempty"`
	Message   string        `json:"message,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Repeat    bool          `json:"repeat,omitempty"`
	Interval  time.Duration `json:"interval,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Text renders the activity as a single display line without styling.
func (a Activity) Text() string {
	who := fmt.Sprintf("[Peer %s]", a.PeerID)
	if a.Local {
		who = "[You]"
	}
	switch a.Kind {
	case ActivitySchedule:
		when := "fires in " + duration.Format(a.Delay)
		if a.Repeat {
			when += ", every " + duration.Format(a.Interval)
		}
		return fmt.Sprintf("%s scheduled Job #%d (%s): %q", who, a.JobID, when, a.Message)
	case ActivityReminder:
		return fmt.Sprintf("%s REMINDER fired, Job #%d: %s", who, a.JobID, a.Message)
	case ActivityCancel:
		return fmt.Sprintf("%s cancelled Job #%d", who, a.JobID)
	case ActivityPing:
		return fmt.Sprintf("%s joined the channel (ping latency ~%dms)", who, duration.Millis(a.Latency))
	case ActivityPong:
		return fmt.Sprintf("%s acknowledged your ping (~%dms)", who, duration.Millis(a.Latency))
	default:
		return fmt.Sprintf("%s %s", who, a.Kind)
	}
}

// Notification is an alert that should stand out, such as a fired reminder.
type Notification struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
}

// JobRow is one line of the job listing.
type JobRow struct {
	ID        int64         `json:"id"`
	Message   string        `json:"message"`
	Remaining time.Duration `json:"remaining"`
	Repeat    bool          `json:"repeat"`
	Interval  time.Duration `json:"interval,omitempty"`
}

// Schedule renders "every 5m" or "once".
func (r JobRow) Schedule() string {
	if r.Repeat {
		return "every " + duration.Format(r.Interval)
	}
	return "once"
}

// Sink is the unified interface every display surface must satisfy.
type Sink interface {
	ShowSystem(Level, string)
	ShowActivity(Activity)
	ShowNotification(Notification)
	ShowJobs([]JobRow)
	UpdatePeers(count int)
}

// JobBoard is implemented by sinks that keep a live job table on screen.
type JobBoard interface {
	RefreshJobs([]JobRow)
}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans display events out to each registered sink.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) ShowSystem(level Level, text string) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowSystem(level, text)
		}
	}
}

func (m *multiSink) ShowActivity(a Activity) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowActivity(a)
		}
	}
}

func (m *multiSink) ShowNotification(n Notification) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowNotification(n)
		}
	}
}

func (m *multiSink) ShowJobs(rows []JobRow) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowJobs(rows)
		}
	}
}

func (m *multiSink) UpdatePeers(count int) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.UpdatePeers(count)
		}
	}
}

func (m *multiSink) RefreshJobs(rows []JobRow) {
	for _, sink := range m.sinks {
		if board, ok := sink.(JobBoard); ok {
			board.RefreshJobs(rows)
		}
	}
}
