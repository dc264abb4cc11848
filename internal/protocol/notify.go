package protocol

import (
	"fmt"

	"pearcron/internal/duration"
	"pearcron/internal/jobs"
	"pearcron/internal/message"
	"pearcron/internal/ui"
)

// The methods below run outside the scheduler lock, so a slow peer delays
// only the event being announced.

func (r *Runtime) JobScheduled(j jobs.Job) {
	when := "fires in " + duration.Format(j.Delay)
	if j.Repeat {
		when += " then every " + duration.Format(j.Interval)
	}
	r.sink.ShowSystem(ui.LevelOK, fmt.Sprintf("Job #%d scheduled, %s", j.ID, when))
	r.sink.ShowSystem(ui.LevelOK, fmt.Sprintf("Message: %q", j.Message))

	p := message.SchedulePayload{
		JobID:   j.ID,
		Message: j.Message,
		DelayMs: duration.Millis(j.Delay),
		Repeat:  j.Repeat,
		FireAt:  j.FireAt.UnixMilli(),
	}
	if j.Repeat {
		ms := duration.Millis(j.Interval)
		p.IntervalMs = &ms
	}
	r.Broadcast(p)
	r.record(ui.Activity{
		Kind:      ui.ActivitySchedule,
		PeerID:    r.peerID,
		Local:     true,
		JobID:     j.ID,
		Message:   j.Message,
		Delay:     j.Delay,
		Repeat:    j.Repeat,
		Interval:  j.Interval,
		Timestamp: r.now(),
	})
}

func (r *Runtime) JobFired(j jobs.Job) {
	now := r.now()
	r.sink.ShowNotification(ui.Notification{
		ID:        fmt.Sprintf("%s-%d", r.peerID, j.ID),
		Text:      fmt.Sprintf("REMINDER #%d: %s", j.ID, j.Message),
		Level:     "reminder",
		Timestamp: now,
		From:      r.peerID,
	})
	r.Broadcast(message.ReminderPayload{JobID: j.ID, Message: j.Message})
	r.record(ui.Activity{
		Kind:      ui.ActivityReminder,
		PeerID:    r.peerID,
		Local:     true,
		JobID:     j.ID,
		Message:   j.Message,
		Timestamp: now,
	})
}

func (r *Runtime) JobCancelled(j jobs.Job) {
	r.sink.ShowSystem(ui.LevelOK, fmt.Sprintf("Job #%d cancelled.", j.ID))
	r.Broadcast(message.CancelPayload{JobID: j.ID})
	r.record(ui.Activity{
		Kind:      ui.ActivityCancel,
		PeerID:    r.peerID,
		Local:     true,
		JobID:     j.ID,
		Message:   j.Message,
		Timestamp: r.now(),
	})
}
