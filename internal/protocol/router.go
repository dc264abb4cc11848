package protocol

import (
	"fmt"

	"pearcron/internal/duration"
	"pearcron/internal/message"
	"pearcron/internal/network"
	"pearcron/internal/ui"
)

// HandleConnect registers the connection and greets it with a ping so the
// remote side can show that we joined.
func (r *Runtime) HandleConnect(c network.Conn) {
	r.peers.Add(c)
	total := r.peers.Len()
	r.sink.ShowSystem(ui.LevelOK, fmt.Sprintf("Peer connected: %s (total: %d)", c.RemoteID(), total))
	r.sink.UpdatePeers(total)

	frame, err := message.Encode(r.peerID, message.PingPayload{})
	if err != nil {
		r.log.Error().Err(err).Msg("encode greeting")
		return
	}
	if err := c.Send(frame); err != nil {
		r.metrics.AddSent(0, 1)
		r.log.Debug().Str("remote", c.RemoteID()).Err(err).Msg("greeting failed")
		return
	}
	r.metrics.AddSent(1, 0)
}

func (r *Runtime) HandleClose(c network.Conn) {
	if !r.peers.Remove(c) {
		return
	}
	total := r.peers.Len()
	r.sink.ShowSystem(ui.LevelWarn, fmt.Sprintf("Peer disconnected: %s (total: %d)", c.RemoteID(), total))
	r.sink.UpdatePeers(total)
}

func (r *Runtime) HandleError(c network.Conn, err error) {
	r.log.Debug().Str("remote", c.RemoteID()).Err(err).Msg("connection error")
	if r.peers.Remove(c) {
		r.sink.UpdatePeers(r.peers.Len())
	}
}

// HandleData decodes one inbound frame and shows it. Remote envelopes are
// notifications only: nothing here touches the job table.
func (r *Runtime) HandleData(c network.Conn, data []byte) {
	r.metrics.IncReceived()
	env, err := message.Decode(data)
	if err != nil {
		r.metrics.IncDropped()
		r.log.Debug().Str("remote", c.RemoteID()).Err(err).Msg("dropped inbound frame")
		return
	}
	r.processIncoming(env)
}

func (r *Runtime) processIncoming(env message.Envelope) {
	now := r.now()
	a := ui.Activity{
		PeerID:    env.PeerID,
		Timestamp: now,
	}
	switch p := env.Payload.(type) {
	case message.SchedulePayload:
		a.Kind = ui.ActivitySchedule
		a.JobID = p.JobID
		a.Message = p.Message
		a.Repeat = p.Repeat
		if remaining := p.FireAt - now.UnixMilli(); remaining > 0 {
			a.Delay = duration.FromMillis(remaining)
		}
		if p.IntervalMs != nil {
			a.Interval = duration.FromMillis(*p.IntervalMs)
		}
	case message.ReminderPayload:
		a.Kind = ui.ActivityReminder
		a.JobID = p.JobID
		a.Message = p.Message
	case message.CancelPayload:
		a.Kind = ui.ActivityCancel
		a.JobID = p.JobID
	case message.PingPayload:
		a.Kind = ui.ActivityPing
		a.Latency = env.Age(now)
	case message.PongPayload:
		a.Kind = ui.ActivityPong
		a.Latency = env.Age(now)
	case message.UnknownPayload:
		r.metrics.IncIgnored()
		r.log.Debug().Str("type", p.Type).Str("from", env.PeerID).Msg("ignoring unknown envelope type")
		return
	default:
		r.metrics.IncIgnored()
		return
	}
	r.sink.ShowActivity(a)
	r.record(a)
}
