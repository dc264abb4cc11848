// Package message defines the envelope exchanged between peers and its JSON
// wire codec.
package message

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version is stamped on every outbound envelope. Envelopes without a version
// field are accepted as version 0.
const Version = 1

// Kind names an envelope type on the wire.
type Kind string

const (
	KindSchedule Kind = "schedule"
	KindReminder Kind = "reminder"
	KindCancel   Kind = "cancel"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
)

// Envelope is a decoded notification from a peer.
type Envelope struct {
	Version int
	Kind    Kind
	PeerID  string
	TS      int64
	Payload Payload
}

// SentAt converts the sender timestamp to a time.Time.
func (e Envelope) SentAt() time.Time {
	return time.UnixMilli(e.TS)
}

// Age is the receiver-side latency estimate: now minus the sender timestamp.
// Clock skew between peers can make it negative.
func (e Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.SentAt())
}

// Payload is the closed set of envelope bodies. Handle it with a type switch
// over the types below.
type Payload interface {
	Kind() Kind
	validate() error
}

// SchedulePayload announces a job scheduled on the sending peer.
type SchedulePayload struct {
	JobID      int64  `json:"jobId"`
	Message    string `json:"message"`
	DelayMs    int64  `json:"delayMs"`
	Repeat     bool   `json:"repeat"`
	IntervalMs *int64 `json:"intervalMs"`
	FireAt     int64  `json:"fireAt"`
}

// ReminderPayload announces that a job fired on the sending peer.
type ReminderPayload struct {
	JobID   int64  `json:"jobId"`
	Message string `json:"message"`
}

// CancelPayload announces that the sending peer cancelled a job.
type CancelPayload struct {
	JobID int64 `json:"jobId"`
}

type PingPayload struct{}

type PongPayload struct{}

// UnknownPayload carries an envelope whose type this peer does not know.
// It is decoded successfully so callers can ignore it explicitly.
type UnknownPayload struct {
	Type string
	Raw  json.RawMessage
}

func (SchedulePayload) Kind() Kind  { return KindSchedule }
func (ReminderPayload) Kind() Kind  { return KindReminder }
func (CancelPayload) Kind() Kind    { return KindCancel }
func (PingPayload) Kind() Kind      { return KindPing }
func (PongPayload) Kind() Kind      { return KindPong }
func (u UnknownPayload) Kind() Kind { return Kind(u.Type) }

func (p SchedulePayload) validate() error {
	if p.JobID <= 0 {
		return fmt.Errorf("jobId must be positive")
	}
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("message required")
	}
	if p.DelayMs <= 0 {
		return fmt.Errorf("delayMs must be positive")
	}
	if p.FireAt <= 0 {
		return fmt.Errorf("fireAt required")
	}
	if p.Repeat && (p.IntervalMs == nil || *p.IntervalMs <= 0) {
		return fmt.Errorf("repeating schedule requires positive intervalMs")
	}
	if !p.Repeat && p.IntervalMs != nil {
		return fmt.Errorf("intervalMs set on one-shot schedule")
	}
	return nil
}

func (p ReminderPayload) validate() error {
	if p.JobID <= 0 {
		return fmt.Errorf("jobId must be positive")
	}
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("message required")
	}
	return nil
}

func (p CancelPayload) validate() error {
	if p.JobID <= 0 {
		return fmt.Errorf("jobId must be positive")
	}
	return nil
}

func (PingPayload) validate() error    { return nil }
func (PongPayload) validate() error    { return nil }
func (UnknownPayload) validate() error { return nil }

// NewPeerID returns a random 8 character upper-case hex identifier.
func NewPeerID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(fmt.Sprintf("%08x", uint32(time.Now().UnixNano())))
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

// ValidPeerID reports whether s is exactly 8 hex characters.
func ValidPeerID(s string) bool {
	if len(s) != 8 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
