package protocol

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pearcron/internal/message"
	"pearcron/internal/ui"
)

type systemLine struct {
	level ui.Level
	text  string
}

type recordingSink struct {
	mu            sync.Mutex
	systems       []systemLine
	activities    []ui.Activity
	notifications []ui.Notification
	jobTables     [][]ui.JobRow
	peerCounts    []int
}

func (s *recordingSink) ShowSystem(level ui.Level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systems = append(s.systems, systemLine{level, text})
}

func (s *recordingSink) ShowActivity(a ui.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
}

func (s *recordingSink) ShowNotification(n ui.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) ShowJobs(rows []ui.JobRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobTables = append(s.jobTables, rows)
}

func (s *recordingSink) UpdatePeers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerCounts = append(s.peerCounts, n)
}

func (s *recordingSink) lastSystem() systemLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.systems) == 0 {
		return systemLine{}
	}
	return s.systems[len(s.systems)-1]
}

func (s *recordingSink) hasSystem(level ui.Level, fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.systems {
		if line.level == level && strings.Contains(line.text, fragment) {
			return true
		}
	}
	return false
}

func (s *recordingSink) activityCopy() []ui.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ui.Activity(nil), s.activities...)
}

func (s *recordingSink) notificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

// fakeConn records every frame sent to it.
type fakeConn struct {
	id   string
	fail bool
	// delay stalls every Send, like a peer with a full socket buffer
	delay time.Duration

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) Send(data []byte) error {
	time.Sleep(c.delay)
	if c.fail {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) RemoteID() string   { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.id }
func (c *fakeConn) Close() error       { return nil }

func (c *fakeConn) envelopes(t *testing.T) []message.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]message.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := message.Decode(f)
		if err != nil {
			t.Fatalf("peer received undecodable frame %q: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) kinds(t *testing.T) []message.Kind {
	t.Helper()
	var kinds []message.Kind
	for _, env := range c.envelopes(t) {
		kinds = append(kinds, env.Kind)
	}
	return kinds
}

const testPeerID = "C0FFEE01"

func newTestRuntime(t *testing.T) (*Runtime, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	rt := NewRuntime(context.Background(), RuntimeOptions{
		Channel: "standup",
		PeerID:  testPeerID,
		Sink:    sink,
		Logger:  zerolog.Nop(),
	})
	rt.Start()
	t.Cleanup(rt.Shutdown)
	return rt, sink
}

func encodeFrom(t *testing.T, peer string, ts int64, p message.Payload) []byte {
	t.Helper()
	data, err := message.EncodeAt(peer, ts, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

var errTest = errors.New("connection reset")
