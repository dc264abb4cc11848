package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivityText(t *testing.T) {
	cases := []struct {
		a    Activity
		want string
	}{
		{Activity{Kind: ActivitySchedule, PeerID: "AB12CD34", JobID: 3, Message: "stand up", Delay: 90 * time.Second},
			`[Peer AB12CD34] scheduled Job #3 (fires in 1m 30s): "stand up"`},
		{Activity{Kind: ActivitySchedule, Local: true, JobID: 1, Message: "water", Delay: time.Hour, Repeat: true, Interval: time.Hour},
			`[You] scheduled Job #1 (fires in 1h, every 1h): "water"`},
		{Activity{Kind: ActivityReminder, PeerID: "AB12CD34", JobID: 2, Message: "Test"},
			`[Peer AB12CD34] REMINDER fired, Job #2: Test`},
		{Activity{Kind: ActivityCancel, PeerID: "AB12CD34", JobID: 9},
			`[Peer AB12CD34] cancelled Job #9`},
		{Activity{Kind: ActivityPing, PeerID: "AB12CD34", Latency: 42 * time.Millisecond},
			`[Peer AB12CD34] joined the channel (ping latency ~42ms)`},
		{Activity{Kind: ActivityPong, PeerID: "AB12CD34", Latency: 7 * time.Millisecond},
			`[Peer AB12CD34] acknowledged your ping (~7ms)`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.a.Text())
	}
}

func TestCLIDisplayPlain(t *testing.T) {
	var buf bytes.Buffer
	cli := NewCLIDisplayTo(&buf, false)
	cli.ShowSystem(LevelWarn, "Unknown command")
	cli.ShowActivity(Activity{Kind: ActivityCancel, PeerID: "AB12CD34", JobID: 1, Timestamp: time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)})
	cli.ShowNotification(Notification{Text: "Job #1: Test", Timestamp: time.Date(2024, 1, 1, 9, 31, 0, 0, time.Local)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"⚠ Unknown command",
		"[09:30:00] [Peer AB12CD34] cancelled Job #1",
		"🔔 [09:31:00] Job #1: Test",
	}, lines)
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestCLIDisplayJobs(t *testing.T) {
	var buf bytes.Buffer
	cli := NewCLIDisplayTo(&buf, false)
	cli.ShowJobs(nil)
	assert.Equal(t, "No active jobs.\n", buf.String())

	buf.Reset()
	cli.ShowJobs([]JobRow{
		{ID: 1, Message: "tea", Remaining: 4 * time.Minute, Repeat: false},
		{ID: 2, Message: "stretch", Remaining: 30 * time.Second, Repeat: true, Interval: time.Hour},
	})
	out := buf.String()
	assert.Contains(t, out, "2 active job(s)")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "4m")
	assert.Contains(t, out, "once")
	assert.Contains(t, out, "every 1h")
	assert.Contains(t, out, `"stretch"`)
}

func TestCLIDisplayColor(t *testing.T) {
	var buf bytes.Buffer
	cli := NewCLIDisplayTo(&buf, true)
	cli.ShowSystem(LevelErr, "Invalid duration")
	assert.True(t, strings.HasPrefix(buf.String(), ansiErr))
	assert.Contains(t, buf.String(), "✖ Invalid duration")
}

type countingSink struct{ systems, activities, notes, jobs, peers int }

func (c *countingSink) ShowSystem(Level, string)      { c.systems++ }
func (c *countingSink) ShowActivity(Activity)         { c.activities++ }
func (c *countingSink) ShowNotification(Notification) { c.notes++ }
func (c *countingSink) ShowJobs([]JobRow)             { c.jobs++ }
func (c *countingSink) UpdatePeers(int)               { c.peers++ }

func TestMultiSinkFansOutAndSkipsNil(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMultiSink(a, nil, b)
	m.ShowSystem(LevelInfo, "x")
	m.ShowActivity(Activity{})
	m.ShowNotification(Notification{})
	m.ShowJobs(nil)
	m.UpdatePeers(2)
	for _, s := range []*countingSink{a, b} {
		assert.Equal(t, countingSink{1, 1, 1, 1, 1}, *s)
	}
}
