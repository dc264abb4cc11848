package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call did not return within %v", d)
	}
}

func TestTUISinkNeverBlocksBeforeRun(t *testing.T) {
	td := NewTUIDisplay("lab", func(string) {})
	returnsWithin(t, time.Second, func() {
		for i := 0; i < tuiBacklog*2; i++ {
			td.ShowSystem(LevelInfo, "line")
			td.ShowNotification(Notification{Text: "REMINDER #1: water"})
			td.RefreshJobs([]JobRow{{ID: 1, Message: "water"}})
			td.UpdatePeers(i)
		}
	})
	assert.Len(t, td.updates, tuiBacklog)
}

func TestTUISinkDropsAfterStop(t *testing.T) {
	td := NewTUIDisplay("lab", func(string) {})
	td.Stop()
	td.Stop()
	returnsWithin(t, time.Second, func() {
		td.ShowJobs([]JobRow{{ID: 2, Message: "stretch", Repeat: true, Interval: time.Hour}})
		td.ShowActivity(Activity{Kind: ActivityCancel, JobID: 2, Timestamp: time.Now()})
	})
	assert.Empty(t, td.updates)
}
