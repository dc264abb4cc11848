package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"pearcron/internal/message"
	"pearcron/internal/ui"
)

func TestRemindSchedulesAndBroadcasts(t *testing.T) {
	rt, sink := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.Peers().Add(peer)

	rt.ProcessLine(`  remind 5m "Stand up"  `)

	jobs := rt.Scheduler().List()
	if len(jobs) != 1 || jobs[0].ID != 1 || jobs[0].Message != "Stand up" || jobs[0].Repeat {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if !sink.hasSystem(ui.LevelOK, "Job #1 scheduled, fires in 5m") {
		t.Fatalf("expected confirmation, got %+v", sink.systems)
	}
	envs := peer.envelopes(t)
	if len(envs) != 1 {
		t.Fatalf("expected one envelope, got %d", len(envs))
	}
	p, ok := envs[0].Payload.(message.SchedulePayload)
	if !ok {
		t.Fatalf("expected schedule payload, got %T", envs[0].Payload)
	}
	if p.JobID != 1 || p.DelayMs != 300000 || p.Repeat || p.IntervalMs != nil || p.FireAt <= envs[0].TS {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestRepeatUsesIntervalForFirstFire(t *testing.T) {
	rt, _ := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.Peers().Add(peer)

	rt.ProcessLine(`repeat 1h "Drink water"`)

	job, ok := rt.Scheduler().Get(1)
	if !ok || !job.Repeat || job.Interval != time.Hour || job.Delay != time.Hour {
		t.Fatalf("unexpected job %+v", job)
	}
	p := peer.envelopes(t)[0].Payload.(message.SchedulePayload)
	if !p.Repeat || p.IntervalMs == nil || *p.IntervalMs != 3600000 || p.DelayMs != 3600000 {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestScheduleCommandErrors(t *testing.T) {
	cases := []struct {
		line  string
		level ui.Level
		frag  string
	}{
		{`remind 5m Stand up`, ui.LevelWarn, "Usage: remind"},
		{`remind 5m ""`, ui.LevelWarn, "Usage: remind"},
		{`repeat "water"`, ui.LevelWarn, "Usage: repeat"},
		{`remind abc "x"`, ui.LevelErr, `Invalid time "abc"`},
		{`remind -5m "x"`, ui.LevelErr, "Invalid time"},
		{`repeat 0s "x"`, ui.LevelErr, `Invalid interval "0s"`},
		{`remind 0.0005s "tiny"`, ui.LevelErr, `Invalid time "0.0005s"`},
	}
	for _, tc := range cases {
		rt, sink := newTestRuntime(t)
		rt.ProcessLine(tc.line)
		if !sink.hasSystem(tc.level, tc.frag) {
			t.Fatalf("%q: expected %s %q, got %+v", tc.line, tc.level, tc.frag, sink.systems)
		}
		if rt.Scheduler().Len() != 0 {
			t.Fatalf("%q: no job should be scheduled", tc.line)
		}
	}
}

func TestCancelCommand(t *testing.T) {
	rt, sink := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.ProcessLine(`remind 10m "a"`)
	rt.ProcessLine(`remind 10m "b"`)
	rt.Peers().Add(peer)

	rt.ProcessLine("cancel 2abc")
	if _, ok := rt.Scheduler().Get(2); ok {
		t.Fatalf("expected job #2 cancelled via leading integer")
	}
	if !sink.hasSystem(ui.LevelOK, "Job #2 cancelled.") {
		t.Fatalf("expected cancel confirmation")
	}
	if kinds := peer.kinds(t); len(kinds) != 1 || kinds[0] != message.KindCancel {
		t.Fatalf("expected cancel broadcast, got %v", kinds)
	}

	rt.ProcessLine("cancel 2")
	if !sink.hasSystem(ui.LevelWarn, "No active job with ID #2") {
		t.Fatalf("expected unknown id warning")
	}
	rt.ProcessLine("cancel two")
	if !sink.hasSystem(ui.LevelErr, "Usage: cancel <id>") {
		t.Fatalf("expected usage error")
	}
	if len(peer.kinds(t)) != 1 {
		t.Fatalf("failed cancels must not broadcast")
	}
	if rt.Scheduler().Len() != 1 {
		t.Fatalf("job #1 should remain")
	}
}

func TestReminderFiresLocallyAndBroadcasts(t *testing.T) {
	rt, sink := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.Peers().Add(peer)

	if _, err := rt.Scheduler().Schedule("Test", 20*time.Millisecond, false, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitFor(t, func() bool { return sink.notificationCount() == 1 })
	waitFor(t, func() bool { return len(peer.kinds(t)) == 2 })

	envs := peer.envelopes(t)
	p, ok := envs[1].Payload.(message.ReminderPayload)
	if !ok || p.JobID != 1 || p.Message != "Test" {
		t.Fatalf("unexpected reminder %+v", envs[1].Payload)
	}
	if rt.Scheduler().Len() != 0 {
		t.Fatalf("one-shot job should be gone after firing")
	}
}

func TestListPeersPingHelpUnknown(t *testing.T) {
	rt, sink := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.Peers().Add(peer)
	rt.ProcessLine(`remind 1h "later"`)

	rt.ProcessLine("list")
	if len(sink.jobTables) != 1 || len(sink.jobTables[0]) != 1 || sink.jobTables[0][0].ID != 1 {
		t.Fatalf("unexpected job table %+v", sink.jobTables)
	}
	rt.ProcessLine("peers")
	if !sink.hasSystem(ui.LevelInfo, "Connected peers: 1") {
		t.Fatalf("expected peer count")
	}
	rt.ProcessLine("ping")
	kinds := peer.kinds(t)
	if kinds[len(kinds)-1] != message.KindPing {
		t.Fatalf("expected ping broadcast, got %v", kinds)
	}
	rt.ProcessLine("help")
	if !strings.Contains(sink.lastSystem().text, "remind <time>") {
		t.Fatalf("expected help text")
	}
	rt.ProcessLine("dance")
	if !sink.hasSystem(ui.LevelWarn, `Unknown command: "dance"`) {
		t.Fatalf("expected unknown command warning")
	}
	rt.ProcessLine("stats")
	if !strings.Contains(sink.lastSystem().text, "sent=") {
		t.Fatalf("expected stats line, got %q", sink.lastSystem().text)
	}
	rt.ProcessLine("   ")
}

func TestExitRequestsQuit(t *testing.T) {
	for _, cmd := range []string{"exit", "quit"} {
		rt, _ := newTestRuntime(t)
		rt.ProcessLine(cmd)
		select {
		case <-rt.Done():
		default:
			t.Fatalf("%s should request shutdown", cmd)
		}
	}
}

func TestReadCLIInputEOFRequestsQuit(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.ReadCLIInput(strings.NewReader("remind 1h \"a\"\nlist\n"))
	select {
	case <-rt.Done():
	default:
		t.Fatalf("EOF should request shutdown")
	}
	if rt.Scheduler().Len() != 1 {
		t.Fatalf("expected the scripted job")
	}
}

type memJournal struct {
	entries []ui.Activity
	err     error
}

func (j *memJournal) Append(a ui.Activity) error {
	j.entries = append(j.entries, a)
	return nil
}

func (j *memJournal) Recent(limit int) ([]ui.Activity, error) {
	if j.err != nil {
		return nil, j.err
	}
	var out []ui.Activity
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

func TestHistoryCommand(t *testing.T) {
	rt, sink := newTestRuntime(t)
	rt.ProcessLine("history")
	if !sink.hasSystem(ui.LevelWarn, "journal disabled") {
		t.Fatalf("expected disabled warning")
	}

	journal := &memJournal{}
	rt.journal = journal
	rt.ProcessLine(`remind 1h "a"`)
	rt.ProcessLine(`remind 1h "b"`)
	rt.ProcessLine("cancel 1")
	if len(journal.entries) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(journal.entries))
	}

	rt.ProcessLine("history 2")
	acts := sink.activityCopy()
	if len(acts) != 2 || acts[0].JobID != 2 || acts[1].Kind != ui.ActivityCancel {
		t.Fatalf("unexpected history replay %+v", acts)
	}
	if rt.Scheduler().Len() != 1 {
		t.Fatalf("history must not restore jobs")
	}

	rt.ProcessLine("history x")
	if !sink.hasSystem(ui.LevelErr, "Usage: history") {
		t.Fatalf("expected usage error")
	}
	journal.err = errors.New("closed")
	rt.ProcessLine("history")
	if !sink.hasSystem(ui.LevelErr, "History unavailable") {
		t.Fatalf("expected journal error")
	}
}

func TestSubMillisecondRemindNeverBroadcasts(t *testing.T) {
	rt, _ := newTestRuntime(t)
	peer := newFakeConn("ABCD1234")
	rt.Peers().Add(peer)

	rt.ProcessLine(`remind 0.0005s "tiny"`)
	time.Sleep(20 * time.Millisecond)

	if kinds := peer.kinds(t); len(kinds) != 0 {
		t.Fatalf("rejected input must not reach peers, got %v", kinds)
	}
}

func TestSlowPeerDoesNotStallJobTable(t *testing.T) {
	rt, _ := newTestRuntime(t)
	slow := newFakeConn("51057EE1")
	slow.delay = 500 * time.Millisecond
	rt.Peers().Add(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.ProcessLine(`remind 1h "slow peer"`)
	}()
	waitFor(t, func() bool { return rt.Scheduler().Len() == 1 })

	start := time.Now()
	jobs := rt.Scheduler().List()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("List took %v while a peer write was pending", elapsed)
	}
	if len(jobs) != 1 || jobs[0].Message != "slow peer" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	<-done
	if kinds := slow.kinds(t); len(kinds) != 1 || kinds[0] != message.KindSchedule {
		t.Fatalf("expected one schedule frame, got %v", kinds)
	}
}
