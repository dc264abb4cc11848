package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pearcron/internal/duration"
)

// tuiBacklog bounds the updates waiting for the event loop; further ones
// are dropped.
const tuiBacklog = 256

// TUIDisplay renders the activity feed and job table using tview. Sink
// methods never block: updates are queued and handed to the event loop by
// a pump goroutine while Run is active, and discarded after Stop.
type TUIDisplay struct {
	app     *tview.Application
	feed    *tview.TextView
	jobs    *tview.Table
	input   *tview.InputField
	submit  func(string)
	updates chan func()
	done    chan struct{}
	once    sync.Once
}

func NewTUIDisplay(channel string, submit func(string)) *TUIDisplay {
	feed := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	feed.SetBorder(true).SetTitle(fmt.Sprintf(" #%s ", channel))

	jobs := tview.NewTable().SetFixed(1, 0)
	jobs.SetBorder(true).SetTitle(" Jobs ")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldTextColor(tcell.ColorWhite)

	td := &TUIDisplay{
		app:    tview.NewApplication(),
		feed:   feed,
		jobs:   jobs,
		input:   input,
		submit:  submit,
		updates: make(chan func(), tuiBacklog),
		done:    make(chan struct{}),
	}
	td.renderJobs(nil)

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(input.GetText())
		if text != "" {
			go td.submit(text)
		}
		input.SetText("")
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(feed, 0, 5, false).
		AddItem(jobs, 8, 1, false).
		AddItem(input, 3, 1, true)

	td.app.SetRoot(layout, true).EnableMouse(true)
	return td
}

// Run blocks until ctx is done or the application exits.
func (t *TUIDisplay) Run(ctx context.Context) error {
	go t.pump()
	go func() {
		select {
		case <-ctx.Done():
		case <-t.done:
		}
		t.Stop()
	}()
	err := t.app.Run()
	t.Stop()
	return err
}

func (t *TUIDisplay) Stop() {
	t.once.Do(func() {
		close(t.done)
		t.app.Stop()
	})
}

func (t *TUIDisplay) pump() {
	for {
		select {
		case <-t.done:
			return
		case f := <-t.updates:
			t.app.QueueUpdateDraw(f)
		}
	}
}

func (t *TUIDisplay) queue(f func()) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.updates <- f:
	default:
	}
}

func (t *TUIDisplay) ShowSystem(level Level, text string) {
	color := map[Level]string{LevelOK: "green", LevelWarn: "yellow", LevelErr: "red"}[level]
	if color == "" {
		color = "aqua"
	}
	t.appendLine(fmt.Sprintf("[%s]%s %s[-]", color, glyphs[level], tview.Escape(text)))
}

func (t *TUIDisplay) ShowActivity(a Activity) {
	ts := a.Timestamp.Format(timeLayout)
	t.appendLine(fmt.Sprintf("[yellow][%s][-] %s", ts, tview.Escape(a.Text())))
}

func (t *TUIDisplay) ShowNotification(n Notification) {
	t.appendLine(fmt.Sprintf("[fuchsia]🔔 %s[-]", tview.Escape(n.Text)))
}

func (t *TUIDisplay) ShowJobs(rows []JobRow) {
	t.RefreshJobs(rows)
	if len(rows) == 0 {
		t.appendLine("[aqua]No active jobs.[-]")
		return
	}
	t.appendLine(fmt.Sprintf("[aqua]%d active job(s), see the table below.[-]", len(rows)))
}

func (t *TUIDisplay) RefreshJobs(rows []JobRow) {
	t.queue(func() { t.renderJobs(rows) })
}

func (t *TUIDisplay) UpdatePeers(count int) {
	t.queue(func() {
		t.jobs.SetTitle(fmt.Sprintf(" Jobs | %d peer(s) ", count))
	})
}

func (t *TUIDisplay) appendLine(content string) {
	t.queue(func() {
		fmt.Fprintln(t.feed, content)
		t.feed.ScrollToEnd()
	})
}

func (t *TUIDisplay) renderJobs(rows []JobRow) {
	t.jobs.Clear()
	for col, h := range []string{"ID", "REMAINING", "SCHEDULE", "MESSAGE"} {
		t.jobs.SetCell(0, col, tview.NewTableCell(h).SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}
	for i, r := range rows {
		t.jobs.SetCell(i+1, 0, tview.NewTableCell(fmt.Sprintf("#%d", r.ID)))
		t.jobs.SetCell(i+1, 1, tview.NewTableCell(duration.Format(r.Remaining)))
		t.jobs.SetCell(i+1, 2, tview.NewTableCell(r.Schedule()))
		t.jobs.SetCell(i+1, 3, tview.NewTableCell(r.Message).SetExpansion(1))
	}
}
