package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"pearcron/internal/duration"
)

const (
	ansiReset  = "\x1b[0m"
	ansiTime   = "\x1b[36m"
	ansiPeer   = "\x1b[33m"
	ansiBell   = "\x1b[35m"
	ansiOK     = "\x1b[32m"
	ansiWarn   = "\x1b[33m"
	ansiErr    = "\x1b[31m"
	ansiDim    = "\x1b[2m"
	timeLayout = "15:04:05"
)

var glyphs = map[Level]string{
	LevelInfo: "ℹ",
	LevelOK:   "✔",
	LevelWarn: "⚠",
	LevelErr:  "✖",
}

// CLIDisplay renders events as lines on a terminal.
type CLIDisplay struct {
	color bool
	out   io.Writer
	now   func() time.Time
	mu    sync.Mutex
}

func NewCLIDisplay(color bool) *CLIDisplay {
	return NewCLIDisplayTo(os.Stdout, color)
}

// NewCLIDisplayTo writes to out instead of stdout.
func NewCLIDisplayTo(out io.Writer, color bool) *CLIDisplay {
	return &CLIDisplay{color: color, out: out, now: time.Now}
}

func (c *CLIDisplay) ShowSystem(level Level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	glyph := glyphs[level]
	if glyph == "" {
		glyph = glyphs[LevelInfo]
	}
	if c.color {
		fmt.Fprintf(c.out, "%s%s %s%s\n", levelColor(level), glyph, text, ansiReset)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", glyph, text)
}

func (c *CLIDisplay) ShowActivity(a Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := a.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	text := a.Text()
	tint := ansiPeer
	if a.Kind == ActivityReminder {
		text = "🔔 " + text
		tint = ansiBell
	}
	if c.color {
		fmt.Fprintf(c.out, "%s[%s]%s %s%s%s\n", ansiTime, ts.Format(timeLayout), ansiReset, tint, text, ansiReset)
		return
	}
	fmt.Fprintf(c.out, "[%s] %s\n", ts.Format(timeLayout), text)
}

func (c *CLIDisplay) ShowNotification(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := n.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	line := fmt.Sprintf("🔔 [%s] %s", ts.Format(timeLayout), n.Text)
	if c.color {
		fmt.Fprintf(c.out, "%s%s%s\a\n", ansiBell, line, ansiReset)
		return
	}
	fmt.Fprintln(c.out, line)
}

func (c *CLIDisplay) ShowJobs(rows []JobRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "No active jobs.")
		return
	}
	fmt.Fprintf(c.out, "%d active job(s):\n", len(rows))
	for _, r := range rows {
		line := fmt.Sprintf("  #%-4d %-12s %-14s %q", r.ID, duration.Format(r.Remaining), r.Schedule(), r.Message)
		if c.color {
			line = ansiDim + line + ansiReset
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *CLIDisplay) UpdatePeers(count int) {}

func levelColor(level Level) string {
	switch level {
	case LevelOK:
		return ansiOK
	case LevelWarn:
		return ansiWarn
	case LevelErr:
		return ansiErr
	default:
		return ansiTime
	}
}

// ShouldUseColor determines if ANSI coloring should be enabled for CLI output.
func ShouldUseColor(disable bool) bool {
	if disable {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if runtime.GOOS == "windows" {
		return os.Getenv("WT_SESSION") != "" || os.Getenv("ANSICON") != "" || strings.EqualFold(os.Getenv("ConEmuANSI"), "ON")
	}
	return true
}
