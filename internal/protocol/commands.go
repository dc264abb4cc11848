package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"pearcron/internal/duration"
	"pearcron/internal/jobs"
	"pearcron/internal/message"
	"pearcron/internal/ui"
)

const defaultHistoryLimit = 20

var (
	remindPattern = regexp.MustCompile(`^remind\s+(\S+)\s+"(.+)"$`)
	repeatPattern = regexp.MustCompile(`^repeat\s+(\S+)\s+"(.+)"$`)
	leadingInt    = regexp.MustCompile(`^[+-]?\d+`)
)

const helpText = `Commands:
  remind <time> "<message>"      schedule a one-shot reminder (30s, 5m, 2h, 1d)
  repeat <interval> "<message>"  schedule a repeating reminder
  cancel <id>                    cancel a job by id
  list                           show active jobs on this peer
  peers                          show number of connected peers
  ping                           ping every peer
  stats                          show envelope counters
  history [n]                    show recent journal entries
  help                           show this help
  exit | quit                    shut down`

// ReadCLIInput feeds every line of reader to ProcessLine. EOF requests a
// shutdown.
func (r *Runtime) ReadCLIInput(reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		r.ProcessLine(scanner.Text())
		select {
		case <-r.quit:
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Warn().Err(err).Msg("stdin")
	}
	r.RequestQuit()
}

// ProcessLine executes one command line.
func (r *Runtime) ProcessLine(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	switch {
	case strings.HasPrefix(input, "remind "):
		r.scheduleCommand(input, remindPattern, false)
		return
	case strings.HasPrefix(input, "repeat "):
		r.scheduleCommand(input, repeatPattern, true)
		return
	case strings.HasPrefix(input, "cancel "):
		r.cancelCommand(strings.TrimSpace(strings.TrimPrefix(input, "cancel ")))
		return
	case input == "history" || strings.HasPrefix(input, "history "):
		r.historyCommand(strings.TrimSpace(strings.TrimPrefix(input, "history")))
		return
	}

	switch input {
	case "list":
		r.sink.ShowJobs(r.JobRows())
	case "peers":
		r.sink.ShowSystem(ui.LevelInfo, fmt.Sprintf("Connected peers: %d", r.peers.Len()))
	case "ping":
		r.Broadcast(message.PingPayload{})
		r.sink.ShowSystem(ui.LevelInfo, "Ping sent to all peers.")
	case "stats":
		r.sink.ShowSystem(ui.LevelInfo, r.Stats().String())
	case "help":
		r.sink.ShowSystem(ui.LevelInfo, helpText)
	case "exit", "quit":
		r.sink.ShowSystem(ui.LevelOK, "Shutting down PearCron. Goodbye!")
		r.RequestQuit()
	default:
		r.sink.ShowSystem(ui.LevelWarn, fmt.Sprintf("Unknown command: %q. Type help for usage.", input))
	}
}

func (r *Runtime) scheduleCommand(input string, pattern *regexp.Regexp, repeat bool) {
	m := pattern.FindStringSubmatch(input)
	if m == nil {
		if repeat {
			r.sink.ShowSystem(ui.LevelWarn, `Usage: repeat <interval> "<message>"  e.g. repeat 30m "Check server"`)
		} else {
			r.sink.ShowSystem(ui.LevelWarn, `Usage: remind <time> "<message>"  e.g. remind 10m "Stand up"`)
		}
		return
	}
	d, err := duration.Parse(m[1])
	if err != nil {
		what := "time"
		if repeat {
			what = "interval"
		}
		r.sink.ShowSystem(ui.LevelErr, fmt.Sprintf("Invalid %s %q. Use: 30s, 5m, 2h, 1d", what, m[1]))
		return
	}
	if repeat {
		_, err = r.scheduler.Schedule(m[2], d, true, d)
	} else {
		_, err = r.scheduler.Schedule(m[2], d, false, 0)
	}
	if err != nil {
		r.sink.ShowSystem(ui.LevelErr, fmt.Sprintf("Could not schedule: %v", err))
	}
}

func (r *Runtime) cancelCommand(arg string) {
	digits := leadingInt.FindString(arg)
	if digits == "" {
		r.sink.ShowSystem(ui.LevelErr, "Usage: cancel <id>  e.g. cancel 2")
		return
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		r.sink.ShowSystem(ui.LevelErr, "Usage: cancel <id>  e.g. cancel 2")
		return
	}
	if err := r.scheduler.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			r.sink.ShowSystem(ui.LevelWarn, fmt.Sprintf("No active job with ID #%d", id))
			return
		}
		r.sink.ShowSystem(ui.LevelErr, fmt.Sprintf("Cancel failed: %v", err))
	}
}

func (r *Runtime) historyCommand(arg string) {
	if r.journal == nil {
		r.sink.ShowSystem(ui.LevelWarn, "Activity journal disabled (start with --journal <path>).")
		return
	}
	limit := defaultHistoryLimit
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			r.sink.ShowSystem(ui.LevelErr, "Usage: history [n]")
			return
		}
		limit = n
	}
	entries, err := r.journal.Recent(limit)
	if err != nil {
		r.sink.ShowSystem(ui.LevelErr, fmt.Sprintf("History unavailable: %v", err))
		return
	}
	if len(entries) == 0 {
		r.sink.ShowSystem(ui.LevelInfo, "Journal is empty.")
		return
	}
	for i := len(entries) - 1; i >= 0; i-- {
		r.sink.ShowActivity(entries[i])
	}
}
