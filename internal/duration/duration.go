// Package duration converts between human time spans such as "90s", "5m" or
// "1.5h" and time.Duration values.
package duration

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned for input that does not start with a
// positive, finite number, or that amounts to less than a millisecond.
var ErrInvalidDuration = errors.New("invalid duration")

const Day = 24 * time.Hour

// numericPrefix mirrors a lenient float prefix parse: "10s" -> "10",
// "1.5h" -> "1.5", "2e1m" -> "2e1".
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Parse reads a duration like "30s", "5m", "2h" or "1d". A bare number is
// seconds, and so is any suffix other than d, h, m or s.
func Parse(text string) (time.Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(text))
	prefix := numericPrefix.FindString(raw)
	if prefix == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	num, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) || num <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	ns := num * float64(unitOf(raw))
	if ns >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidDuration, text)
	}
	d := time.Duration(math.Round(ns))
	// envelopes carry whole milliseconds
	if d < time.Millisecond {
		return 0, fmt.Errorf("%w: %q is too small", ErrInvalidDuration, text)
	}
	return d, nil
}

func unitOf(raw string) time.Duration {
	switch {
	case strings.HasSuffix(raw, "d"):
		return Day
	case strings.HasSuffix(raw, "h"):
		return time.Hour
	case strings.HasSuffix(raw, "m"):
		return time.Minute
	default:
		return time.Second
	}
}

// Format renders d as "2h 5m 10s", dropping zero components. Sub-second
// remainders are truncated and anything under a second renders as "0s".
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

// Millis converts d to whole epoch-style milliseconds.
func Millis(d time.Duration) int64 {
	return int64(d / time.Millisecond)
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
