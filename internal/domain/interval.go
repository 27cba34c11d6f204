// internal/domain/interval.go
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDurationMinutes is used whenever a row carries no usable duration.
const DefaultDurationMinutes = 60

var (
	ErrUnparsableTimestamp = errors.New("timestamp could not be parsed")
	ErrInvalidRange        = errors.New("interval end must be after start")
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval, rejecting empty or inverted ranges.
func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() {
		return Interval{}, ErrUnparsableTimestamp
	}
	if !end.After(start) {
		return Interval{}, ErrInvalidRange
	}
	return Interval{Start: start, End: end}, nil
}

// IntervalFromDuration builds an interval from a start and a length in minutes.
// Non-positive durations fall back to DefaultDurationMinutes.
func IntervalFromDuration(start time.Time, minutes int) Interval {
	if minutes <= 0 {
		minutes = DefaultDurationMinutes
	}
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Minutes returns the length of the interval in minutes, rounded up so that any
// non-empty interval is at least one minute long.
func (i Interval) Minutes() int {
	d := i.End.Sub(i.Start)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// WholeMinutes is the interval a Session stored as Start plus Minutes() occupies.
// It always covers i.
func (i Interval) WholeMinutes() Interval {
	return IntervalFromDuration(i.Start, i.Minutes())
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DayWindow widens an interval to whole days: midnight of the start day through the
// last nanosecond of the end day, in each bound's own location.
func DayWindow(i Interval) (from, to time.Time) {
	s := i.Start
	e := i.End
	from = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
	to = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, e.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// ParseTimestamp converts the loosely-typed values found in stored rows into a time.
// Strings without an offset are read as UTC. Integers are unix milliseconds.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, ErrUnparsableTimestamp
		}
		return t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, ErrUnparsableTimestamp
		}
		return *t, nil
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case int32:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int:
		return time.UnixMilli(int64(t)).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, ErrUnparsableTimestamp
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
	default:
		return time.Time{}, ErrUnparsableTimestamp
	}
}

// ParseDurationMinutes reads a stored duration, returning 0 when absent or invalid.
func ParseDurationMinutes(v any) int {
	switch d := v.(type) {
	case int:
		return d
	case int32:
		return int(d)
	case int64:
		return int(d)
	case float64:
		return int(d)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ResolveInterval normalizes a row's start plus either an explicit end or a duration.
// An end that parses and falls after start wins; otherwise the duration (default 60) applies.
// Only an unparsable start is an error.
func ResolveInterval(start, end, durationMinutes any) (Interval, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return Interval{}, err
	}
	if end != nil {
		if e, err := ParseTimestamp(end); err == nil && e.After(s) {
			return Interval{Start: s, End: e}, nil
		}
	}
	return IntervalFromDuration(s, ParseDurationMinutes(durationMinutes)), nil
}
