package broadcast

import (
	"fmt"
	"strings"
	"time"
)

const (
	timeLayout      = "15:04"
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// IsDue reports whether the task should fire at now. Pure: no side effects,
// deterministic given (task, now).
//
// Daily and weekly tasks are normally fired by calendar triggers (see
// Scheduler.Register), but their due-condition lives here so both trigger
// strategies share one definition.
func IsDue(t Task, now time.Time) bool {
	switch c := t.Cadence.(type) {
	case Interval:
		if t.LastFiredAt.IsZero() {
			return true
		}
		// Whole minutes only; fractional minutes truncate, they never round up.
		elapsed := int(now.Sub(t.LastFiredAt).Minutes())
		return elapsed >= c.EveryMinutes
	case Daily:
		return c.At.Matches(now)
	case Weekly:
		return now.Weekday() == c.Day && c.At.Matches(now)
	case Monthly:
		// The date guard is mandatory: without it the task would fire on
		// every poll tick inside the matching minute.
		return now.Day() == c.Day && c.At.Matches(now) && t.LastFiredDate != now.Format(dateLayout)
	default:
		return false
	}
}

// Polled reports whether the task belongs to the generic poll tick rather
// than the calendar trigger table.
func Polled(t Task) bool {
	switch t.Cadence.(type) {
	case Interval, Monthly:
		return true
	default:
		return false
	}
}

// CronSpec returns the calendar trigger spec for daily and weekly cadences,
// or ok=false for cadences driven by the generic poll.
func CronSpec(c Cadence) (spec string, ok bool) {
	switch x := c.(type) {
	case Daily:
		return fmt.Sprintf("%d %d * * *", x.At.Minute, x.At.Hour), true
	case Weekly:
		return fmt.Sprintf("%d %d * * %d", x.At.Minute, x.At.Hour, int(x.Day)), true
	default:
		return "", false
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, &ValidationError{Field: "weekday", Msg: fmt.Sprintf("unknown weekday %q (use monday..sunday)", s)}
	}
	return d, nil
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}
