// Package broadcast implements recurring broadcast tasks: definition,
// persistence, due-time computation and the trigger loop that dispatches
// them to the chat transport.
package broadcast

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInterval Kind = "interval"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
)

// TimeOfDay is a wall-clock time at minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Matches reports whether now falls inside this minute (seconds ignored).
func (t TimeOfDay) Matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return &ValidationError{Field: "time", Msg: "hour must be 00-23"}
	}
	if t.Minute < 0 || t.Minute > 59 {
		return &ValidationError{Field: "time", Msg: "minute must be 00-59"}
	}
	return nil
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return TimeOfDay{}, &FormatError{Msg: fmt.Sprintf("time %q must look like HH:MM", s)}
	}
	h, err1 := parseInt(hh)
	m, err2 := parseInt(mm)
	if err1 != nil || err2 != nil {
		return TimeOfDay{}, &FormatError{Msg: fmt.Sprintf("time %q must look like HH:MM", s)}
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if err := t.validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// Cadence is the closed set of recurrence kinds. Each implementation carries
// only the fields valid for its kind, so "which fields apply" is not an
// implicit invariant on a flat struct.
type Cadence interface {
	Kind() Kind
	validate() error
}

// Interval fires when at least EveryMinutes whole minutes elapsed since the
// previous actual firing (not grid-aligned).
type Interval struct {
	EveryMinutes int
}

func (Interval) Kind() Kind { return KindInterval }
func (c Interval) validate() error {
	if c.EveryMinutes <= 0 {
		return &ValidationError{Field: "interval_minutes", Msg: "must be a positive number of minutes"}
	}
	return nil
}

// Daily fires once per day at At.
type Daily struct {
	At TimeOfDay
}

func (Daily) Kind() Kind { return KindDaily }
func (c Daily) validate() error {
	return c.At.validate()
}

// Weekly fires once per week on Day at At.
type Weekly struct {
	Day time.Weekday
	At  TimeOfDay
}

func (Weekly) Kind() Kind { return KindWeekly }
func (c Weekly) validate() error {
	if c.Day < time.Sunday || c.Day > time.Saturday {
		return &ValidationError{Field: "weekday", Msg: "unknown weekday"}
	}
	return c.At.validate()
}

// Monthly fires once per month on day-of-month Day at At. Days that do not
// exist in a month (31 in April) simply never match that month.
type Monthly struct {
	Day int
	At  TimeOfDay
}

func (Monthly) Kind() Kind { return KindMonthly }
func (c Monthly) validate() error {
	if c.Day < 1 || c.Day > 31 {
		return &ValidationError{Field: "day_of_month", Msg: "must be 1-31"}
	}
	return c.At.validate()
}

type AttachmentKind string

const (
	AttachmentNone  AttachmentKind = ""
	AttachmentPhoto AttachmentKind = "photo"
	AttachmentVideo AttachmentKind = "video"
)

// Attachment references at most one media item by opaque file id. Because it
// is a single value, photo/video exclusivity holds by construction: setting
// one replaces the other.
type Attachment struct {
	Kind   AttachmentKind
	FileID string
}

func PhotoAttachment(fileID string) Attachment {
	return Attachment{Kind: AttachmentPhoto, FileID: fileID}
}

func VideoAttachment(fileID string) Attachment {
	return Attachment{Kind: AttachmentVideo, FileID: fileID}
}

func (a Attachment) IsZero() bool { return a.Kind == AttachmentNone }

// Task is one scheduled broadcast definition. The destination chat is fixed
// process-wide, not stored per task.
type Task struct {
	ID         string
	Text       string
	Cadence    Cadence
	Attachment Attachment

	// LastFiredAt is the most recent successful dispatch (zero = never).
	// Once set it only moves forward.
	LastFiredAt time.Time

	// LastFiredDate ("2006-01-02") guards monthly tasks against re-firing
	// while the poll tick is still inside the matching minute.
	LastFiredDate string
}

func NewTask(text string, c Cadence) (Task, error) {
	t := Task{ID: uuid.NewString(), Text: strings.TrimSpace(text), Cadence: c}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return &ValidationError{Field: "text", Msg: "message text is empty"}
	}
	if t.Cadence == nil {
		return &ValidationError{Field: "type", Msg: "cadence is missing"}
	}
	return t.Cadence.validate()
}

// SetAttachment replaces the current attachment; a photo clears a previously
// attached video and vice versa.
func (t *Task) SetAttachment(a Attachment) {
	t.Attachment = a
}

// markFired records a successful dispatch at the given instant, keeping
// LastFiredAt monotonically non-decreasing.
func (t *Task) markFired(at time.Time) {
	if at.After(t.LastFiredAt) {
		t.LastFiredAt = at
	}
	if t.Cadence != nil && t.Cadence.Kind() == KindMonthly {
		t.LastFiredDate = at.Format(dateLayout)
	}
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			return 0, fmt.Errorf("number too large: %q", s)
		}
	}
	return n, nil
}
