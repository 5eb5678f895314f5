package broadcast

import (
	"fmt"
	"time"
)

// record is the stable on-disk shape of a task. Field names are part of the
// persistence format; do not rename them.
type record struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type Kind   `json:"type"`

	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	Time            string `json:"time,omitempty"`
	Weekday         string `json:"weekday,omitempty"`
	DayOfMonth      int    `json:"day_of_month,omitempty"`

	PhotoFileID *string `json:"photo_file_id"`
	VideoFileID *string `json:"video_file_id"`

	// LastSent is "2006-01-02 15:04:05"; LastSentDate is "2006-01-02".
	LastSent     *string `json:"last_sent"`
	LastSentDate *string `json:"last_sent_date,omitempty"`
}

func encodeTask(t Task) record {
	r := record{ID: t.ID, Text: t.Text}
	switch c := t.Cadence.(type) {
	case Interval:
		r.Type = KindInterval
		r.IntervalMinutes = c.EveryMinutes
	case Daily:
		r.Type = KindDaily
		r.Time = c.At.String()
	case Weekly:
		r.Type = KindWeekly
		r.Weekday = weekdayName(c.Day)
		r.Time = c.At.String()
	case Monthly:
		r.Type = KindMonthly
		r.DayOfMonth = c.Day
		r.Time = c.At.String()
	}
	switch t.Attachment.Kind {
	case AttachmentPhoto:
		id := t.Attachment.FileID
		r.PhotoFileID = &id
	case AttachmentVideo:
		id := t.Attachment.FileID
		r.VideoFileID = &id
	}
	if !t.LastFiredAt.IsZero() {
		s := t.LastFiredAt.Format(timestampLayout)
		r.LastSent = &s
	}
	if t.LastFiredDate != "" {
		d := t.LastFiredDate
		r.LastSentDate = &d
	}
	return r
}

func decodeTask(r record) (Task, error) {
	t := Task{ID: r.ID, Text: r.Text}

	switch r.Type {
	case KindInterval:
		t.Cadence = Interval{EveryMinutes: r.IntervalMinutes}
	case KindDaily:
		at, err := ParseTimeOfDay(r.Time)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
		t.Cadence = Daily{At: at}
	case KindWeekly:
		at, err := ParseTimeOfDay(r.Time)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
		day, err := ParseWeekday(r.Weekday)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
		t.Cadence = Weekly{Day: day, At: at}
	case KindMonthly:
		at, err := ParseTimeOfDay(r.Time)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
		t.Cadence = Monthly{Day: r.DayOfMonth, At: at}
	default:
		return Task{}, fmt.Errorf("task %s: unknown type %q", r.ID, r.Type)
	}

	// photo/video are mutually exclusive in valid files; if both somehow
	// appear, the video wins, matching SetAttachment's last-write semantics.
	if r.PhotoFileID != nil && *r.PhotoFileID != "" {
		t.Attachment = PhotoAttachment(*r.PhotoFileID)
	}
	if r.VideoFileID != nil && *r.VideoFileID != "" {
		t.Attachment = VideoAttachment(*r.VideoFileID)
	}

	if r.LastSent != nil && *r.LastSent != "" {
		at, err := time.ParseInLocation(timestampLayout, *r.LastSent, time.Local)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: bad last_sent %q: %w", r.ID, *r.LastSent, err)
		}
		t.LastFiredAt = at
	}
	if r.LastSentDate != nil {
		t.LastFiredDate = *r.LastSentDate
	}

	if err := t.Validate(); err != nil {
		return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
	}
	return t, nil
}
