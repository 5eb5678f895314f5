package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"broadcastbot/pkg/logx"
)

// Sessions tracks per-user authoring state: which cadence is being authored
// and which just-created task still awaits its optional attachment. State is
// ephemeral; it is never persisted.
type Sessions struct {
	log   logx.Logger
	store Store
	sched *Scheduler

	mu     sync.Mutex
	active map[int64]*session
}

type session struct {
	mode Kind // authoring mode; "" when not collecting input

	// pendingID is the most recently created task, still open for one
	// optional photo/video.
	pendingID string
}

func NewSessions(store Store, sched *Scheduler, log logx.Logger) *Sessions {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sessions{log: log, store: store, sched: sched, active: map[int64]*session{}}
}

// Begin opens (or redirects) the user's authoring flow and returns the
// prompt for the chosen cadence.
func (s *Sessions) Begin(userID int64, kind Kind) string {
	s.mu.Lock()
	s.active[userID] = &session{mode: kind}
	s.mu.Unlock()
	return prompt(kind)
}

// Mode returns the user's current authoring mode ("" if none).
func (s *Sessions) Mode(userID int64) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[userID]; ok {
		return st.mode
	}
	return ""
}

// HandleText consumes a free-text message for the user's active flow.
// handled=false means no flow is active and the message is not ours.
//
// Malformed input replies with the format error and keeps the mode so the
// user can retry; only a successful creation completes the authoring step.
func (s *Sessions) HandleText(ctx context.Context, userID int64, text string) (reply string, handled bool) {
	s.mu.Lock()
	st, ok := s.active[userID]
	if !ok || st.mode == "" {
		s.mu.Unlock()
		return "", false
	}
	mode := st.mode
	s.mu.Unlock()

	task, err := ParseTaskInput(mode, text)
	if err != nil {
		if IsUserError(err) {
			return err.Error() + "\n\n" + prompt(mode), true
		}
		s.log.Error("authoring parse failed", logx.Int64("user", userID), logx.Err(err))
		return "Something went wrong, try again.", true
	}

	if err := s.store.Append(ctx, task); err != nil {
		s.log.Error("task create failed", logx.Int64("user", userID), logx.Err(err))
		return "Could not save the task, try again.", true
	}
	s.sched.Register(task)

	s.mu.Lock()
	s.active[userID] = &session{pendingID: task.ID}
	s.mu.Unlock()

	s.log.Info("task created",
		logx.Int64("user", userID),
		logx.String("task", task.ID),
		logx.String("type", string(mode)),
	)
	return "Saved: " + Summary(task) + "\nSend a photo or video now to attach it (optional).", true
}

// HandleMedia attaches a photo/video to the user's pending task. A second
// attachment replaces the first: photo and video are mutually exclusive.
func (s *Sessions) HandleMedia(ctx context.Context, userID int64, a Attachment) (reply string, handled bool) {
	if a.IsZero() {
		return "", false
	}
	s.mu.Lock()
	st, ok := s.active[userID]
	if !ok || st.pendingID == "" {
		s.mu.Unlock()
		return "", false
	}
	id := st.pendingID
	s.mu.Unlock()

	if err := s.store.Attach(ctx, id, a); err != nil {
		s.log.Error("attach failed", logx.Int64("user", userID), logx.String("task", id), logx.Err(err))
		return "Could not attach the media, try again.", true
	}
	return fmt.Sprintf("Attached %s to the task.", a.Kind), true
}

// ParseTaskInput parses one authoring line for the given cadence kind.
// Grammar: "text | params", with space-delimited sub-fields for weekly and
// monthly params.
func ParseTaskInput(kind Kind, input string) (Task, error) {
	text, params, found := strings.Cut(input, "|")
	if !found {
		return Task{}, &FormatError{Msg: "Wrong format, expected: " + grammar(kind)}
	}
	text = strings.TrimSpace(text)
	params = strings.TrimSpace(params)

	var c Cadence
	switch kind {
	case KindInterval:
		n, err := parseInt(params)
		if err != nil {
			return Task{}, &ValidationError{Field: "interval_minutes", Msg: fmt.Sprintf("%q is not a number of minutes", params)}
		}
		c = Interval{EveryMinutes: n}
	case KindDaily:
		at, err := ParseTimeOfDay(params)
		if err != nil {
			return Task{}, err
		}
		c = Daily{At: at}
	case KindWeekly:
		fields := strings.Fields(params)
		if len(fields) != 2 {
			return Task{}, &FormatError{Msg: "Wrong format, expected: " + grammar(kind)}
		}
		day, err := ParseWeekday(fields[0])
		if err != nil {
			return Task{}, err
		}
		at, err := ParseTimeOfDay(fields[1])
		if err != nil {
			return Task{}, err
		}
		c = Weekly{Day: day, At: at}
	case KindMonthly:
		fields := strings.Fields(params)
		if len(fields) != 2 {
			return Task{}, &FormatError{Msg: "Wrong format, expected: " + grammar(kind)}
		}
		day, err := parseInt(fields[0])
		if err != nil {
			return Task{}, &ValidationError{Field: "day_of_month", Msg: fmt.Sprintf("%q is not a day number", fields[0])}
		}
		at, err := ParseTimeOfDay(fields[1])
		if err != nil {
			return Task{}, err
		}
		c = Monthly{Day: day, At: at}
	default:
		return Task{}, &FormatError{Msg: fmt.Sprintf("unknown task type %q", kind)}
	}

	return NewTask(text, c)
}

func grammar(kind Kind) string {
	switch kind {
	case KindInterval:
		return "text | minutes"
	case KindDaily:
		return "text | HH:MM"
	case KindWeekly:
		return "text | weekday HH:MM"
	case KindMonthly:
		return "text | day HH:MM"
	default:
		return "text | parameters"
	}
}

func prompt(kind Kind) string {
	switch kind {
	case KindInterval:
		return "Send the task as: text | minutes\nExample: Water the plants | 90"
	case KindDaily:
		return "Send the task as: text | HH:MM\nExample: Morning digest | 09:00"
	case KindWeekly:
		return "Send the task as: text | weekday HH:MM\nExample: Weekly recap | friday 18:30"
	case KindMonthly:
		return "Send the task as: text | day HH:MM\nExample: Pay the rent | 1 10:00"
	default:
		return "Pick a task type first."
	}
}

// Summary renders the one-line human-readable form used by /list.
func Summary(t Task) string {
	var b strings.Builder
	b.WriteString(t.Text)
	switch c := t.Cadence.(type) {
	case Interval:
		fmt.Fprintf(&b, " - every %d min", c.EveryMinutes)
	case Daily:
		fmt.Fprintf(&b, " - daily at %s", c.At)
	case Weekly:
		fmt.Fprintf(&b, " - weekly on %s at %s", weekdayName(c.Day), c.At)
	case Monthly:
		fmt.Fprintf(&b, " - monthly on day %d at %s", c.Day, c.At)
	}
	switch t.Attachment.Kind {
	case AttachmentPhoto:
		b.WriteString(" [photo]")
	case AttachmentVideo:
		b.WriteString(" [video]")
	}
	return b.String()
}

// RenderList renders the whole collection for the /list command.
func RenderList(tasks []Task) string {
	if len(tasks) == 0 {
		return "No scheduled broadcasts yet."
	}
	var b strings.Builder
	b.WriteString("Scheduled broadcasts:\n")
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Summary(t))
	}
	return strings.TrimRight(b.String(), "\n")
}
