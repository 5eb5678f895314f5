package broadcast

import (
	"context"
	"strings"
	"testing"
	"time"

	"broadcastbot/pkg/logx"
)

func newTestSessions(t *testing.T) (*Sessions, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	sched := NewScheduler(SchedulerConfig{}, store, nopSender{}, logx.Nop())
	return NewSessions(store, sched, logx.Nop()), store
}

type nopSender struct{}

func (nopSender) Send(ctx context.Context, t Task) error { return nil }

func TestParseTaskInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		kind    Kind
		input   string
		want    Cadence
		text    string
		wantErr bool
	}{
		{"interval", KindInterval, "Water the plants | 90", Interval{EveryMinutes: 90}, "Water the plants", false},
		{"interval trims spaces", KindInterval, "  Ping  |  5  ", Interval{EveryMinutes: 5}, "Ping", false},
		{"interval zero rejected", KindInterval, "Ping | 0", nil, "", true},
		{"interval not a number", KindInterval, "Ping | soon", nil, "", true},
		{"daily", KindDaily, "Morning digest | 09:00", Daily{At: TimeOfDay{Hour: 9, Minute: 0}}, "Morning digest", false},
		{"daily bad hour", KindDaily, "Digest | 24:00", nil, "", true},
		{"daily bad minute", KindDaily, "Digest | 10:60", nil, "", true},
		{"weekly", KindWeekly, "Weekly recap | friday 18:30", Weekly{Day: time.Friday, At: TimeOfDay{Hour: 18, Minute: 30}}, "Weekly recap", false},
		{"weekly unknown day", KindWeekly, "Recap | someday 18:30", nil, "", true},
		{"weekly missing time", KindWeekly, "Recap | friday", nil, "", true},
		{"monthly", KindMonthly, "Pay the rent | 1 10:00", Monthly{Day: 1, At: TimeOfDay{Hour: 10, Minute: 0}}, "Pay the rent", false},
		{"monthly day 32 rejected", KindMonthly, "Rent | 32 10:00", nil, "", true},
		{"no delimiter", KindInterval, "onlytext", nil, "", true},
		{"empty text", KindDaily, " | 09:00", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := ParseTaskInput(tt.kind, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !IsUserError(err) {
					t.Fatalf("expected user-visible error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTaskInput: %v", err)
			}
			if task.Text != tt.text {
				t.Fatalf("text = %q, want %q", task.Text, tt.text)
			}
			if task.Cadence != tt.want {
				t.Fatalf("cadence = %#v, want %#v", task.Cadence, tt.want)
			}
			if task.ID == "" {
				t.Fatal("task id was not assigned")
			}
		})
	}
}

func TestSessionCreateFlow(t *testing.T) {
	t.Parallel()
	s, store := newTestSessions(t)
	ctx := context.Background()

	p := s.Begin(7, KindWeekly)
	if !strings.Contains(p, "weekday HH:MM") {
		t.Fatalf("unexpected prompt: %q", p)
	}

	reply, handled := s.HandleText(ctx, 7, "Weekly recap | friday 18:30")
	if !handled {
		t.Fatal("active session must consume the message")
	}
	if !strings.Contains(reply, "Saved") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	tasks := store.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].Cadence != (Weekly{Day: time.Friday, At: TimeOfDay{Hour: 18, Minute: 30}}) {
		t.Fatalf("wrong cadence: %#v", tasks[0].Cadence)
	}
}

func TestSessionMalformedInputKeepsMode(t *testing.T) {
	t.Parallel()
	s, store := newTestSessions(t)
	ctx := context.Background()

	s.Begin(7, KindInterval)
	reply, handled := s.HandleText(ctx, 7, "onlytext")
	if !handled {
		t.Fatal("active session must consume the message")
	}
	if !strings.Contains(reply, "Wrong format") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(store.Tasks()) != 0 {
		t.Fatal("malformed input must not create a task")
	}
	if s.Mode(7) != KindInterval {
		t.Fatalf("mode = %q, want %q for retry", s.Mode(7), KindInterval)
	}

	// The retry succeeds against the same session.
	if _, handled := s.HandleText(ctx, 7, "Ping | 15"); !handled {
		t.Fatal("retry was not consumed")
	}
	if len(store.Tasks()) != 1 {
		t.Fatal("retry did not create the task")
	}
}

func TestSessionTextWithoutFlowIsIgnored(t *testing.T) {
	t.Parallel()
	s, store := newTestSessions(t)

	if _, handled := s.HandleText(context.Background(), 7, "hello"); handled {
		t.Fatal("message without an active flow must not be consumed")
	}
	if len(store.Tasks()) != 0 {
		t.Fatal("no task may be created without a flow")
	}
}

func TestSessionAttachmentReplacement(t *testing.T) {
	t.Parallel()
	s, store := newTestSessions(t)
	ctx := context.Background()

	s.Begin(7, KindInterval)
	if _, handled := s.HandleText(ctx, 7, "Ping | 15"); !handled {
		t.Fatal("create was not consumed")
	}

	if _, handled := s.HandleMedia(ctx, 7, PhotoAttachment("p-1")); !handled {
		t.Fatal("photo was not consumed")
	}
	if got := store.Tasks()[0].Attachment; got != PhotoAttachment("p-1") {
		t.Fatalf("attachment = %+v, want photo p-1", got)
	}

	// A video replaces the photo; they are mutually exclusive.
	if _, handled := s.HandleMedia(ctx, 7, VideoAttachment("v-1")); !handled {
		t.Fatal("video was not consumed")
	}
	got := store.Tasks()[0].Attachment
	if got != VideoAttachment("v-1") {
		t.Fatalf("attachment = %+v, want video v-1", got)
	}
}

func TestSessionMediaWithoutPendingTask(t *testing.T) {
	t.Parallel()
	s, _ := newTestSessions(t)

	if _, handled := s.HandleMedia(context.Background(), 7, PhotoAttachment("p-1")); handled {
		t.Fatal("media without a pending task must not be consumed")
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		task Task
		want string
	}{
		{
			"interval",
			Task{Text: "Ping", Cadence: Interval{EveryMinutes: 15}},
			"Ping - every 15 min",
		},
		{
			"daily with photo",
			Task{Text: "Digest", Cadence: Daily{At: TimeOfDay{Hour: 9, Minute: 0}}, Attachment: PhotoAttachment("p")},
			"Digest - daily at 09:00 [photo]",
		},
		{
			"weekly",
			Task{Text: "Recap", Cadence: Weekly{Day: time.Friday, At: TimeOfDay{Hour: 18, Minute: 30}}},
			"Recap - weekly on friday at 18:30",
		},
		{
			"monthly with video",
			Task{Text: "Rent", Cadence: Monthly{Day: 1, At: TimeOfDay{Hour: 10, Minute: 0}}, Attachment: VideoAttachment("v")},
			"Rent - monthly on day 1 at 10:00 [video]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.task); got != tt.want {
				t.Fatalf("Summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderList(t *testing.T) {
	t.Parallel()
	if got := RenderList(nil); got != "No scheduled broadcasts yet." {
		t.Fatalf("empty list rendering: %q", got)
	}
	got := RenderList([]Task{
		{Text: "Ping", Cadence: Interval{EveryMinutes: 15}},
		{Text: "Digest", Cadence: Daily{At: TimeOfDay{Hour: 9, Minute: 0}}},
	})
	want := "Scheduled broadcasts:\n1. Ping - every 15 min\n2. Digest - daily at 09:00"
	if got != want {
		t.Fatalf("RenderList = %q, want %q", got, want)
	}
}
