package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"broadcastbot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, t.ID)
	return nil
}

func (f *fakeSender) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeSender) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestPollDispatchesDueTasksOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	sender := &fakeSender{}
	s := NewScheduler(SchedulerConfig{}, store, sender, logx.Nop())

	due := Task{ID: "due", Text: "x", Cadence: Interval{EveryMinutes: 15}}
	fresh := Task{ID: "fresh", Text: "x", Cadence: Interval{EveryMinutes: 15}}
	daily := Task{ID: "daily", Text: "x", Cadence: Daily{At: TimeOfDay{Hour: 9, Minute: 0}}}
	for _, task := range []Task{due, fresh, daily} {
		if err := store.Append(ctx, task); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := store.RecordFired(ctx, "fresh", now.Add(-time.Minute)); err != nil {
		t.Fatalf("RecordFired: %v", err)
	}

	s.pollOnce(ctx, now)

	// The daily task matches 09:00 but belongs to the calendar trigger table,
	// not the poll; only the overdue interval task may fire here.
	if got := sender.sentIDs(); len(got) != 1 || got[0] != "due" {
		t.Fatalf("sent = %v, want [due]", got)
	}
}

func TestFailedDispatchLeavesTaskDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	sender := &fakeSender{}
	s := NewScheduler(SchedulerConfig{}, store, sender, logx.Nop())

	task := Task{ID: "t1", Text: "x", Cadence: Interval{EveryMinutes: 15}}
	if err := store.Append(ctx, task); err != nil {
		t.Fatalf("Append: %v", err)
	}

	sender.fail(errors.New("telegram unreachable"))
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.pollOnce(ctx, now)

	got, _ := TaskByID(store.Tasks(), "t1")
	if !got.LastFiredAt.IsZero() {
		t.Fatalf("failed dispatch must not be recorded, LastFiredAt = %v", got.LastFiredAt)
	}
	if !IsDue(got, now) {
		t.Fatal("task must stay due after a failed dispatch")
	}

	// Next cycle with a healthy transport is the retry.
	sender.fail(nil)
	s.pollOnce(ctx, now)
	if got := sender.sentIDs(); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("sent = %v, want [t1]", got)
	}
	got2, _ := TaskByID(store.Tasks(), "t1")
	if got2.LastFiredAt.IsZero() {
		t.Fatal("successful dispatch must be recorded")
	}
	if got2.LastFiredDate != "" {
		t.Fatalf("interval task must not carry a date guard, got %q", got2.LastFiredDate)
	}
}

func TestMonthlyFiresOncePerDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	sender := &fakeSender{}
	s := NewScheduler(SchedulerConfig{}, store, sender, logx.Nop())

	task := Task{ID: "m1", Text: "x", Cadence: Monthly{Day: 1, At: TimeOfDay{Hour: 10, Minute: 0}}}
	if err := store.Append(ctx, task); err != nil {
		t.Fatalf("Append: %v", err)
	}

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.Local)
	s.pollOnce(ctx, now)
	s.pollOnce(ctx, now.Add(10*time.Second))
	s.pollOnce(ctx, now.Add(30*time.Second))

	if got := sender.sentIDs(); len(got) != 1 {
		t.Fatalf("monthly task fired %d times within one minute, want 1 (%v)", len(got), got)
	}
}

func TestStartRegistersPersistedCalendarTriggers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	s := NewScheduler(SchedulerConfig{PollInterval: time.Hour}, store, &fakeSender{}, logx.Nop())

	tasks := []Task{
		{ID: "d1", Text: "x", Cadence: Daily{At: TimeOfDay{Hour: 9, Minute: 0}}},
		{ID: "w1", Text: "x", Cadence: Weekly{Day: time.Monday, At: TimeOfDay{Hour: 8, Minute: 15}}},
		{ID: "i1", Text: "x", Cadence: Interval{EveryMinutes: 5}},
	}
	for _, task := range tasks {
		if err := store.Append(ctx, task); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
	}()

	s.mu.Lock()
	n := len(s.entries)
	_, hasDaily := s.entries["d1"]
	_, hasWeekly := s.entries["w1"]
	_, hasInterval := s.entries["i1"]
	s.mu.Unlock()

	if n != 2 || !hasDaily || !hasWeekly {
		t.Fatalf("calendar triggers = %d (daily=%v weekly=%v), want the two calendar tasks", n, hasDaily, hasWeekly)
	}
	if hasInterval {
		t.Fatal("interval task must not get a calendar trigger")
	}
}

func TestRegisterAfterStart(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	s := NewScheduler(SchedulerConfig{PollInterval: time.Hour}, store, &fakeSender{}, logx.Nop())
	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
	}()

	task := Task{ID: "d2", Text: "x", Cadence: Daily{At: TimeOfDay{Hour: 12, Minute: 0}}}
	if err := store.Append(ctx, task); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Register(task)

	s.mu.Lock()
	_, ok := s.entries["d2"]
	s.mu.Unlock()
	if !ok {
		t.Fatal("freshly created daily task was not registered")
	}
}
