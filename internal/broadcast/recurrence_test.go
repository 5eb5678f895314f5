package broadcast

import (
	"testing"
	"time"
)

func TestIntervalDue(t *testing.T) {
	t.Parallel()
	task, err := NewTask("Hi", Interval{EveryMinutes: 15})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !IsDue(task, now) {
		t.Fatal("never-fired interval task must be due immediately")
	}

	task.markFired(now)
	tests := []struct {
		name string
		at   time.Time
		due  bool
	}{
		{"just fired", now, false},
		{"14 minutes", now.Add(14 * time.Minute), false},
		{"14m59s truncates down", now.Add(14*time.Minute + 59*time.Second), false},
		{"exactly 15 minutes", now.Add(15 * time.Minute), true},
		{"well past due", now.Add(3 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(task, tt.at); got != tt.due {
				t.Fatalf("IsDue(%v) = %v, want %v", tt.at, got, tt.due)
			}
		})
	}
}

func TestDailyAndWeeklyDue(t *testing.T) {
	t.Parallel()
	daily := Task{ID: "d", Text: "x", Cadence: Daily{At: TimeOfDay{Hour: 10, Minute: 30}}}
	// 2026-03-10 is a Tuesday.
	tue1030 := time.Date(2026, 3, 10, 10, 30, 45, 0, time.UTC)

	if !IsDue(daily, tue1030) {
		t.Fatal("daily task must be due when HH:MM matches (seconds ignored)")
	}
	if IsDue(daily, tue1030.Add(time.Minute)) {
		t.Fatal("daily task must not be due outside its minute")
	}

	weekly := Task{ID: "w", Text: "x", Cadence: Weekly{Day: time.Tuesday, At: TimeOfDay{Hour: 10, Minute: 30}}}
	if !IsDue(weekly, tue1030) {
		t.Fatal("weekly task must be due on matching weekday and minute")
	}
	if IsDue(weekly, tue1030.Add(24*time.Hour)) {
		t.Fatal("weekly task must not be due on the wrong weekday")
	}
}

func TestMonthlyDue(t *testing.T) {
	t.Parallel()
	task := Task{ID: "m", Text: "x", Cadence: Monthly{Day: 31, At: TimeOfDay{Hour: 10, Minute: 0}}}

	jan31 := time.Date(2026, 1, 31, 10, 0, 5, 0, time.UTC)
	if !IsDue(task, jan31) {
		t.Fatal("monthly task must be due on its day and minute")
	}

	// Within the matching minute a second poll tick must be suppressed.
	task.markFired(jan31)
	if task.LastFiredDate != "2026-01-31" {
		t.Fatalf("LastFiredDate = %q, want 2026-01-31", task.LastFiredDate)
	}
	if IsDue(task, jan31.Add(10*time.Second)) {
		t.Fatal("monthly task must not re-fire within the same calendar date")
	}
}

func TestMonthlyDay31NeverFiresInApril(t *testing.T) {
	t.Parallel()
	task := Task{ID: "m", Text: "x", Cadence: Monthly{Day: 31, At: TimeOfDay{Hour: 10, Minute: 0}}}

	// April has 30 days: no instant in the whole month may be due.
	for day := 1; day <= 30; day++ {
		at := time.Date(2026, 4, day, 10, 0, 0, 0, time.UTC)
		if IsDue(task, at) {
			t.Fatalf("day-31 monthly task unexpectedly due on 2026-04-%02d", day)
		}
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		c    Cadence
		spec string
		ok   bool
	}{
		{"daily", Daily{At: TimeOfDay{Hour: 9, Minute: 5}}, "5 9 * * *", true},
		{"weekly", Weekly{Day: time.Friday, At: TimeOfDay{Hour: 18, Minute: 30}}, "30 18 * * 5", true},
		{"interval is polled", Interval{EveryMinutes: 10}, "", false},
		{"monthly is polled", Monthly{Day: 1, At: TimeOfDay{Hour: 0, Minute: 0}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := CronSpec(tt.c)
			if ok != tt.ok || spec != tt.spec {
				t.Fatalf("CronSpec = (%q, %v), want (%q, %v)", spec, ok, tt.spec, tt.ok)
			}
		})
	}
}

func TestMarkFiredMonotonic(t *testing.T) {
	t.Parallel()
	task := Task{ID: "i", Text: "x", Cadence: Interval{EveryMinutes: 5}}
	later := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	task.markFired(later)
	task.markFired(earlier)
	if !task.LastFiredAt.Equal(later) {
		t.Fatalf("LastFiredAt moved backwards: %v", task.LastFiredAt)
	}
}
