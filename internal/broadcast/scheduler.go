package broadcast

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"broadcastbot/internal/runtime/supervisor"
	"broadcastbot/pkg/logx"
)

// SchedulerConfig controls the trigger loop.
type SchedulerConfig struct {
	// PollInterval is the generic tick for interval and monthly tasks
	// (default 10s).
	PollInterval time.Duration

	// Timezone is an IANA name, e.g. "Europe/Moscow"; empty means local.
	Timezone string
}

// Sender is what the scheduler needs from the dispatcher.
type Sender interface {
	Send(ctx context.Context, t Task) error
}

// Scheduler is the long-lived trigger loop. Two strategies coexist:
//
//   - calendar triggers: daily and weekly tasks are registered into a cron
//     table keyed by time-of-day, at creation time and again at Start() for
//     every persisted task, so restarts cannot drop them;
//   - generic poll: every PollInterval tick, IsDue is evaluated for interval
//     and monthly tasks.
//
// The loop has exactly one state, running; it ends only with the process.
// A failed dispatch is logged and leaves the task's firing state untouched.
type Scheduler struct {
	log   logx.Logger
	store Store
	disp  Sender

	mu      sync.Mutex
	cfg     SchedulerConfig
	loc     *time.Location
	c       *cron.Cron
	entries map[string]cron.EntryID
	sup     *supervisor.Supervisor
}

func NewScheduler(cfg SchedulerConfig, store Store, disp Sender, log logx.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:     log,
		store:   store,
		disp:    disp,
		cfg:     cfg,
		entries: map[string]cron.EntryID{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

// Start registers calendar triggers for every persisted daily/weekly task and
// launches the poll loop. The store must already be loaded.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.c = cron.New(cron.WithLocation(s.loc))

	registered := 0
	tasks := s.store.Tasks()
	for _, t := range tasks {
		if s.registerCronLocked(t) {
			registered++
		}
	}
	s.c.Start()
	poll := s.cfg.PollInterval
	loc := s.loc
	s.mu.Unlock()

	s.sup.Go0("scheduler.poll", func(c context.Context) {
		s.pollLoop(c)
	})

	s.log.Info("scheduler started",
		logx.Int("tasks", len(tasks)),
		logx.Int("calendar_triggers", registered),
		logx.Duration("poll_interval", poll),
		logx.String("tz", loc.String()),
	)
}

func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	sup := s.sup
	s.sup = nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}
	s.log.Info("scheduler stopped")
}

// Apply updates the runtime config. A timezone change restarts the cron
// table with the new location and re-registers every persisted daily/weekly
// task; a poll interval change is picked up on the next tick.
func (s *Scheduler) Apply(cfg SchedulerConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}

	s.mu.Lock()
	tzChanged := strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if !tzChanged || s.c == nil {
		s.mu.Unlock()
		return
	}

	old := s.c
	s.loc = s.loadLocation(cfg.Timezone)
	s.c = cron.New(cron.WithLocation(s.loc))
	s.entries = map[string]cron.EntryID{}
	for _, t := range s.store.Tasks() {
		s.registerCronLocked(t)
	}
	s.c.Start()
	loc := s.loc
	s.mu.Unlock()

	old.Stop()
	s.log.Info("scheduler timezone changed", logx.String("tz", loc.String()))
}

// Register adds the calendar trigger for a freshly created daily/weekly task.
// Interval and monthly tasks need no registration; the poll picks them up on
// its next tick.
func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	s.registerCronLocked(t)
}

func (s *Scheduler) registerCronLocked(t Task) bool {
	spec, ok := CronSpec(t.Cadence)
	if !ok {
		return false
	}
	id := t.ID
	sup := s.sup
	entry, err := s.c.AddFunc(spec, func() {
		ctx := context.Background()
		if sup != nil {
			ctx = sup.Context()
		}
		s.fire(ctx, id, time.Now().In(s.location()))
	})
	if err != nil {
		s.log.Error("calendar trigger rejected",
			logx.String("task", t.ID), logx.String("spec", spec), logx.Err(err))
		return false
	}
	s.entries[t.ID] = entry
	s.log.Debug("calendar trigger registered",
		logx.String("task", t.ID), logx.String("spec", spec))
	return true
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	interval := s.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, time.Now().In(s.location()))
			if d := s.pollInterval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
		}
	}
}

// pollOnce evaluates every polled task and dispatches the due ones. One
// task's failure never stops evaluation of the rest.
func (s *Scheduler) pollOnce(ctx context.Context, now time.Time) {
	for _, t := range s.store.Tasks() {
		if !Polled(t) {
			continue
		}
		if IsDue(t, now) {
			s.fire(ctx, t.ID, now)
		}
	}
}

// fire re-reads the task (its attachment or firing state may have changed
// since the trigger was registered), dispatches it, and records the firing at
// the trigger instant only when the transport reported success.
func (s *Scheduler) fire(ctx context.Context, id string, at time.Time) {
	t, ok := TaskByID(s.store.Tasks(), id)
	if !ok {
		s.log.Warn("trigger fired for unknown task", logx.String("task", id))
		return
	}

	if err := s.disp.Send(ctx, t); err != nil {
		// Not marked as sent: the task stays due and the next natural cycle
		// is the retry.
		s.log.Error("broadcast failed", logx.String("task", id), logx.Err(err))
		return
	}

	if err := s.store.RecordFired(ctx, id, at); err != nil {
		s.log.Warn("record firing failed", logx.String("task", id), logx.Err(err))
		return
	}
	s.log.Info("broadcast sent",
		logx.String("task", id),
		logx.String("type", string(t.Cadence.Kind())),
	)
}

func (s *Scheduler) pollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PollInterval
}

func (s *Scheduler) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Scheduler) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
