package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"broadcastbot/pkg/logx"
)

// Store is the durable task collection. All mutation is serialized
// read-modify-write over the whole collection; outbound sends never happen
// inside a Store call, so the lock is held only for the in-memory update and
// the persistence write.
type Store interface {
	// Load reads the persisted collection into memory. A missing backing
	// file means an empty collection, not an error.
	Load(ctx context.Context) ([]Task, error)

	// Tasks returns a snapshot copy of the collection.
	Tasks() []Task

	Append(ctx context.Context, t Task) error
	Attach(ctx context.Context, id string, a Attachment) error

	// RecordFired marks a successful dispatch. Callers invoke it only after
	// the transport reported success, so a failed send stays eligible for
	// the next due cycle.
	RecordFired(ctx context.Context, id string, at time.Time) error

	Close() error
}

// StoreConfig selects the persistence backend.
//
// Driver values: "file" (JSON, atomic rewrite), "sqlite", "memory".
type StoreConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OpenStore initializes the configured backend. An empty driver defaults to
// "file".
func OpenStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFileStore(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLiteStore(cfg, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// MemoryStore keeps the collection in memory only. Used by tests and as the
// ephemeral backend.
type MemoryStore struct {
	mu    sync.Mutex
	tasks []Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]Task, error) {
	_ = ctx
	return s.Tasks(), nil
}

func (s *MemoryStore) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

func (s *MemoryStore) Append(ctx context.Context, t Task) error {
	_ = ctx
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *MemoryStore) Attach(ctx context.Context, id string, a Attachment) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	s.tasks[i].SetAttachment(a)
	return nil
}

func (s *MemoryStore) RecordFired(ctx context.Context, id string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	s.tasks[i].markFired(at)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func findTask(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// TaskByID returns the current state of one task from a snapshot.
func TaskByID(tasks []Task, id string) (Task, bool) {
	if i := findTask(tasks, id); i >= 0 {
		return tasks[i], true
	}
	return Task{}, false
}
