package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"broadcastbot/pkg/logx"
)

// fileStore persists the collection as one JSON array, fully rewritten on
// every mutation (tmp file + rename, so readers never observe a torn write).
type fileStore struct {
	log  logx.Logger
	path string

	mu    sync.Mutex
	tasks []Task
}

func openFileStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		// No file yet: empty collection, not an error.
		s.tasks = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	tasks := make([]Task, 0, len(recs))
	for _, r := range recs {
		t, err := decodeTask(r)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
		tasks = append(tasks, t)
	}
	s.tasks = tasks
	return append([]Task(nil), tasks...), nil
}

func (s *fileStore) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

func (s *fileStore) Append(ctx context.Context, t Task) error {
	_ = ctx
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	if err := s.saveLocked(); err != nil {
		// roll back the in-memory append so memory and disk stay in step
		s.tasks = s.tasks[:len(s.tasks)-1]
		return err
	}
	return nil
}

func (s *fileStore) Attach(ctx context.Context, id string, a Attachment) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	prev := s.tasks[i].Attachment
	s.tasks[i].SetAttachment(a)
	if err := s.saveLocked(); err != nil {
		s.tasks[i].Attachment = prev
		return err
	}
	return nil
}

func (s *fileStore) RecordFired(ctx context.Context, id string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	s.tasks[i].markFired(at)
	if err := s.saveLocked(); err != nil {
		// Keep the in-memory firing state: losing the save must not cause a
		// duplicate send, only a stale file until the next successful save.
		s.log.Warn("task save failed; firing state kept in memory",
			logx.String("task", id), logx.Err(err))
		return nil
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) saveLocked() error {
	recs := make([]record, 0, len(s.tasks))
	for _, t := range s.tasks {
		recs = append(recs, encodeTask(t))
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
