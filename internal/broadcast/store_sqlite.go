package broadcast

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"broadcastbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore mirrors the collection in memory (for snapshots and due
// evaluation) and keeps one row per task in sqlite.
type sqliteStore struct {
	log logx.Logger
	db  *sql.DB

	mu    sync.Mutex
	tasks []Task
}

func openSQLiteStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{log: log, db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, type, interval_minutes, time_of_day, weekday,
		        day_of_month, photo_file_id, video_file_id, last_sent, last_sent_date
		   FROM broadcasts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var r record
		var interval, day sql.NullInt64
		var tod, weekday sql.NullString
		if err := rows.Scan(&r.ID, &r.Text, &r.Type, &interval, &tod, &weekday,
			&day, &r.PhotoFileID, &r.VideoFileID, &r.LastSent, &r.LastSentDate); err != nil {
			return nil, err
		}
		r.IntervalMinutes = int(interval.Int64)
		r.Time = tod.String
		r.Weekday = weekday.String
		r.DayOfMonth = int(day.Int64)

		t, err := decodeTask(r)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()
	return append([]Task(nil), tasks...), nil
}

func (s *sqliteStore) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

func (s *sqliteStore) Append(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r := encodeTask(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts(id, text, type, interval_minutes, time_of_day, weekday,
		                        day_of_month, photo_file_id, video_file_id, last_sent, last_sent_date)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Text, string(r.Type), nullInt(r.IntervalMinutes), nullStr(r.Time), nullStr(r.Weekday),
		nullInt(r.DayOfMonth), r.PhotoFileID, r.VideoFileID, r.LastSent, r.LastSentDate)
	if err != nil {
		return err
	}
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *sqliteStore) Attach(ctx context.Context, id string, a Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	prev := s.tasks[i].Attachment
	s.tasks[i].SetAttachment(a)
	r := encodeTask(s.tasks[i])
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET photo_file_id = ?, video_file_id = ? WHERE id = ?`,
		r.PhotoFileID, r.VideoFileID, id)
	if err != nil {
		s.tasks[i].Attachment = prev
		return err
	}
	return nil
}

func (s *sqliteStore) RecordFired(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := findTask(s.tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	s.tasks[i].markFired(at)
	r := encodeTask(s.tasks[i])
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET last_sent = ?, last_sent_date = ? WHERE id = ?`,
		r.LastSent, r.LastSentDate, id)
	if err != nil {
		// Same trade-off as the file driver: keep the in-memory firing state
		// so a persistence hiccup cannot cause a duplicate send.
		s.log.Warn("task update failed; firing state kept in memory",
			logx.String("task", id), logx.Err(err))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
