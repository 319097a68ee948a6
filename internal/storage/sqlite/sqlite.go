// Package sqlite implements storage.Store on top of modernc.org/sqlite,
// the pure-Go cgo-free SQLite driver — the engine's reference durable
// deployment target. Tasks persist as one JSON blob per row (the
// pipeline is the only writer and reader of task internals; SQLite here
// supplies atomic per-row writes and crash-safe append-only logging, not
// relational structure).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/model"
)

// Store is a database/sql-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// The pipeline is a single writer per task but many tasks share one
	// connection pool; modernc.org/sqlite serializes writes at the
	// database level, so one open connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id    TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			body  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS provenance (
			task_id TEXT NOT NULL,
			seq     INTEGER NOT NULL,
			body    TEXT NOT NULL,
			PRIMARY KEY (task_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) PersistTask(ctx context.Context, task *model.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("sqlite: marshal task %s: %w", task.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, state, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, body = excluded.body
	`, task.ID.String(), string(task.State), body)
	if err != nil {
		return fmt.Errorf("sqlite: persist task %s: %w", task.ID, err)
	}
	return nil
}

func (s *Store) LoadTask(ctx context.Context, id ids.TaskId) (*model.Task, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM tasks WHERE id = ?`, id.String()).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: load task %s: %w", id, err)
	}
	var task model.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, false, fmt.Errorf("sqlite: unmarshal task %s: %w", id, err)
	}
	return &task, true, nil
}

func (s *Store) ListRecoverableTasks(ctx context.Context) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recoverable tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite: scan task row: %w", err)
		}
		var task model.Task
		if err := json.Unmarshal(body, &task); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal task row: %w", err)
		}
		if !task.State.Terminal() {
			t := task
			out = append(out, &t)
		}
	}
	return out, rows.Err()
}

func (s *Store) AppendProvenance(ctx context.Context, id ids.TaskId, event model.TaskEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sqlite: marshal provenance event for %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provenance (task_id, seq, body)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM provenance WHERE task_id = ?), ?)
	`, id.String(), id.String(), body)
	if err != nil {
		return fmt.Errorf("sqlite: append provenance for %s: %w", id, err)
	}
	return nil
}
