// Package history persists task runner step outcomes to SQLite, the
// same database/sql + go-sqlite3 + uuid.NewV7 idiom the teacher's
// scheduler store uses for its executions table, adapted here to the
// narrower task.HistoryRecorder contract (spec.md §12: additive
// observability, never consulted by the pipeline itself).
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ashgrove/autoreply/internal/task"
)

// Store records task.Runner step outcomes.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) a SQLite database at dbPath
// and ensures its schema exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		task_name TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_steps_task_name ON steps(task_name);
	CREATE INDEX IF NOT EXISTS idx_steps_scheduled_at ON steps(scheduled_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func outcomeName(o task.Outcome) string {
	switch o {
	case task.Continue:
		return "continue"
	case task.Done:
		return "done"
	case task.Raised:
		return "raised"
	default:
		return "unknown"
	}
}

// RecordStep implements task.HistoryRecorder. A write failure is
// silently dropped rather than returned: history is observability, and
// an observability write must never be able to disrupt the runner that
// produced it.
func (s *Store) RecordStep(name string, scheduledAt, startedAt, completedAt time.Time, outcome task.Outcome, stepErr error) {
	var errText sql.NullString
	if stepErr != nil {
		errText = sql.NullString{String: stepErr.Error(), Valid: true}
	}

	_, _ = s.db.Exec(`
		INSERT INTO steps (id, task_name, scheduled_at, started_at, completed_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID(), name,
		scheduledAt.Format(time.RFC3339Nano),
		startedAt.Format(time.RFC3339Nano),
		completedAt.Format(time.RFC3339Nano),
		outcomeName(outcome), errText)
}

// StepRecord is one row read back from the history store, for
// operational inspection only — the pipeline never reads its own
// history to decide anything.
type StepRecord struct {
	TaskName    string
	ScheduledAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Outcome     string
	Error       string
}

// Recent returns the most recent step records for a task name, newest
// first.
func (s *Store) Recent(taskName string, limit int) ([]StepRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT task_name, scheduled_at, started_at, completed_at, outcome, error
		FROM steps WHERE task_name = ?
		ORDER BY scheduled_at DESC LIMIT ?
	`, taskName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var r StepRecord
		var scheduledAt, startedAt, completedAt string
		var errText sql.NullString
		if err := rows.Scan(&r.TaskName, &scheduledAt, &startedAt, &completedAt, &r.Outcome, &errText); err != nil {
			return nil, err
		}
		r.ScheduledAt, _ = time.Parse(time.RFC3339Nano, scheduledAt)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		if errText.Valid {
			r.Error = errText.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
