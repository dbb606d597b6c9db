// Package history persists completed task outcomes to SQLite. Queued and
// in-flight tasks are deliberately volatile; only resolved outcomes land here.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const maxErrorBytes = 4 * 1024

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one completed task to the log. Oversized error strings are
// truncated rather than rejected.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Rid == "" {
		return fmt.Errorf("rid is empty")
	}
	if e.Status != StatusSucceeded && e.Status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", e.Status)
	}

	var errVal any
	if e.Error != nil {
		msg := *e.Error
		if len(msg) > maxErrorBytes {
			msg = msg[:maxErrorBytes]
		}
		errVal = msg
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_log(rid, status, error, execution_ms, submitted_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?);
`, e.Rid, e.Status, errVal, e.ExecutionMs,
		e.SubmittedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT rid, status, error, execution_ms, submitted_at, completed_at
FROM task_log
ORDER BY completed_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query task_log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			statusS      string
			errS         sql.NullString
			submittedAtS string
			completedAtS string
		)
		if err := rows.Scan(&e.Rid, &statusS, &errS, &e.ExecutionMs, &submittedAtS, &completedAtS); err != nil {
			return nil, fmt.Errorf("scan task_log: %w", err)
		}
		e.Status = Status(statusS)
		if errS.Valid {
			e.Error = &errS.String
		}
		if t, err := time.Parse(time.RFC3339Nano, submittedAtS); err == nil {
			e.SubmittedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
			e.CompletedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summarize counts logged outcomes by status.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT status, COUNT(*) FROM task_log GROUP BY status;
`)
	if err != nil {
		return nil, fmt.Errorf("summarize task_log: %w", err)
	}
	defer rows.Close()

	sum := &Summary{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		switch Status(status) {
		case StatusSucceeded:
			sum.Succeeded = count
		case StatusFailed:
			sum.Failed = count
		}
		sum.Total += count
	}
	return sum, rows.Err()
}

// Prune deletes entries completed before the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `DELETE FROM task_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune task_log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
