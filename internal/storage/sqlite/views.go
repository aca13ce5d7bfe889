package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/storage"
)

const tasksViewBase = `
	SELECT t.id, t.queue_id, t.queued_date, t.retry_date, t.retry_count,
	       t.priority, t.status_code, COALESCE(t.failure_reason, ''),
	       t.exception, t.task,
	       (SELECT COUNT(*) FROM event e WHERE e.task_id = t.id)
	FROM task t`

// Tasks returns a snapshot of the named projection, newest first.
func (s *Store) Tasks(ctx context.Context, kind storage.TaskKind) ([]storage.TaskRow, error) {
	query := tasksViewBase
	var args []any
	switch kind {
	case storage.TaskKindAll:
	case storage.TaskKindFailed:
		query += ` WHERE t.status_code = ?`
		args = append(args, models.StatusFailed)
	case storage.TaskKindActive:
		query += ` WHERE t.status_code <> ?`
		args = append(args, models.StatusSucceeded)
	case storage.TaskKindQueued:
		query += ` WHERE t.status_code = ?`
		args = append(args, models.StatusQueued)
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
	query += ` ORDER BY t.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.TaskRow
	for rows.Next() {
		var (
			row               storage.TaskRow
			queuedAt, retryAt string
			status            string
		)
		err := rows.Scan(&row.ID, &row.QueueID, &queuedAt, &retryAt, &row.RetryCount,
			&row.Priority, &status, &row.FailureReason, &row.Exception, &row.Payload,
			&row.EventCount)
		if err != nil {
			return nil, err
		}
		row.Status = models.StatusCode(status)
		if row.QueuedAt, err = models.ParseDate(queuedAt); err != nil {
			return nil, fmt.Errorf("parse queued date of task %d: %w", row.ID, err)
		}
		if row.RetryAt, err = models.ParseDate(retryAt); err != nil {
			return nil, fmt.Errorf("parse retry date of task %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TaskEvents returns the task's events, oldest first.
func (s *Store) TaskEvents(ctx context.Context, taskID int64) ([]storage.EventRow, error) {
	return s.scanEvents(ctx, `
		SELECT id, task_id, event, event_date FROM event
		WHERE task_id = ? ORDER BY id ASC`, taskID)
}

// AllEvents returns every event, task-bound and free-standing, oldest first.
func (s *Store) AllEvents(ctx context.Context) ([]storage.EventRow, error) {
	return s.scanEvents(ctx, `
		SELECT id, task_id, event, event_date FROM event
		ORDER BY id ASC`)
}

func (s *Store) scanEvents(ctx context.Context, query string, args ...any) ([]storage.EventRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.EventRow
	for rows.Next() {
		var (
			row        storage.EventRow
			taskID     *int64
			occurredAt string
		)
		if err := rows.Scan(&row.ID, &taskID, &row.Payload, &occurredAt); err != nil {
			return nil, err
		}
		if taskID != nil {
			row.TaskID = *taskID
		}
		if row.OccurredAt, err = models.ParseDate(occurredAt); err != nil {
			return nil, fmt.Errorf("parse date of event %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
