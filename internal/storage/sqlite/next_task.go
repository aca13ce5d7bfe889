package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/storage"
)

const nextTaskBase = `
	SELECT t.id, t.retry_date, t.retry_count, t.task
	FROM task t
	JOIN queue q ON t.queue_id = q.id
	WHERE t.status_code = 'Q' AND q.name = ?`

// Query for a task that can run now, lowest priority value first.
const nextEligibleQuery = nextTaskBase + `
	AND t.retry_date <= ?
	ORDER BY t.priority ASC, t.retry_date ASC, t.id ASC
	LIMIT 1`

// Query for the soonest future task when nothing is eligible yet.
const nextFutureQuery = nextTaskBase + `
	AND t.retry_date > ?
	ORDER BY t.retry_date ASC, t.priority ASC, t.id ASC
	LIMIT 1`

// NextTask picks the next task the queue's worker should consider, under a
// single read snapshot. The eligible-now query wins; otherwise the soonest
// future task is returned with a positive Wait. (nil, nil) means the queue
// holds no queued tasks at all.
func (s *Store) NextTask(ctx context.Context, queueName string) (*storage.ScheduledTask, error) {
	now := s.clock.Now()
	nowStr := models.FormatDate(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		id         int64
		retryDate  string
		retryCount int
		blob       []byte
	)

	err = tx.QueryRowContext(ctx, nextEligibleQuery, queueName, nowStr).
		Scan(&id, &retryDate, &retryCount, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, nextFutureQuery, queueName, nowStr).
			Scan(&id, &retryDate, &retryCount, &blob)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // queue is empty
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	retryAt, err := models.ParseDate(retryDate)
	if err != nil {
		return nil, fmt.Errorf("parse retry date of task %d: %w", id, err)
	}

	st := &storage.ScheduledTask{
		ID:         id,
		RetryCount: retryCount,
	}
	if retryAt.After(now) {
		st.Wait = retryAt.Sub(now)
	}

	// A decode failure downgrades to a legacy placeholder that preserves
	// the original bytes; the worker marks it failed without running it.
	task, decodeErr := s.codec.DecodeTask(blob)
	if decodeErr != nil {
		task = models.NewLegacyTask(blob)
	}

	// The row is authoritative for id and retry count; the delay is
	// derived so task code can adjust it before the next requeue.
	meta := task.Meta()
	meta.SetID(id)
	meta.Retries = retryCount
	meta.SetDefaultRetryDelay(s.retryDelayCap)

	st.Task = task
	return st, nil
}
