package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/storage"
)

// Enqueue persists a task on the named queue with the given priority. The
// queue must already exist; callers that want on-demand creation go through
// GetOrCreateQueue first.
func (s *Store) Enqueue(ctx context.Context, t models.Task, queueName string, priority int64) (int64, error) {
	queueID, err := s.queueID(ctx, queueName)
	if err != nil {
		return 0, err
	}
	if queueID == 0 {
		return 0, fmt.Errorf("%w: %q", storage.ErrUnknownQueue, queueName)
	}

	blob, err := s.codec.EncodeTask(t)
	if err != nil {
		return 0, fmt.Errorf("encode task: %w", err)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO task (queue_id, queued_date, priority, status_code, retry_date, retry_count, task)
		VALUES (?, ?, ?, 'Q', ?, 0, ?)`,
		queueID, now, priority, now, blob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.Meta().SetID(id)
	return id, nil
}
