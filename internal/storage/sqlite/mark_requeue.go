package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/schedq/schedq/internal/models"
)

// MarkRequeue schedules the task's next attempt. The retry count is bumped
// and the retry date pushed out by the task's current delay; once the retry
// limit is exhausted the task fails instead.
func (s *Store) MarkRequeue(ctx context.Context, t models.Task) error {
	meta := t.Meta()
	if !meta.CanRetry() {
		meta.State = models.TaskStateFailed
		return s.MarkFailure(ctx, t, "Retry limit exceeded")
	}

	meta.Retries++
	retryAt := s.clock.Now().Add(time.Duration(meta.RetryDelaySecs) * time.Second)

	blob, err := s.codec.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	// Zero rows affected means the task was deleted mid-run; nothing to do.
	_, err = s.db.ExecContext(ctx, `
		UPDATE task SET status_code = ?, retry_date = ?, retry_count = ?, task = ?
		WHERE id = ?`,
		models.StatusQueued, models.FormatDate(retryAt), meta.Retries, blob, meta.ID(),
	)
	return err
}
