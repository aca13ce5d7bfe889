package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
)

// MarkFailure marks the task failed for good, recording the reason and the
// serialized error alongside the final payload.
func (s *Store) MarkFailure(ctx context.Context, t models.Task, reason string) error {
	meta := t.Meta()

	blob, err := s.codec.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	var exception []byte
	if meta.Err() != nil {
		exception, err = s.codec.EncodeError(meta.Err())
		if err != nil {
			return fmt.Errorf("encode task error: %w", err)
		}
	}

	// Zero rows affected means the task was deleted mid-run; nothing to do.
	_, err = s.db.ExecContext(ctx, `
		UPDATE task SET status_code = ?, failure_reason = ?, exception = ?, task = ?
		WHERE id = ?`,
		models.StatusFailed, reason, exception, blob, meta.ID(),
	)
	return err
}
