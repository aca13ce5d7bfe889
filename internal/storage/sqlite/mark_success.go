package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
)

// MarkSuccess finishes a task that ran to completion. A task with no events
// has nothing worth keeping and its row is deleted outright; otherwise the
// row is kept as a succeeded record so its event log stays reachable.
func (s *Store) MarkSuccess(ctx context.Context, t models.Task) error {
	blob, err := s.codec.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var events int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM event WHERE task_id = ?`, t.Meta().ID()).Scan(&events)
	if err != nil {
		return err
	}

	if events == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM task WHERE id = ?`, t.Meta().ID())
	} else {
		// Affecting zero rows is fine; the task may have been deleted
		// while it was running.
		_, err = tx.ExecContext(ctx, `
			UPDATE task SET status_code = ?, task = ? WHERE id = ?`,
			models.StatusSucceeded, blob, t.Meta().ID(),
		)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}
