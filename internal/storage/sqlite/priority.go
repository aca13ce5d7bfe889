package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/storage"
)

// BringTaskToFront moves the task ahead of every queued task by setting its
// priority below the current minimum. Callers serialize via the dispatcher
// lock, so read-then-write here is safe without a transaction on its own,
// but we keep one so the two statements see the same snapshot.
func (s *Store) BringTaskToFront(ctx context.Context, id int64) error {
	return s.shiftPriority(ctx, id, `
		UPDATE task
		SET priority = (SELECT COALESCE(MIN(priority), 0) - 1 FROM task WHERE status_code = ?)
		WHERE id = ?`)
}

// SendTaskToBack moves the task behind every queued task by setting its
// priority above the current maximum.
func (s *Store) SendTaskToBack(ctx context.Context, id int64) error {
	return s.shiftPriority(ctx, id, `
		UPDATE task
		SET priority = (SELECT COALESCE(MAX(priority), 0) + 1 FROM task WHERE status_code = ?)
		WHERE id = ?`)
}

func (s *Store) shiftPriority(ctx context.Context, id int64, query string) error {
	res, err := s.db.ExecContext(ctx, query, models.StatusQueued, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", storage.ErrTaskNotFound, id)
	}
	return nil
}
