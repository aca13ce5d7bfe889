package sqlite

import "context"

// DeleteTask removes the task and its whole event log. Deleting a task that
// is already gone is a no-op.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event WHERE task_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
