package sqlite

import (
	"context"

	"github.com/schedq/schedq/internal/models"
)

// cutoff renders the date string ageDays before now.
func (s *Store) cutoff(ageDays int) string {
	return models.FormatDate(s.clock.Now().AddDate(0, 0, -ageDays))
}

// CleanupOldTasks removes tasks untouched for ageDays, along with their
// events, then sweeps orphans. Age is measured on retry_date, which tracks
// the last scheduling activity. Returns the number of tasks removed.
func (s *Store) CleanupOldTasks(ctx context.Context, ageDays int) (int64, error) {
	cutoff := s.cutoff(ageDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM event WHERE task_id IN (SELECT id FROM task WHERE retry_date < ?)`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM task WHERE retry_date < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if _, err := s.CleanupOrphans(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// CleanupOldEvents removes events older than ageDays, then sweeps orphans.
// Returns the number of events removed.
func (s *Store) CleanupOldEvents(ctx context.Context, ageDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM event WHERE event_date < ?`, s.cutoff(ageDays))
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := s.CleanupOrphans(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// CleanupOrphans removes events pointing at tasks that no longer exist and
// succeeded tasks whose last event is gone. Returns total rows removed.
func (s *Store) CleanupOrphans(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM event
		WHERE task_id IS NOT NULL
		AND task_id NOT IN (SELECT id FROM task)`)
	if err != nil {
		return 0, err
	}
	events, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// A succeeded task is only kept for the sake of its events.
	res, err = tx.ExecContext(ctx, `
		DELETE FROM task
		WHERE status_code = ?
		AND id NOT IN (SELECT task_id FROM event WHERE task_id IS NOT NULL)`,
		models.StatusSucceeded,
	)
	if err != nil {
		return 0, err
	}
	tasks, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return events + tasks, nil
}
