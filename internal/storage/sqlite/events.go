package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/schedq/schedq/internal/models"
)

// StoreTaskEvent appends an event to the task's log. The existence probe and
// the insert share a transaction so an event can never outlive a task deleted
// concurrently: if the row is already gone the event is dropped and 0 is
// returned.
func (s *Store) StoreTaskEvent(ctx context.Context, t models.Task, e models.Event) (int64, error) {
	blob, err := s.codec.EncodeEvent(e)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM task WHERE id = ?`, t.Meta().ID()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // task deleted, drop the event
	}
	if err != nil {
		return 0, err
	}

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO event (task_id, event, event_date) VALUES (?, ?, ?)`,
		t.Meta().ID(), blob, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	e.EvtMeta().SetID(id)
	e.EvtMeta().SetOccurred(s.clock.Now())
	return id, nil
}

// StoreEvent inserts a free-standing event with no associated task.
func (s *Store) StoreEvent(ctx context.Context, e models.Event) (int64, error) {
	blob, err := s.codec.EncodeEvent(e)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event (task_id, event, event_date) VALUES (NULL, ?, ?)`,
		blob, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	e.EvtMeta().SetID(id)
	e.EvtMeta().SetOccurred(s.clock.Now())
	return id, nil
}

// DeleteEvent removes the event, then sweeps orphans so a succeeded task
// whose last event just went away does not linger.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM event WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := s.CleanupOrphans(ctx)
	return err
}
