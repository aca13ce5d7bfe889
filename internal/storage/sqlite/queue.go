package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// queueID looks up the id of a queue by name, 0 if no match.
func (s *Store) queueID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM queue WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// GetOrCreateQueue returns the id of the named queue, creating it if absent.
func (s *Store) GetOrCreateQueue(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("queue name must not be empty")
	}

	id, err := s.queueID(ctx, name)
	if err != nil || id != 0 {
		return id, err
	}

	// A concurrent creator may win the insert; the unique index on name
	// makes this a no-op and the re-select finds the winner's row.
	_, err = s.db.ExecContext(ctx, `INSERT INTO queue (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return 0, fmt.Errorf("create queue %q: %w", name, err)
	}
	return s.queueID(ctx, name)
}

// QueueNames enumerates all persisted queue names in name order.
func (s *Store) QueueNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM queue ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
