package sqlite

import (
	"context"
	"fmt"

	"github.com/schedq/schedq/internal/models"
)

// UpdateTask rewrites the payload blob of an existing task, used by task code
// that checkpoints its progress mid-run. A deleted row is a no-op.
func (s *Store) UpdateTask(ctx context.Context, t models.Task) error {
	blob, err := s.codec.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE task SET task = ? WHERE id = ?`, blob, t.Meta().ID())
	return err
}
