package sqlite

import (
	"context"

	"github.com/schedq/schedq/internal/storage"
)

// Stats summarizes the task table in a single aggregate pass.
func (s *Store) Stats(ctx context.Context) (*storage.QueueStats, error) {
	var st storage.QueueStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status_code = 'Q' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status_code = 'S' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status_code = 'F' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(retry_count), 0),
		       COALESCE(SUM(CASE WHEN retry_count > 0 THEN 1 ELSE 0 END), 0)
		FROM task`).
		Scan(&st.TotalTasks, &st.QueuedTasks, &st.SucceededTasks, &st.FailedTasks,
			&st.AvgRetryCount, &st.TasksWithRetries)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
