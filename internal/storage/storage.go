package storage

import (
	"context"
	"errors"
	"time"

	"github.com/schedq/schedq/internal/models"
)

// Common errors
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrUnknownQueue = errors.New("unknown queue")
)

// TaskKind selects one of the named task view projections.
type TaskKind string

const (
	TaskKindAll    TaskKind = "all"
	TaskKindFailed TaskKind = "failed"
	TaskKindActive TaskKind = "active"
	TaskKindQueued TaskKind = "queued"
)

// IsValid checks if the task kind names a known projection
func (k TaskKind) IsValid() bool {
	switch k {
	case TaskKindAll, TaskKindFailed, TaskKindActive, TaskKindQueued:
		return true
	}
	return false
}

// ScheduledTask describes the next task a queue worker should consider.
// Wait is zero when the task is eligible now, otherwise the time until its
// retry date. Task is the decoded payload, or a legacy placeholder when the
// stored blob cannot be decoded.
type ScheduledTask struct {
	ID         int64
	RetryCount int
	Wait       time.Duration
	Task       models.Task
}

// TaskRow is one row of a tasks view projection.
type TaskRow struct {
	ID            int64
	QueueID       int64
	QueuedAt      time.Time
	RetryAt       time.Time
	RetryCount    int
	Priority      int64
	Status        models.StatusCode
	FailureReason string
	Exception     []byte
	Payload       []byte
	EventCount    int
}

// EventRow is one row of an events view projection. TaskID is zero for
// free-standing events.
type EventRow struct {
	ID         int64
	TaskID     int64
	Payload    []byte
	OccurredAt time.Time
}

// QueueStats summarizes the task table for dashboards.
type QueueStats struct {
	TotalTasks       int64   `json:"total_tasks"`
	QueuedTasks      int64   `json:"queued_tasks"`
	SucceededTasks   int64   `json:"succeeded_tasks"`
	FailedTasks      int64   `json:"failed_tasks"`
	AvgRetryCount    float64 `json:"avg_retry_count"`
	TasksWithRetries int64   `json:"tasks_with_retries"`
}

// Store defines the interface for durable queue/task/event persistence.
// This allows for different implementations (SQLite, in-memory, etc.)
//
// Every write method MUST tolerate the task row having been deleted
// concurrently by the dispatcher: a missing row is a no-op, not an error.
type Store interface {
	// GetOrCreateQueue returns the id of the named queue, creating it if
	// absent. Idempotent.
	GetOrCreateQueue(ctx context.Context, name string) (int64, error)

	// QueueNames enumerates all persisted queue names, used for startup
	// recovery.
	QueueNames(ctx context.Context) ([]string, error)

	// Enqueue persists a task on the named queue. Fails with
	// ErrUnknownQueue if the queue does not exist.
	Enqueue(ctx context.Context, t models.Task, queueName string, priority int64) (int64, error)

	// NextTask picks the next task for the queue under a single read
	// snapshot: the best eligible-now task, else the soonest future one.
	// Returns (nil, nil) only when the queue holds no queued tasks.
	NextTask(ctx context.Context, queueName string) (*ScheduledTask, error)

	// MarkSuccess deletes the task row if it has no events, otherwise
	// marks it succeeded.
	MarkSuccess(ctx context.Context, t models.Task) error

	// MarkRequeue schedules the task's next attempt with backoff, or
	// transitions to MarkFailure once the retry limit is reached.
	MarkRequeue(ctx context.Context, t models.Task) error

	// MarkFailure marks the task failed and persists the reason, the
	// serialized exception, and the final payload.
	MarkFailure(ctx context.Context, t models.Task, reason string) error

	// UpdateTask rewrites the payload blob of an existing task.
	UpdateTask(ctx context.Context, t models.Task) error

	// StoreTaskEvent appends an event to the task's log. Returns 0
	// without inserting if the task row is already gone.
	StoreTaskEvent(ctx context.Context, t models.Task, e models.Event) (int64, error)

	// StoreEvent inserts a free-standing event.
	StoreEvent(ctx context.Context, e models.Event) (int64, error)

	// DeleteTask removes the task and all its events. Idempotent.
	DeleteTask(ctx context.Context, id int64) error

	// DeleteEvent removes the event, then sweeps orphans.
	DeleteEvent(ctx context.Context, id int64) error

	// CleanupOldTasks removes tasks whose retry date is older than the
	// given age, with their events, then sweeps orphans. Returns the
	// number of rows removed.
	CleanupOldTasks(ctx context.Context, ageDays int) (int64, error)

	// CleanupOldEvents removes events older than the given age, then
	// sweeps orphans. Returns the number of rows removed.
	CleanupOldEvents(ctx context.Context, ageDays int) (int64, error)

	// CleanupOrphans removes events whose task is gone and succeeded
	// tasks with no remaining events. Returns the number of rows removed.
	CleanupOrphans(ctx context.Context) (int64, error)

	// BringTaskToFront sets the task's priority below the current queued
	// minimum. Callers serialize via the dispatcher lock.
	BringTaskToFront(ctx context.Context, id int64) error

	// SendTaskToBack sets the task's priority above the current queued
	// maximum. Callers serialize via the dispatcher lock.
	SendTaskToBack(ctx context.Context, id int64) error

	// Tasks returns a snapshot of the named task projection, newest
	// first, with per-row event counts.
	Tasks(ctx context.Context, kind TaskKind) ([]TaskRow, error)

	// TaskEvents returns the task's events, oldest first.
	TaskEvents(ctx context.Context, taskID int64) ([]EventRow, error)

	// AllEvents returns all events, oldest first.
	AllEvents(ctx context.Context) ([]EventRow, error)

	// Stats summarizes the task table.
	Stats(ctx context.Context) (*QueueStats, error)

	// Close releases the underlying database handle.
	Close() error
}
