package models

import (
	"context"
	"sync/atomic"
)

// DefaultRetryLimit is the number of retries a task is allowed before it is
// marked failed.
const DefaultRetryLimit = 17

// DefaultRetryDelayCap bounds the exponential retry delay, in seconds.
const DefaultRetryDelayCap = 3600

// StatusCode is the single-character persisted task status.
type StatusCode string

const (
	StatusQueued    StatusCode = "Q"
	StatusSucceeded StatusCode = "S"
	StatusFailed    StatusCode = "F"
	// StatusWaiting exists in legacy databases; nothing writes it anymore.
	StatusWaiting StatusCode = "W"
)

// IsValid checks if the status code is one this schema knows about
func (s StatusCode) IsValid() bool {
	switch s {
	case StatusQueued, StatusSucceeded, StatusFailed, StatusWaiting:
		return true
	}
	return false
}

// String returns the string representation of StatusCode
func (s StatusCode) String() string {
	return string(s)
}

// TaskState is the in-payload lifecycle state of a task. Unlike StatusCode it
// is serialized inside the payload blob, not stored in its own column.
type TaskState string

const (
	TaskStateCreated    TaskState = "created"
	TaskStateRunning    TaskState = "running"
	TaskStateWaiting    TaskState = "waiting"
	TaskStateFailed     TaskState = "failed"
	TaskStateSuccessful TaskState = "successful"
)

// Task is implemented by every payload the scheduler can carry. Payload types
// embed TaskMeta to satisfy it.
type Task interface {
	Meta() *TaskMeta
}

// Environment is the surface task code sees while running. The scheduler
// Manager implements it.
type Environment interface {
	// StoreTaskEvent appends an event to the running task's log.
	// Returns 0 if the task row has been deleted in the meantime.
	StoreTaskEvent(ctx context.Context, t Task, e Event) (int64, error)

	// SaveTask persists the task's payload mid-run.
	SaveTask(ctx context.Context, t Task) error
}

// Runnable is the capability a payload exposes so the default executor can
// run it. Payloads without it fail with ErrUnsupportedTask.
//
// Run returns (true, nil) on success, (false, nil) to request a requeue with
// backoff, and a non-nil error for a hard failure. Long-running tasks are
// expected to poll Meta().AbortRequested() periodically.
type Runnable interface {
	Task
	Run(ctx context.Context, env Environment) (ok bool, err error)
}

// TaskMeta carries the scheduling bookkeeping embedded in every payload type.
// The exported fields travel inside the serialized payload blob; id and retry
// count are overwritten from the task row on load, which is authoritative.
type TaskMeta struct {
	State          TaskState `json:"state"`
	Description    string    `json:"description,omitempty"`
	Retries        int       `json:"retries"`
	RetryLimit     int       `json:"retry_limit"`
	RetryDelaySecs int       `json:"retry_delay_secs"`
	TotalRetries   int       `json:"total_retries"`

	id    int64
	abort uint32
	err   error
}

// NewTaskMeta returns meta for a freshly created task.
func NewTaskMeta(description string) TaskMeta {
	return TaskMeta{
		State:       TaskStateCreated,
		Description: description,
		RetryLimit:  DefaultRetryLimit,
	}
}

// Meta satisfies the Task interface for embedders.
func (m *TaskMeta) Meta() *TaskMeta { return m }

// ID returns the task row id, 0 before the task is enqueued.
func (m *TaskMeta) ID() int64 { return m.id }

// SetID records the task row id after an insert or load.
func (m *TaskMeta) SetID(id int64) { m.id = id }

// CanRetry reports whether another requeue is allowed.
func (m *TaskMeta) CanRetry() bool {
	return m.Retries < m.RetryLimit
}

// SetDefaultRetryDelay derives the next retry delay from the retry count:
// 2^(retries+1) seconds, bounded by capSecs when capSecs > 0. The exponent
// is clamped so a large retry count cannot overflow into a negative delay.
func (m *TaskMeta) SetDefaultRetryDelay(capSecs int) {
	n := m.Retries + 1
	if n > 30 {
		n = 30
	}
	delay := 1 << n
	if capSecs > 0 && delay > capSecs {
		delay = capSecs
	}
	m.RetryDelaySecs = delay
}

// ResetRetryCounter folds the current retry count into the total and starts
// a fresh retry cycle. Task code calls this when it makes real progress.
func (m *TaskMeta) ResetRetryCounter() {
	m.TotalRetries += m.Retries
	m.Retries = 0
	m.SetDefaultRetryDelay(DefaultRetryDelayCap)
}

// RequestAbort asks the running task to stop. Cooperative: task code must
// poll AbortRequested.
func (m *TaskMeta) RequestAbort() {
	atomic.StoreUint32(&m.abort, 1)
}

// AbortRequested reports whether an abort has been requested.
func (m *TaskMeta) AbortRequested() bool {
	return atomic.LoadUint32(&m.abort) != 0
}

// Err returns the error recorded on the task, if any.
func (m *TaskMeta) Err() error { return m.err }

// SetErr records an error on the task. The worker will not overwrite an
// error the task code already set.
func (m *TaskMeta) SetErr(err error) { m.err = err }

// TaskError is the serializable form of an error persisted in the task's
// exception column.
type TaskError struct {
	Message string `json:"message"`
}

func (e *TaskError) Error() string { return e.Message }
