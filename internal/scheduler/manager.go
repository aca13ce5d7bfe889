// Package scheduler coordinates durable task queues: one worker goroutine
// per active queue, a shared store underneath, and change notifications for
// anything that wants to observe progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/notify"
	"github.com/schedq/schedq/internal/storage"
)

// ErrUnsupportedTask reports a payload type that carries no run capability.
var ErrUnsupportedTask = errors.New("task type cannot be run")

// Runner executes one task attempt. The default runner dispatches to the
// payload's own Run method; tests substitute their own.
type Runner func(ctx context.Context, t models.Task, env models.Environment) (ok bool, err error)

func runTask(ctx context.Context, t models.Task, env models.Environment) (bool, error) {
	r, ok := t.(models.Runnable)
	if !ok {
		return false, fmt.Errorf("%w: %T", ErrUnsupportedTask, t)
	}
	return r.Run(ctx, env)
}

// Manager is the scheduling coordinator. One mutex guards all dispatcher
// state: the worker registry, the running-task table, and every store write
// that must be ordered against worker polling.
type Manager struct {
	logger   *slog.Logger
	store    storage.Store
	codec    codec.Codec
	registry *notify.Registry
	runner   Runner

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queues  map[string]*queue
	running map[int64]models.Task
	closed  bool

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRunner substitutes the task execution strategy, used by tests.
func WithRunner(r Runner) Option {
	return func(m *Manager) {
		if r != nil {
			m.runner = r
		}
	}
}

// WithExecutor picks the notification delivery executor.
func WithExecutor(e notify.Executor) Option {
	return func(m *Manager) {
		m.registry = notify.NewRegistry(m.logger, e)
	}
}

// NewManager creates a manager over the given store. Call Start to recover
// persisted queues, and Close to stop the workers.
func NewManager(store storage.Store, c codec.Codec, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:  slog.Default(),
		store:   store,
		codec:   c,
		runner:  runTask,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string]*queue),
		running: make(map[int64]models.Task),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = notify.NewRegistry(m.logger, notify.InlineExecutor{})
	}
	return m
}

// Start spawns a worker for every persisted queue so tasks left over from a
// previous run resume without waiting for a fresh submit.
func (m *Manager) Start(ctx context.Context) error {
	names, err := m.store.QueueNames(ctx)
	if err != nil {
		return fmt.Errorf("list queues: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		m.spawnLocked(name)
	}
	m.logger.Info("scheduler started", "queues", len(names))
	return nil
}

// InitializeQueue registers the named queue, creating its row if absent, and
// starts its worker. Idempotent.
func (m *Manager) InitializeQueue(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.store.GetOrCreateQueue(ctx, name); err != nil {
		return err
	}
	m.spawnLocked(name)
	return nil
}

// Submit enqueues a task on the named queue and wakes its worker, starting
// one if none is running. The queue must have been initialized; submitting
// to an unknown queue fails with storage.ErrUnknownQueue.
func (m *Manager) Submit(ctx context.Context, t models.Task, queueName string, priority int64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("scheduler is closed")
	}
	if _, err := m.store.Enqueue(ctx, t, queueName, priority); err != nil {
		m.mu.Unlock()
		return err
	}

	if q, ok := m.queues[queueName]; ok {
		q.wakeUp()
	} else {
		m.spawnLocked(queueName)
	}
	m.mu.Unlock()

	// Outside the lock so an inline subscriber can call back into the
	// manager.
	m.registry.NotifyTaskChange(notify.TaskCreated, t)
	return nil
}

// spawnLocked starts a worker for the queue if none is registered.
// Caller holds m.mu.
func (m *Manager) spawnLocked(name string) {
	if m.closed {
		return
	}
	if _, ok := m.queues[name]; ok {
		return
	}
	q := newQueue(m, name)
	m.queues[name] = q
	m.wg.Add(1)
	go q.run(m.ctx)
}

// SaveTask persists the task's current payload, satisfying the task-side
// Environment interface.
func (m *Manager) SaveTask(ctx context.Context, t models.Task) error {
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	m.registry.NotifyTaskChange(notify.TaskUpdated, t)
	return nil
}

// StoreTaskEvent appends an event to the task's log. Returns 0 when the task
// row has been deleted in the meantime; the event is dropped in that case.
func (m *Manager) StoreTaskEvent(ctx context.Context, t models.Task, e models.Event) (int64, error) {
	id, err := m.store.StoreTaskEvent(ctx, t, e)
	if err != nil || id == 0 {
		return id, err
	}
	m.registry.NotifyEventChange(notify.EventCreated, e)
	return id, nil
}

// StoreEvent records a free-standing event with no associated task.
func (m *Manager) StoreEvent(ctx context.Context, e models.Event) (int64, error) {
	id, err := m.store.StoreEvent(ctx, e)
	if err != nil {
		return 0, err
	}
	m.registry.NotifyEventChange(notify.EventCreated, e)
	return id, nil
}

// DeleteTask removes a task and its events. If the task is running its abort
// flag is raised first; the running attempt finishes cooperatively and its
// final store write lands on the missing row as a no-op.
func (m *Manager) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	if t, ok := m.running[id]; ok {
		t.Meta().RequestAbort()
	}
	err := m.store.DeleteTask(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	// The delete may have taken events with it.
	m.registry.NotifyEventChange(notify.EventDeleted, nil)
	m.registry.NotifyTaskChange(notify.TaskDeleted, nil)
	return nil
}

// DeleteEvent removes a single event and sweeps orphans.
func (m *Manager) DeleteEvent(ctx context.Context, id int64) error {
	if err := m.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	m.registry.NotifyEventChange(notify.EventDeleted, nil)
	return nil
}

// CleanupOldTasks removes tasks whose last scheduling activity is older than
// ageDays. Returns the number removed.
func (m *Manager) CleanupOldTasks(ctx context.Context, ageDays int) (int64, error) {
	removed, err := m.store.CleanupOldTasks(ctx, ageDays)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		m.registry.NotifyTaskChange(notify.TaskDeleted, nil)
		m.registry.NotifyEventChange(notify.EventDeleted, nil)
	}
	return removed, nil
}

// CleanupOldEvents removes events older than ageDays. Returns the number
// removed.
func (m *Manager) CleanupOldEvents(ctx context.Context, ageDays int) (int64, error) {
	removed, err := m.store.CleanupOldEvents(ctx, ageDays)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		m.registry.NotifyEventChange(notify.EventDeleted, nil)
	}
	return removed, nil
}

// CleanupOrphans removes events without a task and eventless succeeded
// tasks. Returns the number removed.
func (m *Manager) CleanupOrphans(ctx context.Context) (int64, error) {
	return m.store.CleanupOrphans(ctx)
}

// BringTaskToFront reprioritizes the task ahead of all queued tasks.
func (m *Manager) BringTaskToFront(ctx context.Context, id int64) error {
	return m.reprioritize(ctx, id, m.store.BringTaskToFront)
}

// SendTaskToBack reprioritizes the task behind all queued tasks.
func (m *Manager) SendTaskToBack(ctx context.Context, id int64) error {
	return m.reprioritize(ctx, id, m.store.SendTaskToBack)
}

func (m *Manager) reprioritize(ctx context.Context, id int64, move func(context.Context, int64) error) error {
	m.mu.Lock()
	err := move(ctx, id)
	if err == nil {
		// A waiting worker may now have a different best pick.
		for _, q := range m.queues {
			q.wakeUp()
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.registry.NotifyTaskChange(notify.TaskUpdated, nil)
	return nil
}

// GetTasks returns a cursor over the named task projection, newest first.
func (m *Manager) GetTasks(ctx context.Context, kind storage.TaskKind) (*TasksCursor, error) {
	rows, err := m.store.Tasks(ctx, kind)
	if err != nil {
		return nil, err
	}
	return newTasksCursor(rows, m.codec), nil
}

// GetTaskEvents returns a cursor over the task's events, oldest first.
func (m *Manager) GetTaskEvents(ctx context.Context, taskID int64) (*EventsCursor, error) {
	rows, err := m.store.TaskEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return newEventsCursor(rows, m.codec), nil
}

// GetAllEvents returns a cursor over every event, oldest first.
func (m *Manager) GetAllEvents(ctx context.Context) (*EventsCursor, error) {
	rows, err := m.store.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return newEventsCursor(rows, m.codec), nil
}

// Stats summarizes the task table.
func (m *Manager) Stats(ctx context.Context) (*storage.QueueStats, error) {
	return m.store.Stats(ctx)
}

// IsRunning reports whether the task is mid-attempt right now.
func (m *Manager) IsRunning(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// SubscribeTasks registers fn for task change notifications.
func (m *Manager) SubscribeTasks(fn notify.TaskFunc) uuid.UUID {
	return m.registry.SubscribeTasks(fn)
}

// SubscribeEvents registers fn for event change notifications.
func (m *Manager) SubscribeEvents(fn notify.EventFunc) uuid.UUID {
	return m.registry.SubscribeEvents(fn)
}

// Unsubscribe drops a subscription by token.
func (m *Manager) Unsubscribe(token uuid.UUID) {
	m.registry.Unsubscribe(token)
}

// Close asks running tasks to abort, stops every queue worker, and waits for
// them. The store is left open for the caller to close.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, t := range m.running {
		t.Meta().RequestAbort()
	}
	for _, q := range m.queues {
		q.wakeUp()
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("scheduler stopped")
}
