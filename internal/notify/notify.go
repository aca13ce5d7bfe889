// Package notify fans task and event change notifications out to
// subscribers. Subscriptions are identified by opaque tokens; a subscriber
// can also retire itself by returning false from its callback, and the
// registry purges it on the next delivery.
package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/schedq/schedq/internal/models"
)

// TaskAction tells a subscriber what happened to the task it is handed.
type TaskAction string

const (
	TaskCreated   TaskAction = "created"
	TaskRunning   TaskAction = "running"
	TaskWaiting   TaskAction = "waiting"
	TaskCompleted TaskAction = "completed"
	TaskUpdated   TaskAction = "updated"
	TaskDeleted   TaskAction = "deleted"
)

// EventAction tells a subscriber what happened to the event it is handed.
type EventAction string

const (
	EventCreated EventAction = "created"
	EventDeleted EventAction = "deleted"
)

// TaskFunc observes a task change. Return false to drop the subscription.
type TaskFunc func(action TaskAction, t models.Task) (keep bool)

// EventFunc observes an event change. Return false to drop the subscription.
type EventFunc func(action EventAction, e models.Event) (keep bool)

// Executor decides on which goroutine notifications are delivered.
type Executor interface {
	Execute(fn func())
}

// InlineExecutor delivers notifications on the caller's goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Execute(fn func()) { fn() }

// SerialExecutor delivers notifications one at a time on a dedicated
// goroutine, preserving order across callers. Close it when done.
type SerialExecutor struct {
	fns  chan func()
	done chan struct{}
	once sync.Once
}

// NewSerialExecutor starts the delivery goroutine.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		fns:  make(chan func(), 64),
		done: make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		for fn := range e.fns {
			fn()
		}
	}()
	return e
}

// Execute queues fn for delivery. Dropped if the executor is closed.
func (e *SerialExecutor) Execute(fn func()) {
	defer func() {
		// Send on closed channel when racing Close; losing a
		// notification at shutdown is acceptable.
		recover()
	}()
	e.fns <- fn
}

// Close stops the delivery goroutine after draining queued notifications.
func (e *SerialExecutor) Close() {
	e.once.Do(func() { close(e.fns) })
	<-e.done
}

// Registry holds the live subscriptions.
type Registry struct {
	logger *slog.Logger
	exec   Executor

	mu     sync.Mutex
	tasks  map[uuid.UUID]TaskFunc
	events map[uuid.UUID]EventFunc
}

// NewRegistry creates an empty registry delivering via exec.
func NewRegistry(logger *slog.Logger, exec Executor) *Registry {
	if exec == nil {
		exec = InlineExecutor{}
	}
	return &Registry{
		logger: logger,
		exec:   exec,
		tasks:  make(map[uuid.UUID]TaskFunc),
		events: make(map[uuid.UUID]EventFunc),
	}
}

// SubscribeTasks registers fn for task change notifications.
func (r *Registry) SubscribeTasks(fn TaskFunc) uuid.UUID {
	token := uuid.New()
	r.mu.Lock()
	r.tasks[token] = fn
	r.mu.Unlock()
	return token
}

// SubscribeEvents registers fn for event change notifications.
func (r *Registry) SubscribeEvents(fn EventFunc) uuid.UUID {
	token := uuid.New()
	r.mu.Lock()
	r.events[token] = fn
	r.mu.Unlock()
	return token
}

// Unsubscribe drops the subscription with the given token, task or event.
func (r *Registry) Unsubscribe(token uuid.UUID) {
	r.mu.Lock()
	delete(r.tasks, token)
	delete(r.events, token)
	r.mu.Unlock()
}

// NotifyTaskChange delivers t to every task subscriber.
func (r *Registry) NotifyTaskChange(action TaskAction, t models.Task) {
	r.exec.Execute(func() {
		r.mu.Lock()
		subs := make(map[uuid.UUID]TaskFunc, len(r.tasks))
		for token, fn := range r.tasks {
			subs[token] = fn
		}
		r.mu.Unlock()

		for token, fn := range subs {
			if !r.deliverTask(fn, action, t) {
				r.Unsubscribe(token)
			}
		}
	})
}

// NotifyEventChange delivers e to every event subscriber.
func (r *Registry) NotifyEventChange(action EventAction, e models.Event) {
	r.exec.Execute(func() {
		r.mu.Lock()
		subs := make(map[uuid.UUID]EventFunc, len(r.events))
		for token, fn := range r.events {
			subs[token] = fn
		}
		r.mu.Unlock()

		for token, fn := range subs {
			if !r.deliverEvent(fn, action, e) {
				r.Unsubscribe(token)
			}
		}
	})
}

// deliverTask invokes one subscriber, isolating panics. A panicking
// subscriber is dropped.
func (r *Registry) deliverTask(fn TaskFunc, action TaskAction, t models.Task) (keep bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task subscriber panicked", "panic", rec)
			keep = false
		}
	}()
	return fn(action, t)
}

func (r *Registry) deliverEvent(fn EventFunc, action EventAction, e models.Event) (keep bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event subscriber panicked", "panic", rec)
			keep = false
		}
	}()
	return fn(action, e)
}
