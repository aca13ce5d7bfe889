package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/notify"
	"github.com/schedq/schedq/internal/storage"
)

// queue is the worker for one named queue. It runs tasks strictly one at a
// time and terminates as soon as the store holds no queued tasks for it; the
// manager respawns it on the next submit.
type queue struct {
	m    *Manager
	name string
	// wake is 1-buffered: a wake while the worker is busy is remembered,
	// extra wakes coalesce.
	wake chan struct{}
}

func newQueue(m *Manager, name string) *queue {
	return &queue{
		m:    m,
		name: name,
		wake: make(chan struct{}, 1),
	}
}

// wakeUp nudges the worker out of its retry-date wait. Non-blocking.
func (q *queue) wakeUp() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) run(ctx context.Context) {
	defer q.m.wg.Done()
	q.m.logger.Info("queue worker started", "queue", q.name)

	for {
		if ctx.Err() != nil {
			q.unregister(false)
			return
		}

		q.m.mu.Lock()
		st, err := q.m.store.NextTask(ctx, q.name)
		q.m.mu.Unlock()

		if err != nil {
			// Store failure is fatal to this worker; the manager
			// respawns one on the next submit.
			q.m.logger.Error("poll failed, worker exiting", "queue", q.name, "error", err)
			q.unregister(false)
			return
		}

		if st == nil {
			if q.unregister(true) {
				return
			}
			// A submit slipped in between the poll and the
			// unregister attempt, go around again.
			continue
		}

		if st.Wait > 0 {
			if !q.sleep(ctx, st.Wait) {
				q.unregister(false)
				return
			}
			continue
		}

		if !q.process(ctx, st) {
			q.unregister(false)
			return
		}
	}
}

// unregister removes the worker from the manager's registry. With
// checkWake set, a pending wake signal cancels the termination: the wake
// and the registry are checked under the same lock a submitter holds, so a
// task enqueued after our last poll is never stranded.
func (q *queue) unregister(checkWake bool) bool {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()

	if checkWake {
		select {
		case <-q.wake:
			return false
		default:
		}
	}
	if q.m.queues[q.name] == q {
		delete(q.m.queues, q.name)
	}
	q.m.logger.Info("queue worker terminated", "queue", q.name)
	return true
}

// sleep waits out d, cut short by a wake or shutdown. Reports false on
// shutdown.
func (q *queue) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	case <-timer.C:
		return true
	}
}

// process runs one task attempt and persists the outcome. Reports false when
// the outcome could not be persisted; the worker must stop rather than poll
// the same task again.
func (q *queue) process(ctx context.Context, st *storage.ScheduledTask) bool {
	task := st.Task
	meta := task.Meta()

	// A payload the codec no longer understands cannot run; fail it so it
	// stops blocking the queue, keeping the original bytes in the row.
	if _, legacy := task.(*models.LegacyTask); legacy {
		q.m.logger.Warn("undecodable task failed", "queue", q.name, "task_id", st.ID)
		return q.finish(ctx, task, notify.TaskCompleted, func() error {
			return q.m.store.MarkFailure(ctx, task, "cannot decode task payload")
		})
	}

	q.m.mu.Lock()
	q.m.running[st.ID] = task
	q.m.mu.Unlock()
	defer func() {
		q.m.mu.Lock()
		delete(q.m.running, st.ID)
		q.m.mu.Unlock()
	}()

	q.m.logger.Info("running task", "queue", q.name, "task_id", st.ID,
		"retry_count", st.RetryCount, "description", meta.Description)

	meta.State = models.TaskStateRunning
	q.m.registry.NotifyTaskChange(notify.TaskRunning, task)

	ok, err := q.safeRun(ctx, task)

	switch {
	case err != nil:
		meta.State = models.TaskStateFailed
		// Task code may have recorded a more specific error already.
		if meta.Err() == nil {
			meta.SetErr(err)
		}
		q.m.logger.Warn("task failed", "queue", q.name, "task_id", st.ID, "error", err)
		return q.finish(ctx, task, notify.TaskCompleted, func() error {
			return q.m.store.MarkFailure(ctx, task, err.Error())
		})
	case ok:
		meta.State = models.TaskStateSuccessful
		q.m.logger.Info("task succeeded", "queue", q.name, "task_id", st.ID)
		return q.finish(ctx, task, notify.TaskCompleted, func() error {
			return q.m.store.MarkSuccess(ctx, task)
		})
	default:
		meta.State = models.TaskStateWaiting
		q.m.logger.Info("task requeued", "queue", q.name, "task_id", st.ID,
			"retry_count", meta.Retries, "retry_limit", meta.RetryLimit)
		return q.finish(ctx, task, notify.TaskWaiting, func() error {
			return q.m.store.MarkRequeue(ctx, task)
		})
	}
}

// safeRun executes the task attempt, converting a panic into a failure so
// one bad payload cannot take the worker down.
func (q *queue) safeRun(ctx context.Context, t models.Task) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return q.m.runner(ctx, t, q.m)
}

// finish persists the attempt outcome and notifies observers. A store failure
// here is as fatal as one during polling: reports false so the worker exits
// instead of re-running a task whose outcome never landed.
func (q *queue) finish(ctx context.Context, t models.Task, action notify.TaskAction, persist func() error) bool {
	if err := persist(); err != nil {
		q.m.logger.Error("persist task outcome failed, worker exiting", "queue", q.name,
			"task_id", t.Meta().ID(), "error", err)
		return false
	}
	q.m.registry.NotifyTaskChange(action, t)
	return true
}
