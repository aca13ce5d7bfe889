package notify

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schedq/schedq/internal/models"
)

type noteTask struct {
	models.TaskMeta
}

type noteEvent struct {
	models.EventMeta
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.Default(), InlineExecutor{})
}

func TestRegistry_NotifyTaskChange(t *testing.T) {
	r := newTestRegistry()

	var got models.Task
	var gotAction TaskAction
	r.SubscribeTasks(func(action TaskAction, task models.Task) bool {
		gotAction = action
		got = task
		return true
	})

	task := &noteTask{TaskMeta: models.NewTaskMeta("test")}
	r.NotifyTaskChange(TaskCreated, task)
	assert.Equal(t, TaskCreated, gotAction)
	assert.Equal(t, models.Task(task), got)

	r.NotifyTaskChange(TaskDeleted, nil)
	assert.Equal(t, TaskDeleted, gotAction)
	assert.Nil(t, got)
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := newTestRegistry()

	calls := 0
	token := r.SubscribeTasks(func(TaskAction, models.Task) bool {
		calls++
		return true
	})

	r.NotifyTaskChange(TaskUpdated, nil)
	r.Unsubscribe(token)
	r.NotifyTaskChange(TaskUpdated, nil)

	assert.Equal(t, 1, calls)
}

func TestRegistry_PurgeOnFalse(t *testing.T) {
	r := newTestRegistry()

	calls := 0
	r.SubscribeEvents(func(EventAction, models.Event) bool {
		calls++
		return false // one-shot subscription
	})

	r.NotifyEventChange(EventCreated, &noteEvent{})
	r.NotifyEventChange(EventCreated, &noteEvent{})

	assert.Equal(t, 1, calls)
}

func TestRegistry_PanickingSubscriberDropped(t *testing.T) {
	r := newTestRegistry()

	r.SubscribeTasks(func(TaskAction, models.Task) bool {
		panic("bad subscriber")
	})
	survivor := 0
	r.SubscribeTasks(func(TaskAction, models.Task) bool {
		survivor++
		return true
	})

	r.NotifyTaskChange(TaskUpdated, nil)
	r.NotifyTaskChange(TaskUpdated, nil)

	// The panicking subscriber is gone; the healthy one keeps receiving.
	assert.Equal(t, 2, survivor)
	r.mu.Lock()
	assert.Len(t, r.tasks, 1)
	r.mu.Unlock()
}

func TestSerialExecutor_PreservesOrder(t *testing.T) {
	e := NewSerialExecutor()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		e.Execute(func() {
			order = append(order, i)
			if i == 9 {
				close(done)
			}
		})
	}
	<-done
	e.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestSerialExecutor_CloseIsIdempotent(t *testing.T) {
	e := NewSerialExecutor()
	e.Close()
	e.Close()

	// Execute after close must not hang or crash.
	e.Execute(func() {})
}
