package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/models"
	"github.com/schedq/schedq/internal/notify"
	"github.com/schedq/schedq/internal/storage"
	"github.com/schedq/schedq/internal/storage/sqlite"
)

const waitFor = 5 * time.Second

type jobTask struct {
	models.TaskMeta
	Name string `json:"name"`
}

func newJobTask(name string) *jobTask {
	return &jobTask{
		TaskMeta: models.NewTaskMeta(name),
		Name:     name,
	}
}

type jobEvent struct {
	models.EventMeta
	Note string `json:"note"`
}

type harness struct {
	store   *sqlite.Store
	codec   *codec.JSON
	manager *Manager
}

// newHarness builds a manager over a real temp-file store. The runner
// dispatches on the job name so each test scripts its own outcomes.
func newHarness(t *testing.T, handlers map[string]Runner) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		filepath.Join(t.TempDir(), "test.db"))
	database, err := sqlite.Open(dsn, 1)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, sqlite.Migrate(database))

	c := codec.NewJSON()
	c.RegisterTask("job", func() models.Task { return &jobTask{} })
	c.RegisterEvent("job_event", func() models.Event { return &jobEvent{} })

	store := sqlite.NewStore(database, c)

	runner := func(ctx context.Context, task models.Task, env models.Environment) (bool, error) {
		job, ok := task.(*jobTask)
		if !ok {
			return runTask(ctx, task, env)
		}
		h, ok := handlers[job.Name]
		if !ok {
			return false, fmt.Errorf("no handler for job %q", job.Name)
		}
		return h(ctx, task, env)
	}

	m := NewManager(store, c, WithRunner(runner))
	t.Cleanup(m.Close)
	return &harness{store: store, codec: c, manager: m}
}

func (h *harness) taskRows(t *testing.T, kind storage.TaskKind) []storage.TaskRow {
	t.Helper()
	rows, err := h.store.Tasks(context.Background(), kind)
	require.NoError(t, err)
	return rows
}

func TestManager_SuccessfulTaskIsRemoved(t *testing.T) {
	ran := make(chan struct{}, 1)
	h := newHarness(t, map[string]Runner{
		"ok": func(context.Context, models.Task, models.Environment) (bool, error) {
			ran <- struct{}{}
			return true, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("ok"), "main", 0))

	select {
	case <-ran:
	case <-time.After(waitFor):
		t.Fatal("task never ran")
	}

	// An eventless success leaves no row behind.
	assert.Eventually(t, func() bool {
		return len(h.taskRows(t, storage.TaskKindAll)) == 0
	}, waitFor, 10*time.Millisecond)
}

func TestManager_SubmitUnknownQueue(t *testing.T) {
	h := newHarness(t, nil)

	err := h.manager.Submit(context.Background(), newJobTask("ok"), "nope", 0)
	assert.ErrorIs(t, err, storage.ErrUnknownQueue)
}

func TestManager_RequeueIncrementsRetryCount(t *testing.T) {
	h := newHarness(t, map[string]Runner{
		"flaky": func(context.Context, models.Task, models.Environment) (bool, error) {
			return false, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("flaky"), "main", 0))

	assert.Eventually(t, func() bool {
		rows := h.taskRows(t, storage.TaskKindQueued)
		return len(rows) == 1 && rows[0].RetryCount >= 1
	}, waitFor, 10*time.Millisecond)
}

func TestManager_FailingTaskIsMarkedFailed(t *testing.T) {
	h := newHarness(t, map[string]Runner{
		"broken": func(context.Context, models.Task, models.Environment) (bool, error) {
			return false, fmt.Errorf("connection refused")
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("broken"), "main", 0))

	assert.Eventually(t, func() bool {
		rows := h.taskRows(t, storage.TaskKindFailed)
		return len(rows) == 1 && rows[0].FailureReason == "connection refused"
	}, waitFor, 10*time.Millisecond)
}

func TestManager_PanickingTaskIsMarkedFailed(t *testing.T) {
	h := newHarness(t, map[string]Runner{
		"panicky": func(context.Context, models.Task, models.Environment) (bool, error) {
			panic("boom")
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("panicky"), "main", 0))

	assert.Eventually(t, func() bool {
		rows := h.taskRows(t, storage.TaskKindFailed)
		return len(rows) == 1 && rows[0].FailureReason == "task panicked: boom"
	}, waitFor, 10*time.Millisecond)
}

func TestManager_UndecodableTaskFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.store.GetOrCreateQueue(ctx, "main")
	require.NoError(t, err)

	// A row left behind by a payload type this build no longer knows.
	_, err = h.store.GetDB().ExecContext(ctx, `
		INSERT INTO task (queue_id, queued_date, priority, status_code, retry_date, retry_count, task)
		VALUES ((SELECT id FROM queue WHERE name = 'main'),
		        datetime('now', 'localtime'), 0, 'Q', datetime('now', 'localtime'), 0, ?)`,
		[]byte("ancient binary payload"))
	require.NoError(t, err)

	require.NoError(t, h.manager.Start(ctx))

	assert.Eventually(t, func() bool {
		rows := h.taskRows(t, storage.TaskKindFailed)
		return len(rows) == 1 && rows[0].FailureReason == "cannot decode task payload"
	}, waitFor, 10*time.Millisecond)
	// The original bytes survive in the failed row.
	rows := h.taskRows(t, storage.TaskKindFailed)
	assert.Equal(t, []byte("ancient binary payload"), rows[0].Payload)
}

func TestManager_WorkerRespawnsAfterIdle(t *testing.T) {
	ran := make(chan struct{}, 2)
	h := newHarness(t, map[string]Runner{
		"ok": func(context.Context, models.Task, models.Environment) (bool, error) {
			ran <- struct{}{}
			return true, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))

	for i := 0; i < 2; i++ {
		require.NoError(t, h.manager.Submit(ctx, newJobTask("ok"), "main", 0))
		select {
		case <-ran:
		case <-time.After(waitFor):
			t.Fatalf("task %d never ran", i)
		}
		// Let the worker drain and terminate before the next submit.
		assert.Eventually(t, func() bool {
			return len(h.taskRows(t, storage.TaskKindAll)) == 0
		}, waitFor, 10*time.Millisecond)
	}
}

func TestManager_DeleteRunningTaskRequestsAbort(t *testing.T) {
	started := make(chan int64)
	release := make(chan struct{})
	var aborted atomic.Bool

	h := newHarness(t, map[string]Runner{
		"slow": func(ctx context.Context, task models.Task, env models.Environment) (bool, error) {
			started <- task.Meta().ID()
			<-release
			if task.Meta().AbortRequested() {
				aborted.Store(true)
				return false, fmt.Errorf("aborted")
			}
			return true, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("slow"), "main", 0))

	var id int64
	select {
	case id = <-started:
	case <-time.After(waitFor):
		t.Fatal("task never started")
	}
	assert.True(t, h.manager.IsRunning(id))

	require.NoError(t, h.manager.DeleteTask(ctx, id))
	close(release)

	assert.Eventually(t, func() bool { return aborted.Load() }, waitFor, 10*time.Millisecond)
	// The failure write lands on the deleted row as a no-op.
	assert.Eventually(t, func() bool {
		return len(h.taskRows(t, storage.TaskKindAll)) == 0 && !h.manager.IsRunning(id)
	}, waitFor, 10*time.Millisecond)
}

func TestManager_TaskEventsSurviveSuccess(t *testing.T) {
	h := newHarness(t, map[string]Runner{
		"chatty": func(ctx context.Context, task models.Task, env models.Environment) (bool, error) {
			e := &jobEvent{EventMeta: models.NewEventMeta("made progress"), Note: "step 1"}
			if _, err := env.StoreTaskEvent(ctx, task, e); err != nil {
				return false, err
			}
			return true, nil
		},
	})
	ctx := context.Background()

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	task := newJobTask("chatty")
	require.NoError(t, h.manager.Submit(ctx, task, "main", 0))

	assert.Eventually(t, func() bool {
		rows := h.taskRows(t, storage.TaskKindAll)
		return len(rows) == 1 && rows[0].Status == models.StatusSucceeded
	}, waitFor, 10*time.Millisecond)

	cursor, err := h.manager.GetTaskEvents(ctx, task.Meta().ID())
	require.NoError(t, err)
	require.Equal(t, 1, cursor.Count())
	require.True(t, cursor.Next())
	assert.Equal(t, "made progress", cursor.Event().EvtMeta().Description)
}

func TestManager_Notifications(t *testing.T) {
	type taskChange struct {
		action notify.TaskAction
		task   models.Task
	}
	taskChanges := make(chan taskChange, 16)
	eventChanges := make(chan notify.EventAction, 16)

	h := newHarness(t, map[string]Runner{
		"chatty": func(ctx context.Context, task models.Task, env models.Environment) (bool, error) {
			e := &jobEvent{EventMeta: models.NewEventMeta("progress"), Note: "x"}
			_, err := env.StoreTaskEvent(ctx, task, e)
			return err == nil, err
		},
	})
	ctx := context.Background()

	h.manager.SubscribeTasks(func(action notify.TaskAction, task models.Task) bool {
		taskChanges <- taskChange{action: action, task: task}
		return true
	})
	token := h.manager.SubscribeEvents(func(action notify.EventAction, e models.Event) bool {
		eventChanges <- action
		return true
	})

	require.NoError(t, h.manager.InitializeQueue(ctx, "main"))
	require.NoError(t, h.manager.Submit(ctx, newJobTask("chatty"), "main", 0))

	// The full lifecycle reaches subscribers: created, running, completed.
	seen := make(map[notify.TaskAction]bool)
	deadline := time.After(waitFor)
	for !(seen[notify.TaskCreated] && seen[notify.TaskRunning] && seen[notify.TaskCompleted]) {
		select {
		case ch := <-taskChanges:
			seen[ch.action] = true
		case <-deadline:
			t.Fatalf("missing task lifecycle notifications, saw %v", seen)
		}
	}

	select {
	case action := <-eventChanges:
		assert.Equal(t, notify.EventCreated, action)
	case <-time.After(waitFor):
		t.Fatal("no event change notification")
	}

	h.manager.Unsubscribe(token)
}

// flakyStore makes outcome persistence fail on demand.
type flakyStore struct {
	storage.Store
	failing atomic.Bool
}

func (s *flakyStore) MarkSuccess(ctx context.Context, task models.Task) error {
	if s.failing.Load() {
		return fmt.Errorf("database is locked")
	}
	return s.Store.MarkSuccess(ctx, task)
}

func TestManager_WorkerExitsWhenOutcomePersistFails(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		filepath.Join(t.TempDir(), "test.db"))
	database, err := sqlite.Open(dsn, 1)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, sqlite.Migrate(database))

	c := codec.NewJSON()
	c.RegisterTask("job", func() models.Task { return &jobTask{} })

	store := &flakyStore{Store: sqlite.NewStore(database, c)}
	store.failing.Store(true)

	var runs atomic.Int32
	runner := func(context.Context, models.Task, models.Environment) (bool, error) {
		runs.Add(1)
		return true, nil
	}
	m := NewManager(store, c, WithRunner(runner))
	t.Cleanup(m.Close)
	ctx := context.Background()

	require.NoError(t, m.InitializeQueue(ctx, "main"))
	require.NoError(t, m.Submit(ctx, newJobTask("ok"), "main", 0))

	// The outcome write fails, so the worker must stop rather than spin on
	// the still-queued task.
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, waitFor, 10*time.Millisecond)
	assert.Never(t, func() bool { return runs.Load() > 1 }, 500*time.Millisecond, 25*time.Millisecond)

	rows, err := store.Tasks(ctx, storage.TaskKindQueued)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Once the store recovers, the next submit respawns a worker that
	// drains the stuck task along with the new one.
	store.failing.Store(false)
	require.NoError(t, m.Submit(ctx, newJobTask("ok"), "main", 0))

	assert.Eventually(t, func() bool {
		rows, err := store.Tasks(ctx, storage.TaskKindAll)
		return err == nil && len(rows) == 0
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestManager_StartRecoversPersistedQueues(t *testing.T) {
	ran := make(chan struct{}, 1)
	h := newHarness(t, map[string]Runner{
		"ok": func(context.Context, models.Task, models.Environment) (bool, error) {
			ran <- struct{}{}
			return true, nil
		},
	})
	ctx := context.Background()

	// Persist a queue and a task without going through the manager,
	// as a previous process would have.
	_, err := h.store.GetOrCreateQueue(ctx, "recovered")
	require.NoError(t, err)
	_, err = h.store.Enqueue(ctx, newJobTask("ok"), "recovered", 0)
	require.NoError(t, err)

	require.NoError(t, h.manager.Start(ctx))

	select {
	case <-ran:
	case <-time.After(waitFor):
		t.Fatal("recovered task never ran")
	}
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.manager.InitializeQueue(context.Background(), "main"))

	h.manager.Close()
	h.manager.Close()
}

func TestManager_SubmitAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.manager.InitializeQueue(context.Background(), "main"))
	h.manager.Close()

	err := h.manager.Submit(context.Background(), newJobTask("ok"), "main", 0)
	assert.Error(t, err)
}
