package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, e *Executor, id string, state State) Record {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r := e.Status(id)
		if r.State == state {
			return r
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s, last state %s", id, state, e.Status(id).State)
	return Record{}
}

func TestExecutor_SubmitAndComplete(t *testing.T) {
	e := NewExecutor()
	e.Start()
	defer e.Shutdown()

	id := e.Submit("heartbeat", "cam-1", func(report ProgressFunc) error {
		report(50, "halfway")
		return nil
	})

	r := waitFor(t, e, id, StateCompleted)
	assert.Equal(t, 100, r.Progress)
}

func TestExecutor_FailedTaskSetsMessage(t *testing.T) {
	e := NewExecutor()
	e.Start()
	defer e.Shutdown()

	id := e.Submit("ingest", "cam-2", func(report ProgressFunc) error {
		return errors.New("rtsp connect refused")
	})

	r := waitFor(t, e, id, StateFailed)
	assert.Equal(t, "rtsp connect refused", r.Message)
}

func TestExecutor_PanicBecomesFailed(t *testing.T) {
	e := NewExecutor()
	e.Start()
	defer e.Shutdown()

	id := e.Submit("ingest", "cam-3", func(report ProgressFunc) error {
		panic("boom")
	})

	r := waitFor(t, e, id, StateFailed)
	assert.Contains(t, r.Message, "boom")
}

func TestExecutor_UnknownTaskReturnsSyntheticFailedRecord(t *testing.T) {
	e := NewExecutor()
	r := e.Status("does-not-exist")
	assert.Equal(t, StateFailed, r.State)
	assert.Equal(t, "Task not found", r.Message)
}

func TestExecutor_FIFOOrdering(t *testing.T) {
	e := NewExecutor()
	e.Start()
	defer e.Shutdown()

	var order []int
	done := make(chan struct{})
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		i := i
		ids[i] = e.Submit("job", "", func(report ProgressFunc) error {
			order = append(order, i)
			if i == 2 {
				close(done)
			}
			return nil
		})
	}
	<-done
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestExecutor_CleanupOldTasksRemovesOnlyStaleTerminal(t *testing.T) {
	e := NewExecutor()
	e.Start()
	defer e.Shutdown()

	id := e.Submit("job", "", func(report ProgressFunc) error { return nil })
	waitFor(t, e, id, StateCompleted)

	e.mu.Lock()
	e.records[id].UpdatedAt = time.Now().Add(-2 * time.Hour)
	e.mu.Unlock()

	removed := e.CleanupOldTasks(time.Hour)
	assert.Equal(t, 1, removed)

	r := e.Status(id)
	assert.Equal(t, "Task not found", r.Message)
}

func TestExecutor_ShutdownIsIdempotent(t *testing.T) {
	e := NewExecutor()
	e.Start()
	e.Shutdown()
	e.Shutdown()
}
