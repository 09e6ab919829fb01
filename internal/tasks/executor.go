// Package tasks implements the single-worker background job queue that
// drives long-running, non-request-scoped operations (spec.md §4.C6).
package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a task's lifecycle stage. States transition monotonically:
// Pending -> Running -> {Completed, Failed}.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Record is the observable state of one submitted task.
type Record struct {
	ID        string
	Type      string
	TargetID  string
	State     State
	Progress  int // [0,100]
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProgressFunc reports fractional completion and a human message for a
// running task. fraction is clamped into [0,100].
type ProgressFunc func(fraction int, message string)

// Func is the work a submitted task performs.
type Func func(report ProgressFunc) error

type job struct {
	id  string
	typ string
	tgt string
	fn  Func
}

// Executor runs submitted jobs one at a time, in submission order,
// grounded on the teacher's scheduler worker-loop shape but reduced to
// a single worker consuming a FIFO guarded by a mutex/condition
// variable pair rather than a pool draining a channel (spec.md §5:
// "the task executor's shared map and queue are guarded by a single
// lock plus a condition variable").
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	records map[string]*Record
	running bool
	done    chan struct{}
}

// NewExecutor constructs an Executor. Call Start to begin processing.
func NewExecutor() *Executor {
	e := &Executor{
		records: make(map[string]*Record),
		done:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the single worker goroutine. Safe to call once.
func (e *Executor) Start() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	go e.worker()
}

// Submit enqueues fn under a fresh task id and returns it immediately.
func (e *Executor) Submit(taskType, targetID string, fn Func) string {
	id := uuid.NewString()
	now := time.Now()

	e.mu.Lock()
	e.records[id] = &Record{
		ID: id, Type: taskType, TargetID: targetID,
		State: StatePending, CreatedAt: now, UpdatedAt: now,
	}
	e.queue = append(e.queue, job{id: id, typ: taskType, tgt: targetID, fn: fn})
	e.cond.Signal()
	e.mu.Unlock()

	return id
}

// Status returns the record for id. If id is unknown, a synthetic
// failed record is returned rather than an error or a zero value
// (spec.md §4.C6: status retrieval for an absent id).
func (e *Executor) Status(id string) Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.records[id]; ok {
		return *r
	}
	now := time.Now()
	return Record{
		ID: id, State: StateFailed, Message: "Task not found",
		CreatedAt: now, UpdatedAt: now,
	}
}

// CleanupOldTasks removes terminal-state records whose last update is
// older than maxAge. Returns the number of records removed.
func (e *Executor) CleanupOldTasks(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, r := range e.records {
		if r.State.terminal() && r.UpdatedAt.Before(cutoff) {
			delete(e.records, id)
			removed++
		}
	}
	return removed
}

// Shutdown clears the running flag and waits for the worker to exit; the
// worker first runs every job still queued. A second call is idempotent.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) worker() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && e.running {
			e.cond.Wait()
		}
		if !e.running && len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		j := e.queue[0]
		e.queue = e.queue[1:]
		e.setState(j.id, StateRunning, 0, "")
		e.mu.Unlock()

		e.runJob(j)
	}
}

func (e *Executor) runJob(j job) {
	report := func(fraction int, message string) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 100 {
			fraction = 100
		}
		e.mu.Lock()
		if r, ok := e.records[j.id]; ok && r.State == StateRunning {
			r.Progress = fraction
			r.Message = message
			r.UpdatedAt = time.Now()
		}
		e.mu.Unlock()
	}

	err := e.runSafely(j.fn, report)

	e.mu.Lock()
	if err != nil {
		e.setStateLocked(j.id, StateFailed, -1, err.Error())
	} else {
		e.setStateLocked(j.id, StateCompleted, 100, "")
	}
	e.mu.Unlock()
}

// runSafely invokes fn, converting a panic into an error so a single
// misbehaving task cannot take down the worker (spec.md §4.C6:
// "exceptions raised by the task function set state=failed").
func (e *Executor) runSafely(fn Func, report ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(report)
}

func (e *Executor) setState(id string, state State, progress int, message string) {
	e.setStateLocked(id, state, progress, message)
}

// setStateLocked must be called with e.mu held.
func (e *Executor) setStateLocked(id string, state State, progress int, message string) {
	r, ok := e.records[id]
	if !ok {
		return
	}
	r.State = state
	if progress >= 0 {
		r.Progress = progress
	}
	if message != "" || state == StateFailed {
		r.Message = message
	}
	r.UpdatedAt = time.Now()
}
