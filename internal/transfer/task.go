package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// State is the lifecycle position of a Task.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// EventKind distinguishes progress from terminal events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

// Event is one item on a task's event channel. A channel carries Progress
// events with strictly increasing Percent, then exactly one Completed or
// Failed event, then closes.
type Event struct {
	Kind    EventKind
	Percent int             // progress events; 100 on Completed
	Record  *api.FileRecord // Completed only
	Err     error           // Failed only; a *TransferError
}

// eventBuffer holds every event a task can emit (percent 0..100 plus the
// terminal event), so emitting never blocks on a slow consumer.
const eventBuffer = 102

// Task is one in-flight upload. Its outcome is read either from Events or
// from Wait; both may be used.
type Task struct {
	id     string
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	state   State
	percent int
	record  *api.FileRecord
	err     error
}

func newTask(ctx context.Context, id, name string) *Task {
	ctx, cancel := context.WithCancel(ctx)

	return &Task{
		id:      id,
		name:    name,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		percent: -1,
	}
}

// ID is a fresh UUID per task. A retried upload is a new task.
func (t *Task) ID() string { return t.id }

// Name is the file name sent to the backend.
func (t *Task) Name() string { return t.name }

// Events returns the task's event channel.
func (t *Task) Events() <-chan Event { return t.events }

// Done is closed once the task has reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel aborts the upload. It is safe to call at any time, including after
// the task has finished.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finishes and returns the stored record or the
// *TransferError.
func (t *Task) Wait() (*api.FileRecord, error) {
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.record, t.err
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Percent returns the last emitted progress value, or -1 before the first.
func (t *Task) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.percent
}

// start moves the task to InProgress and emits the 0% event.
func (t *Task) start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateInProgress

	if t.ctx.Err() == nil {
		t.emitLocked(0)
	}
}

// progress emits a byte-driven update. Values at or below the last emitted
// percent are dropped, as is anything once cancellation has been observed.
func (t *Task) progress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() || t.ctx.Err() != nil {
		return
	}

	t.emitLocked(percent)
}

func (t *Task) emitLocked(percent int) {
	if percent <= t.percent {
		return
	}

	t.percent = percent
	t.events <- Event{Kind: EventProgress, Percent: percent}
}

// complete records the server acknowledgement. The server's answer is
// authoritative, so 100 is emitted even if Cancel raced with it.
func (t *Task) complete(rec *api.FileRecord) {
	t.mu.Lock()

	t.emitLocked(100)
	t.state = StateCompleted
	t.record = rec
	t.events <- Event{Kind: EventCompleted, Percent: 100, Record: rec}

	t.finishLocked()
}

func (t *Task) fail(te *TransferError) {
	t.mu.Lock()

	if te.Reason == ReasonCancelled {
		t.state = StateCancelled
	} else {
		t.state = StateFailed
	}

	t.err = te
	t.events <- Event{Kind: EventFailed, Percent: max(t.percent, 0), Err: te}

	t.finishLocked()
}

// finishLocked closes the channels and releases the context. Called with
// t.mu held; unlocks it.
func (t *Task) finishLocked() {
	close(t.events)
	t.mu.Unlock()

	t.cancel()
	close(t.done)
}
