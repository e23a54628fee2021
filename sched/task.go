package sched

import (
	"errors"
	"fmt"
)

// A TaskFunc is the body of one task. It runs cooperatively: it only yields
// control at Wait calls and returns an error to fail its owning test.
type TaskFunc func(t *Task) error

// TaskState tracks where a task is in its lifecycle.
type TaskState int

// The task states. A task is either runnable (queued for resumption) or
// waiting (registered against exactly one trigger), never both.
const (
	TaskCreated TaskState = iota
	TaskRunnable
	TaskRunning
	TaskWaiting
	TaskFinished
	TaskFailed
	TaskKilled
)

var taskStateNames = map[TaskState]string{
	TaskCreated:  "created",
	TaskRunnable: "runnable",
	TaskRunning:  "running",
	TaskWaiting:  "waiting",
	TaskFinished: "finished",
	TaskFailed:   "failed",
	TaskKilled:   "killed",
}

func (s TaskState) String() string {
	return taskStateNames[s]
}

// ErrTaskKilled is returned when awaiting the completion of a task that was
// forcibly terminated.
var ErrTaskKilled = errors.New("task was killed")

// A TestFailure is the recoverable test-failure marker. It fails the
// owning test without indicating a framework problem.
type TestFailure struct {
	Msg string
}

func (e *TestFailure) Error() string {
	return "test failure: " + e.Msg
}

// Failf builds a recoverable test-failure marker.
func Failf(format string, args ...interface{}) error {
	return &TestFailure{Msg: fmt.Sprintf(format, args...)}
}

// killSentinel unwinds a task goroutine on forced termination.
type killSentinel struct{}

type resumeMsg struct {
	kill bool
}

// A Task is one suspended or resumable unit of test logic. The goroutine
// behind it is only a suspension mechanism: the scheduler's run queue and
// the resume/yield handshake guarantee that exactly one task executes at a
// time, in a well-defined order.
type Task struct {
	sched *Scheduler

	id   string
	name string
	fn   TaskFunc

	state   TaskState
	started bool
	done    bool

	resume chan resumeMsg
	yield  chan struct{}

	waiting     Trigger
	wokenBy     Trigger
	pendingWake bool

	err    error
	result interface{}

	join *Join
}

// ID returns the task's identifier.
func (t *Task) ID() string {
	return t.id
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// State returns the task's lifecycle state.
func (t *Task) State() TaskState {
	return t.state
}

// Err returns the task's terminal error, if any.
func (t *Task) Err() error {
	return t.err
}

// SetResult stores a value the completion trigger carries to joiners.
func (t *Task) SetResult(v interface{}) {
	t.result = v
}

// Result returns the value stored by SetResult.
func (t *Task) Result() interface{} {
	return t.result
}

// Join returns the completion trigger of the task.
func (t *Task) Join() *Join {
	return t.join
}

// Scheduler returns the scheduler that owns the task.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// wake moves the task from waiting to runnable. A wake delivered while the
// task is running (an immediately-ready trigger primed from Wait) is
// consumed by Wait without suspending.
func (t *Task) wake(tr Trigger) {
	t.wokenBy = tr

	if t.state != TaskWaiting {
		t.pendingWake = true

		return
	}

	t.state = TaskRunnable
	t.waiting = nil
	t.sched.enqueue(t)
}

// Wait suspends the task until the trigger fires. It returns the error a
// completion trigger propagates from a failed or killed task, or the
// registration error if the trigger could not be armed.
func (t *Task) Wait(tr Trigger) error {
	if err := tr.prime(t.sched, t); err != nil {
		return err
	}

	if t.pendingWake {
		t.pendingWake = false

		return t.wokenError()
	}

	t.state = TaskWaiting
	t.waiting = tr

	t.sched.invokeTaskHook(HookPosTaskSuspend, t)

	t.yield <- struct{}{}
	msg := <-t.resume

	if msg.kill {
		panic(killSentinel{})
	}

	return t.wokenError()
}

// WaitFirst suspends the task on a wait-for-first combinator over the given
// triggers and reports which one fired.
func (t *Task) WaitFirst(trs ...Trigger) (Trigger, error) {
	f := First(trs...)
	if err := t.Wait(f); err != nil {
		return nil, err
	}

	return f.Winner(), nil
}

// wokenError propagates the terminal error of a completion trigger.
func (t *Task) wokenError() error {
	j, ok := t.wokenBy.(*Join)
	if !ok {
		return nil
	}

	return j.terminalError()
}

// Kill forcibly terminates the task. Every trigger it waits on is
// deregistered, cascading through combinators, before the task object is
// released; a later firing of the underlying event has no visible effect.
func (t *Task) Kill() {
	if t.done {
		return
	}

	if t.state == TaskWaiting && t.waiting != nil {
		t.waiting.unprime(t)
		t.waiting = nil
	}

	if !t.started {
		t.state = TaskKilled
		t.finalize()

		return
	}

	t.state = TaskKilled
	t.sched.requestKill(t)
}

// run is the task goroutine body.
func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			if _, isKill := r.(killSentinel); !isKill {
				t.err = fmt.Errorf("task panic: %v", r)
				t.state = TaskFailed
			}
		}

		t.finalize()
		t.yield <- struct{}{}
	}()

	err := t.fn(t)

	switch {
	case t.state == TaskKilled:
	case err != nil:
		t.err = err
		t.state = TaskFailed
	default:
		t.state = TaskFinished
	}
}

// finalize records the outcome and fires the completion trigger. It runs
// exactly once.
func (t *Task) finalize() {
	if t.done {
		return
	}

	t.done = true

	switch t.state {
	case TaskKilled:
		if t.err == nil {
			t.err = ErrTaskKilled
		}
		t.sched.invokeTaskHook(HookPosTaskKill, t)
	case TaskFailed:
		t.sched.recordFailure(t)
		t.sched.invokeTaskHook(HookPosTaskFail, t)
	default:
		t.state = TaskFinished
		t.sched.invokeTaskHook(HookPosTaskComplete, t)
	}

	t.join.fire(t.sched)
}
