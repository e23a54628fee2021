package sched

import (
	"errors"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/kernel"
)

// HookPosTaskSpawn triggers when a task is created and queued.
var HookPosTaskSpawn = &kernel.HookPos{Name: "TaskSpawn"}

// HookPosTaskResume triggers right before a task regains control.
var HookPosTaskResume = &kernel.HookPos{Name: "TaskResume"}

// HookPosTaskSuspend triggers when a task suspends on a trigger.
var HookPosTaskSuspend = &kernel.HookPos{Name: "TaskSuspend"}

// HookPosTaskComplete triggers when a task returns normally.
var HookPosTaskComplete = &kernel.HookPos{Name: "TaskComplete"}

// HookPosTaskFail triggers when a task returns an error or panics.
var HookPosTaskFail = &kernel.HookPos{Name: "TaskFail"}

// HookPosTaskKill triggers when a task is forcibly terminated.
var HookPosTaskKill = &kernel.HookPos{Name: "TaskKill"}

// A Scheduler multiplexes cooperative tasks over the callbacks of one
// simulator session. Tasks resume in FIFO order from a run queue that is
// drained to empty before control returns to the simulator.
type Scheduler struct {
	kernel.HookableBase

	ctx *bridge.Context

	idGen kernel.IDGenerator

	runnable     []*Task
	pendingKills []*Task
	draining     bool

	// edgeWatches maps each (signal, edge) pair to the trigger holding
	// its armed callback, so every waiter on the pair joins that one
	// watch.
	edgeWatches map[edgeWatchKey]*EdgeTrigger

	tasks    []*Task
	failures []*Task
	fatal    error
}

// New creates a Scheduler over one adapter context.
func New(ctx *bridge.Context) *Scheduler {
	return &Scheduler{
		ctx:         ctx,
		idGen:       kernel.GetIDGenerator(),
		edgeWatches: make(map[edgeWatchKey]*EdgeTrigger),
	}
}

// Context returns the adapter context the scheduler runs over.
func (s *Scheduler) Context() *bridge.Context {
	return s.ctx
}

// Tasks returns every task ever spawned, in spawn order.
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Failures returns the tasks that terminated with an error, in the order
// they failed. A failing task never stops the other tasks of the pass.
func (s *Scheduler) Failures() []*Task {
	return s.failures
}

// Fatal returns the framework error that aborted the session, if any.
func (s *Scheduler) Fatal() error {
	return s.fatal
}

// Spawn creates a task and queues it for its first resumption. A task
// spawned while the run queue drains joins the tail of the same pass, so
// sibling tasks start in program order.
func (s *Scheduler) Spawn(name string, fn TaskFunc) *Task {
	task := &Task{
		sched:  s,
		id:     s.idGen.Generate(),
		name:   name,
		fn:     fn,
		state:  TaskRunnable,
		resume: make(chan resumeMsg),
		yield:  make(chan struct{}),
	}
	task.join = newJoin(task)

	s.tasks = append(s.tasks, task)
	s.invokeTaskHook(HookPosTaskSpawn, task)

	s.enqueue(task)
	s.drain()

	return task
}

func (s *Scheduler) enqueue(t *Task) {
	s.runnable = append(s.runnable, t)
}

func (s *Scheduler) requestKill(t *Task) {
	s.pendingKills = append(s.pendingKills, t)
	s.drain()
}

// drain resumes runnable tasks in FIFO order until none remain. Reentrant
// calls return immediately: wake-ups produced while a task runs are
// absorbed by the drain pass already on the stack.
func (s *Scheduler) drain() {
	if s.draining {
		return
	}

	s.draining = true
	defer func() { s.draining = false }()

	for len(s.pendingKills) > 0 || len(s.runnable) > 0 {
		if len(s.pendingKills) > 0 {
			t := s.pendingKills[0]
			s.pendingKills = s.pendingKills[1:]
			s.unwind(t)

			continue
		}

		t := s.runnable[0]
		s.runnable = s.runnable[1:]

		if t.done || t.state != TaskRunnable {
			continue
		}

		s.resumeTask(t)
	}
}

// resumeTask hands control to one task and blocks until it yields.
func (s *Scheduler) resumeTask(t *Task) {
	t.state = TaskRunning
	s.invokeTaskHook(HookPosTaskResume, t)

	if !t.started {
		t.started = true
		go t.run()
	} else {
		t.resume <- resumeMsg{}
	}

	<-t.yield
}

// unwind resumes a killed task's goroutine solely so its deferred cleanup
// runs, then waits for it to exit.
func (s *Scheduler) unwind(t *Task) {
	if t.done {
		return
	}

	t.resume <- resumeMsg{kill: true}
	<-t.yield
}

func (s *Scheduler) recordFailure(t *Task) {
	s.failures = append(s.failures, t)

	if isFatal(t.err) {
		s.fatal = t.err
		s.ctx.Finish()
	}
}

// isFatal separates framework errors from recoverable test failures.
func isFatal(err error) bool {
	var regErr *bridge.RegistrationError
	if errors.As(err, &regErr) {
		return true
	}

	var pv *bridge.ProtocolViolation

	return errors.As(err, &pv)
}

func (s *Scheduler) invokeTaskHook(pos *kernel.HookPos, t *Task) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(kernel.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   t,
	})
}
