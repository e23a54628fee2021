package tracing

import (
	"github.com/tebeka/atexit"

	"github.com/cosimlab/cosim/datarecording"
	"github.com/cosimlab/cosim/kernel"
	"github.com/cosimlab/cosim/sched"
)

// A DBTracer stores task lifecycle records into a database. Attach it to a
// scheduler with AttachTo; every spawn, resumption, suspension, and
// termination it observes becomes a row.
type DBTracer struct {
	timeTeller kernel.TimeTeller
	backend    datarecording.DataRecorder

	openSlices map[string]uint64
	spawnTimes map[string]uint64
}

// NewDBTracer creates a DBTracer writing to the given recorder.
func NewDBTracer(
	timeTeller kernel.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable("tasks", TaskRecord{})
	dataRecorder.CreateTable("task_slices", SliceRecord{})

	t := &DBTracer{
		timeTeller: timeTeller,
		backend:    dataRecorder,
		openSlices: make(map[string]uint64),
		spawnTimes: make(map[string]uint64),
	}

	atexit.Register(func() { t.backend.Flush() })

	return t
}

// AttachTo hooks the tracer into a scheduler.
func (t *DBTracer) AttachTo(s *sched.Scheduler) {
	s.AcceptHook(t)
}

// Func dispatches one scheduler hook invocation.
func (t *DBTracer) Func(ctx kernel.HookCtx) {
	task, ok := ctx.Item.(*sched.Task)
	if !ok {
		return
	}

	now := uint64(t.timeTeller.CurrentTime())

	switch ctx.Pos {
	case sched.HookPosTaskSpawn:
		t.spawnTimes[task.ID()] = now
	case sched.HookPosTaskResume:
		t.openSlices[task.ID()] = now
	case sched.HookPosTaskSuspend:
		t.closeSlice(task, now)
	case sched.HookPosTaskComplete:
		t.endTask(task, now, "finished")
	case sched.HookPosTaskFail:
		t.endTask(task, now, "failed")
	case sched.HookPosTaskKill:
		t.endTask(task, now, "killed")
	}
}

func (t *DBTracer) closeSlice(task *sched.Task, now uint64) {
	start, ok := t.openSlices[task.ID()]
	if !ok {
		return
	}

	delete(t.openSlices, task.ID())

	t.backend.InsertData("task_slices", SliceRecord{
		TaskID:    task.ID(),
		StartTime: start,
		EndTime:   now,
	})
}

func (t *DBTracer) endTask(task *sched.Task, now uint64, outcome string) {
	t.closeSlice(task, now)

	errMsg := ""
	if task.Err() != nil {
		errMsg = task.Err().Error()
	}

	t.backend.InsertData("tasks", TaskRecord{
		ID:        task.ID(),
		Name:      task.Name(),
		Outcome:   outcome,
		Error:     errMsg,
		SpawnTime: t.spawnTimes[task.ID()],
		EndTime:   now,
	})

	delete(t.spawnTimes, task.ID())
}
