package sched

import (
	"github.com/cosimlab/cosim/bridge"
)

// A Trigger is a condition a task can suspend on. Triggers arm their
// backend callback lazily, on the first waiter, and disarm it when the
// last waiter deregisters.
type Trigger interface {
	prime(s *Scheduler, w waiter) error
	unprime(w waiter)
}

// A waiter is woken when a trigger it is registered against fires. Tasks
// and combinators are both waiters.
type waiter interface {
	wake(tr Trigger)
}

// triggerBase keeps the waiter list shared by all trigger kinds. Waiters
// wake in registration order.
type triggerBase struct {
	waiters []waiter
}

func (b *triggerBase) addWaiter(w waiter) {
	b.waiters = append(b.waiters, w)
}

func (b *triggerBase) removeWaiter(w waiter) {
	for i, x := range b.waiters {
		if x == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)

			return
		}
	}
}

func (b *triggerBase) numWaiters() int {
	return len(b.waiters)
}

// fireWaiters moves every waiter to the run queue before any of them
// resumes. The list is cleared first so a woken task re-waiting on the
// same trigger registers freshly.
func (b *triggerBase) fireWaiters(self Trigger) {
	ws := b.waiters
	b.waiters = nil

	for _, w := range ws {
		w.wake(self)
	}
}

// A Timer fires once after a fixed simulated-time delay.
type Timer struct {
	triggerBase

	units uint64
	cb    *bridge.Callback
}

// NewTimer creates a trigger that fires after n units of the session
// timescale.
func NewTimer(n uint64) *Timer {
	return &Timer{units: n}
}

func (t *Timer) prime(s *Scheduler, w waiter) error {
	t.addWaiter(w)

	if t.cb != nil {
		return nil
	}

	delay := uint64(s.ctx.Timescale().ToVTime(t.units))
	cb, err := s.ctx.ArmTimer(delay, func() {
		t.cb = nil
		t.fireWaiters(t)
		s.drain()
	})
	if err != nil {
		t.removeWaiter(w)

		return err
	}

	t.cb = cb

	return nil
}

func (t *Timer) unprime(w waiter) {
	t.removeWaiter(w)

	if t.numWaiters() == 0 && t.cb != nil {
		t.cb.Cancel()
		t.cb = nil
	}
}

// An edgeWatchKey identifies one (signal, edge) pair in the scheduler's
// shared-watch registry.
type edgeWatchKey struct {
	handleID int
	edge     bridge.Edge
}

// An EdgeTrigger fires on a transition of one signal. Independently
// constructed triggers for the same (signal, edge) pair share one armed
// watch through the scheduler, so a second waiter never displaces the
// callback of the first.
type EdgeTrigger struct {
	triggerBase

	handle *bridge.Handle
	edge   bridge.Edge
	cb     *bridge.Callback
	sched  *Scheduler
	shared *EdgeTrigger
}

// RisingEdge creates a trigger that fires when the signal's LSB moves
// to 1 from any other state.
func RisingEdge(h *bridge.Handle) *EdgeTrigger {
	return &EdgeTrigger{handle: h, edge: bridge.EdgeRising}
}

// FallingEdge creates a trigger that fires when the signal's LSB moves
// to 0 from any other state.
func FallingEdge(h *bridge.Handle) *EdgeTrigger {
	return &EdgeTrigger{handle: h, edge: bridge.EdgeFalling}
}

// Edge creates a trigger that fires on any value change of the signal.
func Edge(h *bridge.Handle) *EdgeTrigger {
	return &EdgeTrigger{handle: h, edge: bridge.EdgeEither}
}

// Handle returns the watched signal.
func (t *EdgeTrigger) Handle() *bridge.Handle {
	return t.handle
}

func (t *EdgeTrigger) prime(s *Scheduler, w waiter) error {
	key := edgeWatchKey{handleID: t.handle.ID(), edge: t.edge}

	// Join the watch already armed for the pair, registering this trigger
	// with it once. Waiters keep this trigger as their identity.
	if cur, ok := s.edgeWatches[key]; ok && cur != t {
		t.addWaiter(w)

		if t.shared == nil {
			t.shared = cur
			if err := cur.prime(s, t); err != nil {
				t.removeWaiter(w)
				t.shared = nil

				return err
			}
		}

		return nil
	}

	t.addWaiter(w)

	if t.cb != nil {
		return nil
	}

	cb, err := s.ctx.ArmValueChange(t.handle, t.edge, func() {
		t.cb = nil
		delete(s.edgeWatches, key)
		t.fireWaiters(t)
		s.drain()
	})
	if err != nil {
		t.removeWaiter(w)

		return err
	}

	t.cb = cb
	t.sched = s
	s.edgeWatches[key] = t

	return nil
}

// wake relays a firing of the shared watch to this trigger's own waiters.
func (t *EdgeTrigger) wake(Trigger) {
	t.shared = nil
	t.fireWaiters(t)
}

func (t *EdgeTrigger) unprime(w waiter) {
	if t.shared != nil {
		t.removeWaiter(w)

		if t.numWaiters() == 0 {
			cur := t.shared
			t.shared = nil
			cur.unprime(t)
		}

		return
	}

	t.removeWaiter(w)

	if t.numWaiters() == 0 && t.cb != nil {
		t.cb.Cancel()
		t.cb = nil
		delete(t.sched.edgeWatches,
			edgeWatchKey{handleID: t.handle.ID(), edge: t.edge})
	}
}

// phaseKind selects which phase boundary a PhaseTrigger waits for.
type phaseKind int

const (
	phaseReadWrite phaseKind = iota
	phaseReadOnly
	phaseNextTimeStep
)

// A PhaseTrigger fires at a phase boundary of the current time step.
type PhaseTrigger struct {
	triggerBase

	kind phaseKind
	cb   *bridge.Callback
}

// ReadWrite creates a trigger that fires when writes are permitted again
// in the current time step.
func ReadWrite() *PhaseTrigger {
	return &PhaseTrigger{kind: phaseReadWrite}
}

// ReadOnly creates a trigger that fires when all values of the current
// time step are final.
func ReadOnly() *PhaseTrigger {
	return &PhaseTrigger{kind: phaseReadOnly}
}

// NextTimeStep creates a trigger that fires when simulated time next
// advances.
func NextTimeStep() *PhaseTrigger {
	return &PhaseTrigger{kind: phaseNextTimeStep}
}

func (t *PhaseTrigger) prime(s *Scheduler, w waiter) error {
	t.addWaiter(w)

	if t.cb != nil {
		return nil
	}

	deliver := func() {
		t.cb = nil
		t.fireWaiters(t)
		s.drain()
	}

	var cb *bridge.Callback
	var err error

	switch t.kind {
	case phaseReadWrite:
		cb, err = s.ctx.ArmReadWrite(deliver)
	case phaseReadOnly:
		cb, err = s.ctx.ArmReadOnly(deliver)
	case phaseNextTimeStep:
		cb, err = s.ctx.ArmNextTimeStep(deliver)
	}

	if err != nil {
		t.removeWaiter(w)

		return err
	}

	t.cb = cb

	return nil
}

func (t *PhaseTrigger) unprime(w waiter) {
	t.removeWaiter(w)

	if t.numWaiters() == 0 && t.cb != nil {
		t.cb.Cancel()
		t.cb = nil
	}
}

// A Join is the completion trigger of one task. Waiting on an already
// finished task continues without suspending.
type Join struct {
	triggerBase

	task  *Task
	fired bool
}

func newJoin(t *Task) *Join {
	return &Join{task: t}
}

// Task returns the task the trigger completes with.
func (j *Join) Task() *Task {
	return j.task
}

func (j *Join) prime(s *Scheduler, w waiter) error {
	if j.task.done {
		w.wake(j)

		return nil
	}

	j.addWaiter(w)

	return nil
}

func (j *Join) unprime(w waiter) {
	j.removeWaiter(w)
}

func (j *Join) fire(s *Scheduler) {
	if j.fired {
		return
	}

	j.fired = true
	j.fireWaiters(j)
	s.drain()
}

// terminalError is what awaiting the join propagates. A finished task
// propagates nil, a failed task its error, a killed task ErrTaskKilled.
func (j *Join) terminalError() error {
	return j.task.err
}
