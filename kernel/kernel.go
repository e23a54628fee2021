// Package kernel implements an embeddable discrete-event HDL simulator. It
// owns simulation time, the event queue, and signal value propagation,
// including the intra-step phase regions (active, read-write, read-only,
// next-time-step) that cosimulation interfaces expose.
package kernel

import (
	"errors"
	"log"
	"reflect"
	"sync"

	"github.com/cosimlab/cosim/hdl"
)

// Phase identifies the region of the current time step the kernel is in.
type Phase int

// The intra-step phases.
const (
	// PhaseActive is the region where events execute and writes are legal.
	PhaseActive Phase = iota

	// PhaseReadWrite is the settling region where writes are still legal.
	PhaseReadWrite

	// PhaseReadOnly is the region after all value propagation for the step
	// has settled. No write may be scheduled for this step.
	PhaseReadOnly
)

// WriteAction selects the semantics of a signal write.
type WriteAction int

// The write actions.
const (
	// WriteDeposit schedules a non-blocking write, visible after the current
	// delta settles.
	WriteDeposit WriteAction = iota

	// WriteImmediate commits the value right away.
	WriteImmediate

	// WriteForce commits the value and holds it until released.
	WriteForce

	// WriteRelease removes a force. The signal keeps its current value.
	WriteRelease

	// WriteFreeze holds the signal at its current value until released.
	WriteFreeze
)

// ErrReadOnlyPhase reports a write or same-step registration attempted
// during the read-only phase.
var ErrReadOnlyPhase = errors.New("operation not allowed in read-only phase")

// ErrConstWrite reports a write to a constant object.
var ErrConstWrite = errors.New("cannot write a constant object")

// ErrNotValued reports a value operation on a scope object.
var ErrNotValued = errors.New("object carries no value")

// A Timer is a pending delayed wake-up. Cancel retires it before it fires.
type Timer struct {
	evt *funcEvent
}

type depositOp struct {
	obj *Object
	val hdl.Vector
}

// A Kernel runs one design. It is the embedding simulator the bridge
// adapters attach to: it calls back into them at lifecycle points and they
// drive signals through it.
type Kernel struct {
	HookableBase

	design *Design
	ts     Timescale

	timeLock sync.RWMutex
	now      VTime

	queue EventQueue
	phase Phase

	deposits   []depositOp
	rwWaiters  []func()
	roWaiters  []func()
	ntsWaiters []func()

	startHandlers  []func()
	finishHandlers []func(now VTime)

	finishRequested bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewKernel creates a kernel for the given design and timescale.
func NewKernel(design *Design, ts Timescale) *Kernel {
	return &Kernel{
		design: design,
		ts:     ts,
		queue:  NewEventQueue(),
	}
}

// Design returns the design the kernel simulates.
func (k *Kernel) Design() *Design {
	return k.design
}

// Timescale returns the unit/precision pair of the simulation.
func (k *Kernel) Timescale() Timescale {
	return k.ts
}

// CurrentTime returns the current simulation time in femtoseconds.
func (k *Kernel) CurrentTime() VTime {
	k.timeLock.RLock()
	t := k.now
	k.timeLock.RUnlock()

	return t
}

// Phase returns the region of the time step the kernel is currently in.
func (k *Kernel) Phase() Phase {
	return k.phase
}

func (k *Kernel) writeNow(t VTime) {
	k.timeLock.Lock()
	k.now = t
	k.timeLock.Unlock()
}

// Schedule registers an event to happen in the future. Scheduling into the
// past is a programming error.
func (k *Kernel) Schedule(evt Event) {
	now := k.CurrentTime()
	if evt.Time() < now {
		log.Panic("scheduling an event earlier than current time")
	}

	if k.phase == PhaseReadOnly && evt.Time() == now {
		log.Panic("scheduling a same-step event in read-only phase")
	}

	k.queue.Push(evt)
}

// AfterDelay schedules fn to run after the given delay. A zero delay fires
// within the current time step, which is rejected during the read-only
// phase.
func (k *Kernel) AfterDelay(delay VTime, fn func()) (*Timer, error) {
	if delay == 0 && k.phase == PhaseReadOnly {
		return nil, ErrReadOnlyPhase
	}

	evt := &funcEvent{
		EventBase: *NewEventBase(k.CurrentTime()+delay, nil),
		fn:        fn,
	}
	k.queue.Push(evt)

	return &Timer{evt: evt}, nil
}

// CancelTimer retires a pending timer so it never fires. It returns false if
// the timer already fired or was already canceled.
func (k *Kernel) CancelTimer(t *Timer) bool {
	if t == nil || t.evt == nil || t.evt.canceled || t.evt.fired {
		return false
	}

	t.evt.canceled = true

	return true
}

// OnValueChange subscribes to committed value changes of a logic object.
func (k *Kernel) OnValueChange(
	o *Object,
	fn func(old, new hdl.Vector),
) (int, error) {
	if o.sig == nil {
		return 0, ErrNotValued
	}

	return o.sig.subscribe(fn), nil
}

// Unsubscribe removes a value-change subscription.
func (k *Kernel) Unsubscribe(o *Object, id int) {
	if o.sig != nil {
		o.sig.unsubscribe(id)
	}
}

// AtReadWrite registers a one-shot callback for the read-write settling
// region of the current time step.
func (k *Kernel) AtReadWrite(fn func()) error {
	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	k.rwWaiters = append(k.rwWaiters, fn)

	return nil
}

// AtReadOnly registers a one-shot callback for the read-only region of the
// current time step.
func (k *Kernel) AtReadOnly(fn func()) error {
	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	k.roWaiters = append(k.roWaiters, fn)

	return nil
}

// AtNextTimeStep registers a one-shot callback for the first event of a
// later time step.
func (k *Kernel) AtNextTimeStep(fn func()) {
	k.ntsWaiters = append(k.ntsWaiters, fn)
}

// OnStart registers a handler invoked once before the first event runs.
func (k *Kernel) OnStart(fn func()) {
	k.startHandlers = append(k.startHandlers, fn)
}

// OnFinish registers a handler invoked after the simulation ends.
func (k *Kernel) OnFinish(fn func(now VTime)) {
	k.finishHandlers = append(k.finishHandlers, fn)
}

// RequestFinish asks the kernel to stop after the current event drains.
func (k *Kernel) RequestFinish() {
	k.finishRequested = true
}

// Pause prevents the kernel from triggering more events.
func (k *Kernel) Pause() {
	k.isPausedLock.Lock()
	defer k.isPausedLock.Unlock()

	if k.isPaused {
		return
	}

	k.pauseLock.Lock()
	k.isPaused = true
}

// Continue allows a paused kernel to trigger more events.
func (k *Kernel) Continue() {
	k.isPausedLock.Lock()
	defer k.isPausedLock.Unlock()

	if !k.isPaused {
		return
	}

	k.pauseLock.Unlock()
	k.isPaused = false
}

// Run processes events until no work remains or a finish is requested. It
// fires the start handlers first and the finish handlers before returning.
func (k *Kernel) Run() error {
	k.singleRunLock.Lock()
	defer k.singleRunLock.Unlock()

	for _, h := range k.startHandlers {
		h()
	}

	for !k.finishRequested {
		if k.queue.Len() == 0 {
			k.settleStep()

			if k.queue.Len() == 0 {
				break
			}

			continue
		}

		if k.queue.Peek().Time() > k.CurrentTime() {
			if k.settleStep() {
				continue
			}

			// Settling may have scheduled an earlier wake-up.
			k.advanceTo(k.queue.Peek().Time())
		}

		k.runOneEvent()
	}

	now := k.CurrentTime()
	for _, h := range k.finishHandlers {
		h(now)
	}

	return nil
}

func (k *Kernel) runOneEvent() {
	k.pauseLock.Lock()
	defer k.pauseLock.Unlock()

	evt := k.queue.Pop()
	now := k.CurrentTime()
	if evt.Time() < now {
		log.Panicf(
			"cannot run event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt), evt.Time(), now,
		)
	}

	hookCtx := HookCtx{
		Domain: k,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	k.InvokeHook(hookCtx)

	handler := evt.Handler()
	if handler != nil {
		_ = handler.Handle(evt)
	}

	hookCtx.Pos = HookPosAfterEvent
	k.InvokeHook(hookCtx)
}

// settleStep runs the deposit commit, read-write, and read-only regions of
// the current time step. It returns true if same-step events remain in the
// queue and the caller should process them before settling further.
func (k *Kernel) settleStep() bool {
	now := k.CurrentTime()

	for {
		if k.queue.Len() > 0 && k.queue.Peek().Time() == now {
			return true
		}

		if len(k.deposits) > 0 {
			k.commitDeposits()
			continue
		}

		if len(k.rwWaiters) > 0 {
			waiters := k.rwWaiters
			k.rwWaiters = nil

			k.phase = PhaseReadWrite
			for _, w := range waiters {
				w()
			}
			k.phase = PhaseActive

			continue
		}

		if len(k.roWaiters) > 0 {
			waiters := k.roWaiters
			k.roWaiters = nil

			k.phase = PhaseReadOnly
			for _, w := range waiters {
				w()
			}
			k.phase = PhaseActive

			continue
		}

		return k.queue.Len() > 0 && k.queue.Peek().Time() == now
	}
}

func (k *Kernel) advanceTo(t VTime) {
	k.writeNow(t)

	k.InvokeHook(HookCtx{
		Domain: k,
		Pos:    HookPosTimeStep,
		Item:   t,
	})

	waiters := k.ntsWaiters
	k.ntsWaiters = nil
	for _, w := range waiters {
		w()
	}
}

func (k *Kernel) commitDeposits() {
	deposits := k.deposits
	k.deposits = nil

	for _, d := range deposits {
		if d.obj.sig.forced {
			continue
		}

		k.commitSignal(d.obj, d.val)
	}
}

func (k *Kernel) commitSignal(o *Object, v hdl.Vector) {
	old := o.sig.Value()
	o.sig.commit(v)

	if k.NumHooks() > 0 && !old.Equal(v) {
		k.InvokeHook(HookCtx{
			Domain: k,
			Pos:    HookPosSignalChange,
			Item:   o,
			Detail: v,
		})
	}
}

// SetLogic writes a four-state value to a net or variable with the given
// action semantics.
func (k *Kernel) SetLogic(o *Object, v hdl.Vector, a WriteAction) error {
	if o.constant {
		return ErrConstWrite
	}

	if o.sig == nil {
		return ErrNotValued
	}

	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	v = v.Resized(o.sig.Width())

	switch a {
	case WriteDeposit:
		k.deposits = append(k.deposits, depositOp{obj: o, val: v})
	case WriteImmediate:
		if !o.sig.forced {
			k.commitSignal(o, v)
		}
	case WriteForce:
		o.sig.forced = true
		k.commitSignal(o, v)
	case WriteRelease:
		o.sig.forced = false
	case WriteFreeze:
		o.sig.forced = true
	default:
		log.Panicf("unknown write action %d", a)
	}

	return nil
}

// SetInt writes an integer, parameter-guarded like any other write.
func (k *Kernel) SetInt(o *Object, v int64) error {
	if o.constant {
		return ErrConstWrite
	}

	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	switch o.kind {
	case KindInteger, KindParameter, KindEnum:
		o.intVal = v
	default:
		return ErrNotValued
	}

	return nil
}

// SetReal writes a real-valued variable.
func (k *Kernel) SetReal(o *Object, v float64) error {
	if o.constant {
		return ErrConstWrite
	}

	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	if o.kind != KindReal {
		return ErrNotValued
	}

	o.realVal = v

	return nil
}

// SetString writes a string variable.
func (k *Kernel) SetString(o *Object, v string) error {
	if o.constant {
		return ErrConstWrite
	}

	if k.phase == PhaseReadOnly {
		return ErrReadOnlyPhase
	}

	if o.kind != KindString {
		return ErrNotValued
	}

	o.strVal = v

	return nil
}

// IntValue reads the integer storage of a parameter or integer object.
func (o *Object) IntValue() int64 {
	return o.intVal
}

// RealValue reads the real storage of a real object.
func (o *Object) RealValue() float64 {
	return o.realVal
}

// StringValue reads the string storage of a string object.
func (o *Object) StringValue() string {
	return o.strVal
}

// EnumName returns the literal name of an enum object's current value, or
// an empty string when the value is out of range.
func (o *Object) EnumName() string {
	if o.intVal < 0 || int(o.intVal) >= len(o.enumNames) {
		return ""
	}

	return o.enumNames[o.intVal]
}
