// Package kback carries the plumbing every in-process backend shares: the
// mapping from kernel objects to bridge objects, value access, and callback
// registration against the kernel. The backend packages layer their own
// relationship tables, naming rules, and cancellation semantics on top.
package kback

import (
	"errors"
	"fmt"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
)

// MapKind translates a kernel object kind into the normalized kind.
func MapKind(k kernel.ObjectKind) bridge.Kind {
	switch k {
	case kernel.KindModule, kernel.KindGenScope:
		return bridge.KindModule
	case kernel.KindStruct:
		return bridge.KindStruct
	case kernel.KindNet, kernel.KindVariable:
		return bridge.KindLogic
	case kernel.KindParameter, kernel.KindInteger:
		return bridge.KindInteger
	case kernel.KindReal:
		return bridge.KindReal
	case kernel.KindString:
		return bridge.KindString
	case kernel.KindEnum:
		return bridge.KindEnum
	case kernel.KindArray:
		return bridge.KindArray
	}

	return bridge.KindLogic
}

func mapWriteErr(err error) error {
	if errors.Is(err, kernel.ErrReadOnlyPhase) {
		return bridge.ErrWriteInReadOnlyPhase
	}

	return err
}

// An Object adapts one kernel object to the bridge's Object interface.
// Backends that cannot name certain objects set unnamed.
type Object struct {
	K       *kernel.Kernel
	O       *kernel.Object
	unnamed bool
}

// NewObject wraps a kernel object.
func NewObject(k *kernel.Kernel, o *kernel.Object) *Object {
	return &Object{K: k, O: o}
}

// NewUnnamedObject wraps a kernel object the backend cannot name.
func NewUnnamedObject(k *kernel.Kernel, o *kernel.Object) *Object {
	return &Object{K: k, O: o, unnamed: true}
}

// Name returns the dotted hierarchical path, or an empty string for
// unnamed objects.
func (o *Object) Name() string {
	if o.unnamed {
		return ""
	}

	return o.O.Path()
}

// Kind returns the normalized semantic type.
func (o *Object) Kind() bridge.Kind {
	return MapKind(o.O.Kind())
}

// IsConst reports whether the object is an elaboration-time constant.
func (o *Object) IsConst() bool {
	return o.O.IsConst()
}

// Len returns the bit width of a logic object or the element count of an
// array.
func (o *Object) Len() int {
	if sig := o.O.Signal(); sig != nil {
		return sig.Width()
	}

	if o.O.Kind() == kernel.KindArray {
		return o.O.NumChildren()
	}

	return 0
}

// Range returns the declared index range.
func (o *Object) Range() (left, right int) {
	return o.O.Range()
}

// Kernel returns the underlying kernel object.
func (o *Object) Kernel() *kernel.Object {
	return o.O
}

// Logic reads the four-state value.
func (o *Object) Logic() (hdl.Vector, error) {
	sig := o.O.Signal()
	if sig == nil {
		return nil, fmt.Errorf("%s carries no logic value", o.O.Path())
	}

	return sig.Value(), nil
}

// Integer reads the raw integer storage.
func (o *Object) Integer() (int64, error) {
	switch o.O.Kind() {
	case kernel.KindParameter, kernel.KindInteger, kernel.KindEnum:
		return o.O.IntValue(), nil
	}

	return 0, fmt.Errorf("%s carries no integer value", o.O.Path())
}

// Real reads a real-valued object.
func (o *Object) Real() (float64, error) {
	if o.O.Kind() != kernel.KindReal {
		return 0, fmt.Errorf("%s carries no real value", o.O.Path())
	}

	return o.O.RealValue(), nil
}

// Str reads a string or enum-literal value.
func (o *Object) Str() (string, error) {
	switch o.O.Kind() {
	case kernel.KindString:
		return o.O.StringValue(), nil
	case kernel.KindEnum:
		return o.O.EnumName(), nil
	}

	return "", fmt.Errorf("%s carries no string value", o.O.Path())
}

var actionMap = map[bridge.Action]kernel.WriteAction{
	bridge.ActionDeposit:    kernel.WriteDeposit,
	bridge.ActionDepositNow: kernel.WriteImmediate,
	bridge.ActionForce:      kernel.WriteForce,
	bridge.ActionRelease:    kernel.WriteRelease,
	bridge.ActionFreeze:     kernel.WriteFreeze,
}

// SetLogic writes a four-state value with the given action semantics.
func (o *Object) SetLogic(v hdl.Vector, a bridge.Action) error {
	return mapWriteErr(o.K.SetLogic(o.O, v, actionMap[a]))
}

// SetInteger writes an integer object.
func (o *Object) SetInteger(v int64) error {
	return mapWriteErr(o.K.SetInt(o.O, v))
}

// SetReal writes a real-valued object.
func (o *Object) SetReal(v float64) error {
	return mapWriteErr(o.K.SetReal(o.O, v))
}

// SetStr writes a string object.
func (o *Object) SetStr(v string) error {
	return mapWriteErr(o.K.SetString(o.O, v))
}

// A Base carries the kernel plumbing every backend shares.
type Base struct {
	K *kernel.Kernel
}

// Now returns the kernel time split into the two 32-bit words the
// procedural interfaces use.
func (b *Base) Now() bridge.Time {
	return bridge.TimeFromUint64(uint64(b.K.CurrentTime()))
}

// Timescale returns the kernel's unit/precision pair.
func (b *Base) Timescale() kernel.Timescale {
	return b.K.Timescale()
}

// Finish asks the kernel to end the run.
func (b *Base) Finish() {
	b.K.RequestFinish()
}

// RegisterTimer arms a kernel timer. trueCancel selects whether the
// returned callback can truly unschedule it.
func (b *Base) RegisterTimer(
	req bridge.CallbackRequest,
	trueCancel bool,
) (bridge.BackendCallback, error) {
	t, err := b.K.AfterDelay(kernel.VTime(req.Delay.Uint64()), req.Deliver)
	if err != nil {
		return nil, err
	}

	return &timerCallback{base: b, timer: t, trueCancel: trueCancel}, nil
}

type timerCallback struct {
	base       *Base
	timer      *kernel.Timer
	trueCancel bool
}

func (c *timerCallback) Cancel() bool {
	if !c.trueCancel {
		return false
	}

	return c.base.K.CancelTimer(c.timer)
}

// RegisterValueChange arms a one-shot edge watch on a kernel object.
func (b *Base) RegisterValueChange(
	req bridge.CallbackRequest,
	trueCancel bool,
) (bridge.BackendCallback, error) {
	target, ok := req.Target.(*Object)
	if !ok {
		return nil, fmt.Errorf("value-change target is not a kernel object")
	}

	vc := &valueChangeCallback{
		base:       b,
		obj:        target.O,
		trueCancel: trueCancel,
	}

	subID, err := b.K.OnValueChange(target.O, func(old, new hdl.Vector) {
		if !edgeMatches(req.Edge, old, new) {
			return
		}

		vc.retire()
		req.Deliver()
	})
	if err != nil {
		return nil, err
	}

	vc.subID = subID

	return vc, nil
}

func edgeMatches(e bridge.Edge, old, new hdl.Vector) bool {
	switch e {
	case bridge.EdgeRising:
		return hdl.IsRising(old, new)
	case bridge.EdgeFalling:
		return hdl.IsFalling(old, new)
	}

	return true
}

type valueChangeCallback struct {
	base       *Base
	obj        *kernel.Object
	subID      int
	retired    bool
	trueCancel bool
}

func (c *valueChangeCallback) retire() {
	if c.retired {
		return
	}

	c.retired = true
	c.base.K.Unsubscribe(c.obj, c.subID)
}

func (c *valueChangeCallback) Cancel() bool {
	if !c.trueCancel {
		// The watch stays armed; the next matching edge delivers once more
		// and the bridge suppresses it.
		return false
	}

	c.retire()

	return true
}

// uncancelable is the backend callback for registrations no backend can
// unschedule, such as phase boundaries.
type uncancelable struct{}

func (uncancelable) Cancel() bool {
	return false
}

// RegisterPhase arms a phase-boundary or lifecycle callback.
func (b *Base) RegisterPhase(
	req bridge.CallbackRequest,
) (bridge.BackendCallback, error) {
	switch req.Reason {
	case bridge.ReasonReadWrite:
		if err := b.K.AtReadWrite(req.Deliver); err != nil {
			return nil, err
		}
	case bridge.ReasonReadOnly:
		if err := b.K.AtReadOnly(req.Deliver); err != nil {
			return nil, err
		}
	case bridge.ReasonNextTimeStep:
		b.K.AtNextTimeStep(req.Deliver)
	case bridge.ReasonStartOfSim:
		b.K.OnStart(req.Deliver)
	case bridge.ReasonEndOfSim:
		b.K.OnFinish(func(kernel.VTime) { req.Deliver() })
	default:
		return nil, fmt.Errorf("unsupported callback reason %s", req.Reason)
	}

	return uncancelable{}, nil
}

// A ChildIterator walks the children of one kernel scope, lazily, applying
// a backend-specific filter.
type ChildIterator struct {
	base    *Base
	objects []*kernel.Object
	idx     int
	pred    func(*kernel.Object) bool
	unnamed func(*kernel.Object) bool
}

// NewChildIterator creates an iterator over the children of a scope. pred
// selects the children this relationship exposes; unnamed (optional) marks
// children the backend cannot name.
func (b *Base) NewChildIterator(
	parent *kernel.Object,
	pred func(*kernel.Object) bool,
	unnamed func(*kernel.Object) bool,
) *ChildIterator {
	return &ChildIterator{
		base:    b,
		objects: b.K.Design().Children(parent),
		pred:    pred,
		unnamed: unnamed,
	}
}

// EmptyIterator is the iterator for relationships a backend does not
// support on an object.
type EmptyIterator struct{}

// Next always reports exhaustion.
func (EmptyIterator) Next() (bridge.Object, bool) {
	return nil, false
}

// Next produces the next matching child.
func (it *ChildIterator) Next() (bridge.Object, bool) {
	for it.idx < len(it.objects) {
		o := it.objects[it.idx]
		it.idx++

		if !it.pred(o) {
			continue
		}

		if it.unnamed != nil && it.unnamed(o) {
			return NewUnnamedObject(it.base.K, o), true
		}

		return NewObject(it.base.K, o), true
	}

	return nil, false
}
