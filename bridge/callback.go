package bridge

import (
	"fmt"
	"log"
	"os"
)

// CallbackState tracks where a callback handle is in its lifecycle.
type CallbackState int

// The callback states.
const (
	// CallbackFree means the handle is unarmed and eligible for reuse.
	CallbackFree CallbackState = iota

	// CallbackPrimed means the backend holds a pending registration.
	CallbackPrimed

	// CallbackCall means the delivery function is currently running.
	CallbackCall

	// CallbackDelete means cancellation was requested on a backend that
	// cannot unschedule; the callback fires once more and the delivery is
	// suppressed.
	CallbackDelete
)

var callbackStateNames = map[CallbackState]string{
	CallbackFree:   "FREE",
	CallbackPrimed: "PRIMED",
	CallbackCall:   "CALL",
	CallbackDelete: "DELETE",
}

func (s CallbackState) String() string {
	return callbackStateNames[s]
}

// A Callback is one pending or recurring request to be notified of an
// event. It is owned by the context that armed it.
type Callback struct {
	ctx *Context

	id       string
	reason   Reason
	edge     Edge
	target   *Handle
	deadline Time

	state   CallbackState
	backend BackendCallback
	handler func()
}

// ID returns the identifier of the callback handle.
func (cb *Callback) ID() string {
	return cb.id
}

// Reason returns the callback's reason code.
func (cb *Callback) Reason() Reason {
	return cb.reason
}

// State returns the callback's lifecycle state.
func (cb *Callback) State() CallbackState {
	return cb.state
}

// Target returns the handle a value-change callback watches, or nil.
func (cb *Callback) Target() *Handle {
	return cb.target
}

// deliver is the normalized delivery function every backend invokes. A
// delivery in FREE or CALL state indicates backend/bridge
// desynchronization and is fatal. A delivery in DELETE state is the one
// extra firing of a deferred cancellation: the user-visible effect is
// suppressed and the handle returns to the pool.
func (cb *Callback) deliver() {
	switch cb.state {
	case CallbackPrimed:
		cb.state = CallbackCall
		cb.handler()

		if cb.state == CallbackCall {
			cb.state = CallbackFree
			cb.release()
		}
	case CallbackDelete:
		cb.state = CallbackFree
		cb.release()
	default:
		log.Panicf(
			"protocol violation: %s callback %s delivered in state %s",
			cb.reason, cb.id, cb.state)
	}
}

// Rearm re-registers the callback with the backend from within its own
// delivery, turning it into a recurring callback.
func (cb *Callback) Rearm() error {
	if cb.state != CallbackCall {
		log.Panicf("callback %s rearmed in state %s", cb.id, cb.state)
	}

	backend, err := cb.ctx.adapter.Register(cb.request())
	if err != nil {
		return &RegistrationError{
			Backend: cb.ctx.adapter.Name(),
			Reason:  cb.reason,
			Err:     err,
		}
	}

	cb.backend = backend
	cb.state = CallbackPrimed

	return nil
}

// Cancel deregisters a primed callback. On backends without true
// cancellation the handle moves to DELETE and its one remaining firing is
// suppressed.
func (cb *Callback) Cancel() {
	if cb.state != CallbackPrimed {
		return
	}

	if cb.backend.Cancel() {
		cb.state = CallbackFree
		cb.release()

		return
	}

	cb.state = CallbackDelete
}

func (cb *Callback) request() CallbackRequest {
	req := CallbackRequest{
		Reason:  cb.reason,
		Edge:    cb.edge,
		Delay:   cb.deadline,
		Deliver: cb.deliver,
	}
	if cb.target != nil {
		req.Target = cb.target.obj
	}

	return req
}

func (cb *Callback) release() {
	cb.ctx.releaseCallback(cb)
}

// A callbackPool keeps FREE callback handles of one reason kind for reuse.
// At least one supported backend can never destroy the native scheduling
// primitive behind these handles, so they are acquired and released rather
// than allocated and freed.
type callbackPool struct {
	reason Reason
	free   []*Callback
}

func (p *callbackPool) acquire(ctx *Context) *Callback {
	if n := len(p.free); n > 0 {
		cb := p.free[n-1]
		p.free = p.free[:n-1]

		return cb
	}

	return &Callback{
		ctx:    ctx,
		id:     fmt.Sprintf("cb-%s-%d", p.reason, ctx.nextCallbackSeq()),
		reason: p.reason,
	}
}

func (p *callbackPool) put(cb *Callback) {
	cb.handler = nil
	cb.backend = nil
	cb.target = nil
	p.free = append(p.free, cb)
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "bridge: "+format+"\n", args...)
}
