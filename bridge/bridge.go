package bridge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
)

var (
	factoryMutex     sync.Mutex
	adapterFactories = make(map[string]func(*kernel.Kernel) Adapter)
)

// RegisterBackend registers an adapter factory under a backend name. Each
// backend package calls it from its load entry point.
func RegisterBackend(name string, factory func(*kernel.Kernel) Adapter) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()

	if _, dup := adapterFactories[name]; dup {
		panic("backend " + name + " registered twice")
	}

	adapterFactories[name] = factory
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()

	names := make([]string, 0, len(adapterFactories))
	for n := range adapterFactories {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// NewAdapter instantiates the named backend over a kernel.
func NewAdapter(name string, k *kernel.Kernel) (Adapter, error) {
	factoryMutex.Lock()
	factory, ok := adapterFactories[name]
	factoryMutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("no backend registered under %q", name)
	}

	return factory(k), nil
}

type edgeKey struct {
	handleID int
	edge     Edge
}

// A Context is the process-scoped state of one simulation run: the handle
// arena, the callback pools, and the unknown-bit resolver. It is created at
// start-of-simulation and torn down at end-of-simulation; every adapter
// callback receives it explicitly.
type Context struct {
	adapter  Adapter
	resolver *hdl.Resolver

	handles []*Handle
	byName  map[string]int

	edgeCallbacks map[edgeKey]*Callback
	pools         map[Reason]*callbackPool
	callbackSeq   int
}

// NewContext creates the context for one run.
func NewContext(adapter Adapter, resolver *hdl.Resolver) *Context {
	c := &Context{
		adapter:       adapter,
		resolver:      resolver,
		byName:        make(map[string]int),
		edgeCallbacks: make(map[edgeKey]*Callback),
		pools:         make(map[Reason]*callbackPool),
	}

	for _, r := range []Reason{
		ReasonAfterDelay, ReasonReadWrite, ReasonReadOnly, ReasonNextTimeStep,
	} {
		c.pools[r] = &callbackPool{reason: r}
	}

	return c
}

// Adapter returns the backend adapter the context drives.
func (c *Context) Adapter() Adapter {
	return c.adapter
}

// Resolver returns the unknown-bit resolver of the run.
func (c *Context) Resolver() *hdl.Resolver {
	return c.resolver
}

// Now returns the current simulation time in femtoseconds.
func (c *Context) Now() uint64 {
	return c.adapter.Now().Uint64()
}

// Timescale returns the unit/precision pair of the run.
func (c *Context) Timescale() kernel.Timescale {
	return c.adapter.Timescale()
}

// Finish asks the embedding simulator to end the run.
func (c *Context) Finish() {
	c.adapter.Finish()
}

// NumHandles returns the number of handles resolved so far.
func (c *Context) NumHandles() int {
	return len(c.handles)
}

func (c *Context) nextCallbackSeq() int {
	c.callbackSeq++

	return c.callbackSeq
}

// wrap caches a backend object into a handle. Objects with names are
// deduplicated by name; re-resolution replaces the native reference.
func (c *Context) wrap(obj Object, parent int) *Handle {
	name := obj.Name()
	if name != "" {
		if id, ok := c.byName[name]; ok {
			h := c.handles[id]
			h.rebind(obj)

			return h
		}
	}

	left, right := obj.Range()
	h := &Handle{
		ctx:      c,
		id:       len(c.handles),
		parent:   parent,
		obj:      obj,
		name:     name,
		kind:     obj.Kind(),
		constant: obj.IsConst(),
		length:   obj.Len(),
		left:     left,
		right:    right,
	}

	c.handles = append(c.handles, h)
	if name != "" {
		c.byName[name] = h.id
	}

	return h
}

// RootHandle resolves a top-level object by name. A miss is an absence,
// not an error.
func (c *Context) RootHandle(name string) (*Handle, bool) {
	if id, ok := c.byName[name]; ok {
		return c.handles[id], true
	}

	obj, ok := c.adapter.Root(name)
	if !ok {
		return nil, false
	}

	return c.wrap(obj, -1), true
}

// ChildHandle resolves a named child of a scope handle.
func (c *Context) ChildHandle(parent *Handle, name string) (*Handle, bool) {
	full := parent.name + "." + name
	if id, ok := c.byName[full]; ok {
		return c.handles[id], true
	}

	obj, ok := c.adapter.Child(parent.obj, name)
	if !ok {
		return nil, false
	}

	return c.wrap(obj, parent.id), true
}

// IndexHandle resolves one element of an indexable handle.
func (c *Context) IndexHandle(parent *Handle, i int) (*Handle, bool) {
	obj, ok := c.adapter.Index(parent.obj, i)
	if !ok {
		return nil, false
	}

	return c.wrap(obj, parent.id), true
}

// HandleFromRaw constructs a handle from a raw backend reference. This is
// the fallback resolution strategy for "native but unnamed" iteration
// results.
func (c *Context) HandleFromRaw(obj Object) *Handle {
	return c.wrap(obj, -1)
}

// arm acquires a callback handle, registers it with the backend, and moves
// it FREE -> PRIMED.
func (c *Context) arm(
	reason Reason,
	edge Edge,
	target *Handle,
	deadline Time,
	handler func(),
) (*Callback, error) {
	var cb *Callback
	if pool, pooled := c.pools[reason]; pooled {
		cb = pool.acquire(c)
	} else {
		cb = &Callback{
			ctx:    c,
			id:     fmt.Sprintf("cb-%s-%d", reason, c.nextCallbackSeq()),
			reason: reason,
		}
	}

	cb.edge = edge
	cb.target = target
	cb.deadline = deadline
	cb.handler = handler

	if reason == ReasonValueChange {
		key := edgeKey{handleID: target.id, edge: edge}
		if prev, ok := c.edgeCallbacks[key]; ok && prev.state == CallbackPrimed {
			warnf("re-arming %s watch on %s before the previous one fired; "+
				"cleaning up callback %s", edge, target.name, prev.id)
			prev.Cancel()
		}

		c.edgeCallbacks[key] = cb
	}

	backend, err := c.adapter.Register(cb.request())
	if err != nil {
		cb.state = CallbackFree
		cb.release()

		return nil, &RegistrationError{
			Backend: c.adapter.Name(),
			Reason:  reason,
			Err:     err,
		}
	}

	cb.backend = backend
	cb.state = CallbackPrimed

	return cb, nil
}

func (c *Context) releaseCallback(cb *Callback) {
	if cb.reason == ReasonValueChange && cb.target != nil {
		key := edgeKey{handleID: cb.target.id, edge: cb.edge}
		if c.edgeCallbacks[key] == cb {
			delete(c.edgeCallbacks, key)
		}
	}

	if pool, pooled := c.pools[cb.reason]; pooled {
		pool.put(cb)
	}
}

// ArmTimer arms an after-delay callback at now + delay femtoseconds.
func (c *Context) ArmTimer(delay uint64, handler func()) (*Callback, error) {
	return c.arm(
		ReasonAfterDelay, EdgeEither, nil, TimeFromUint64(delay), handler)
}

// ArmValueChange arms a value-change callback on a handle. At most one
// primed callback may exist per (handle, edge) pair; re-arming first cleans
// up the previous one.
func (c *Context) ArmValueChange(
	target *Handle,
	edge Edge,
	handler func(),
) (*Callback, error) {
	return c.arm(ReasonValueChange, edge, target, Time{}, handler)
}

// ArmReadWrite arms a read-write phase-boundary callback.
func (c *Context) ArmReadWrite(handler func()) (*Callback, error) {
	return c.arm(ReasonReadWrite, EdgeEither, nil, Time{}, handler)
}

// ArmReadOnly arms a read-only phase-boundary callback.
func (c *Context) ArmReadOnly(handler func()) (*Callback, error) {
	return c.arm(ReasonReadOnly, EdgeEither, nil, Time{}, handler)
}

// ArmNextTimeStep arms a callback for the first event of a later time step.
func (c *Context) ArmNextTimeStep(handler func()) (*Callback, error) {
	return c.arm(ReasonNextTimeStep, EdgeEither, nil, Time{}, handler)
}

// OnSimStart arms the start-of-simulation callback.
func (c *Context) OnSimStart(handler func()) (*Callback, error) {
	return c.arm(ReasonStartOfSim, EdgeEither, nil, Time{}, handler)
}

// OnSimEnd arms the end-of-simulation callback.
func (c *Context) OnSimEnd(handler func()) (*Callback, error) {
	return c.arm(ReasonEndOfSim, EdgeEither, nil, Time{}, handler)
}
