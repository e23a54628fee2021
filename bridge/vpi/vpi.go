// Package vpi implements the bridge adapter for the VPI-style procedural
// interface. VPI offers true cancellation of pending callbacks, exposes
// generate blocks as first-class scopes, and iterates structures with the
// same scope queries as modules, but it cannot name array elements.
package vpi

import (
	"fmt"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/bridge/internal/kback"
	"github.com/cosimlab/cosim/kernel"
)

// BackendName is the name the adapter registers under.
const BackendName = "vpi"

func init() {
	bridge.RegisterBackend(BackendName, func(k *kernel.Kernel) bridge.Adapter {
		return New(k)
	})
}

// An Adapter drives a kernel through VPI conventions.
type Adapter struct {
	kback.Base
}

// New creates a VPI adapter over a kernel.
func New(k *kernel.Kernel) *Adapter {
	a := &Adapter{}
	a.K = k

	return a
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return BackendName
}

// Root resolves a top-level object by name.
func (a *Adapter) Root(name string) (bridge.Object, bool) {
	o, ok := a.K.Design().FindByPath(name)
	if !ok {
		return nil, false
	}

	return kback.NewObject(a.K, o), true
}

// Child resolves a named child of a scope.
func (a *Adapter) Child(
	parent bridge.Object,
	name string,
) (bridge.Object, bool) {
	p, ok := parent.(*kback.Object)
	if !ok {
		return nil, false
	}

	o, ok := a.K.Design().FindByPath(p.Kernel().Path() + "." + name)
	if !ok {
		return nil, false
	}

	return kback.NewObject(a.K, o), true
}

// Index resolves one element of an array. VPI cannot name array elements,
// so the result carries no name and is surfaced as a raw reference.
func (a *Adapter) Index(parent bridge.Object, i int) (bridge.Object, bool) {
	p, ok := parent.(*kback.Object)
	if !ok {
		return nil, false
	}

	o, ok := a.K.Design().FindByPath(
		fmt.Sprintf("%s[%d]", p.Kernel().Path(), i))
	if !ok {
		return nil, false
	}

	return kback.NewUnnamedObject(a.K, o), true
}

// RelationshipTable returns the ordered relationship queries VPI supports
// for each object kind. Structures answer the same scope queries as
// modules.
func (a *Adapter) RelationshipTable(kind bridge.Kind) []bridge.Relationship {
	switch kind {
	case bridge.KindModule, bridge.KindStruct:
		return []bridge.Relationship{
			bridge.RelSubScopes,
			bridge.RelNets,
			bridge.RelVariables,
			bridge.RelParameters,
		}
	case bridge.KindArray:
		return []bridge.Relationship{bridge.RelElements}
	}

	return nil
}

// Iterate walks one relationship of one object.
func (a *Adapter) Iterate(
	parent bridge.Object,
	rel bridge.Relationship,
) bridge.ObjectIterator {
	p, ok := parent.(*kback.Object)
	if !ok {
		return kback.EmptyIterator{}
	}

	po := p.Kernel()

	switch rel {
	case bridge.RelSubScopes:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindModule ||
				o.Kind() == kernel.KindGenScope ||
				o.Kind() == kernel.KindStruct
		}, nil)
	case bridge.RelNets:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindNet
		}, nil)
	case bridge.RelVariables:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			switch o.Kind() {
			case kernel.KindVariable, kernel.KindInteger, kernel.KindReal,
				kernel.KindString, kernel.KindEnum, kernel.KindArray:
				return true
			}

			return false
		}, nil)
	case bridge.RelParameters:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindParameter
		}, nil)
	case bridge.RelElements:
		if po.Kind() != kernel.KindArray {
			return kback.EmptyIterator{}
		}

		return a.NewChildIterator(po,
			func(o *kernel.Object) bool { return true },
			func(o *kernel.Object) bool { return true },
		)
	}

	return kback.EmptyIterator{}
}

// Register arms one callback. VPI can truly cancel both timers and value
// changes.
func (a *Adapter) Register(
	req bridge.CallbackRequest,
) (bridge.BackendCallback, error) {
	switch req.Reason {
	case bridge.ReasonAfterDelay:
		return a.RegisterTimer(req, true)
	case bridge.ReasonValueChange:
		return a.RegisterValueChange(req, true)
	}

	return a.RegisterPhase(req)
}
