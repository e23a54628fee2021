// Package vhpi implements the bridge adapter for the VHPI-style procedural
// interface. VHPI cannot unschedule a pending timer wake-up, so timer
// cancellation is deferred; structures are not scopes and must be iterated
// through the member-list query; every object, including array elements,
// carries a name.
package vhpi

import (
	"fmt"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/bridge/internal/kback"
	"github.com/cosimlab/cosim/kernel"
)

// BackendName is the name the adapter registers under.
const BackendName = "vhpi"

func init() {
	bridge.RegisterBackend(BackendName, func(k *kernel.Kernel) bridge.Adapter {
		return New(k)
	})
}

// An Adapter drives a kernel through VHPI conventions.
type Adapter struct {
	kback.Base
}

// New creates a VHPI adapter over a kernel.
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

// Child resolves a named child of a scope or structure.
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

// Index resolves one element of an array. VHPI names every element.
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

	return kback.NewObject(a.K, o), true
}

// RelationshipTable returns the ordered relationship queries VHPI supports
// for each object kind. Structures only answer the member-list query.
func (a *Adapter) RelationshipTable(kind bridge.Kind) []bridge.Relationship {
	switch kind {
	case bridge.KindModule:
		return []bridge.Relationship{
			bridge.RelSubScopes,
			bridge.RelVariables,
			bridge.RelNets,
			bridge.RelParameters,
		}
	case bridge.KindStruct:
		return []bridge.Relationship{bridge.RelMembers}
	case bridge.KindArray:
		return []bridge.Relationship{bridge.RelElements}
	}

	return nil
}

// Iterate walks one relationship of one object. The scope query returns
// nothing for structures; only the member-list query sees their fields.
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
		if po.Kind() == kernel.KindStruct {
			return kback.EmptyIterator{}
		}

		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindModule ||
				o.Kind() == kernel.KindGenScope
		}, nil)
	case bridge.RelNets:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindNet
		}, nil)
	case bridge.RelVariables:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			switch o.Kind() {
			case kernel.KindVariable, kernel.KindInteger, kernel.KindReal,
				kernel.KindString, kernel.KindEnum, kernel.KindArray,
				kernel.KindStruct:
				return true
			}

			return false
		}, nil)
	case bridge.RelParameters:
		return a.NewChildIterator(po, func(o *kernel.Object) bool {
			return o.Kind() == kernel.KindParameter
		}, nil)
	case bridge.RelMembers:
		if po.Kind() != kernel.KindStruct {
			return kback.EmptyIterator{}
		}

		return a.NewChildIterator(po,
			func(o *kernel.Object) bool { return true }, nil)
	case bridge.RelElements:
		if po.Kind() != kernel.KindArray {
			return kback.EmptyIterator{}
		}

		return a.NewChildIterator(po,
			func(o *kernel.Object) bool { return true }, nil)
	}

	return kback.EmptyIterator{}
}

// Register arms one callback. Timer cancellation is deferred: the wake-up
// fires once more and the bridge suppresses the delivery.
func (a *Adapter) Register(
	req bridge.CallbackRequest,
) (bridge.BackendCallback, error) {
	switch req.Reason {
	case bridge.ReasonAfterDelay:
		return a.RegisterTimer(req, false)
	case bridge.ReasonValueChange:
		return a.RegisterValueChange(req, true)
	}

	return a.RegisterPhase(req)
}
