// Package fli implements the bridge adapter for the FLI-style procedural
// interface, the most limited of the three. FLI can never destroy the
// native primitive behind a scheduled callback, so every cancellation is
// deferred and the bridge's per-reason pooling carries the permanently
// leaked registrations. It has a single one-to-many query, does not expose
// generate blocks as scopes, and synthesizes them from "name[idx]" suffix
// parsing instead.
package fli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/bridge/internal/kback"
	"github.com/cosimlab/cosim/kernel"
)

// BackendName is the name the adapter registers under.
const BackendName = "fli"

func init() {
	bridge.RegisterBackend(BackendName, func(k *kernel.Kernel) bridge.Adapter {
		return New(k)
	})
}

// An Adapter drives a kernel through FLI conventions.
type Adapter struct {
	kback.Base
}

// New creates an FLI adapter over a kernel.
func New(k *kernel.Kernel) *Adapter {
	a := &Adapter{}
	a.K = k

	return a
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return BackendName
}

// parseIndexSuffix splits a "name[idx]" spelling into its base name and
// iteration index.
func parseIndexSuffix(name string) (base string, idx int, ok bool) {
	open := strings.IndexRune(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", 0, false
	}

	idx, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil {
		return "", 0, false
	}

	return name[:open], idx, true
}

// Root resolves a top-level object by name.
func (a *Adapter) Root(name string) (bridge.Object, bool) {
	o, ok := a.K.Design().FindByPath(name)
	if !ok {
		return nil, false
	}

	return kback.NewObject(a.K, o), true
}

// Child resolves a named child. A bracketed name is a generate-block
// iteration the backend has no first-class scope for: the pseudo-scope is
// synthesized from the parsed base name and index.
func (a *Adapter) Child(
	parent bridge.Object,
	name string,
) (bridge.Object, bool) {
	p, ok := parent.(*kback.Object)
	if !ok {
		return nil, false
	}

	if base, idx, bracketed := parseIndexSuffix(name); bracketed {
		if o, ok := a.synthesizeGenScope(p.Kernel(), base, idx); ok {
			return o, true
		}

		// Not a generate iteration; fall through for array elements.
	}

	o, ok := a.K.Design().FindByPath(p.Kernel().Path() + "." + name)
	if !ok || o.Kind() == kernel.KindGenScope {
		return nil, false
	}

	return kback.NewObject(a.K, o), true
}

// synthesizeGenScope builds a pseudo-scope for one generate iteration by
// matching children against the parsed index prefix.
func (a *Adapter) synthesizeGenScope(
	parent *kernel.Object,
	base string,
	idx int,
) (bridge.Object, bool) {
	want := fmt.Sprintf("%s[%d]", base, idx)
	for _, child := range a.K.Design().Children(parent) {
		if child.Kind() != kernel.KindGenScope {
			continue
		}

		if child.Name() == want {
			return kback.NewObject(a.K, child), true
		}
	}

	return nil, false
}

// Index resolves one element of an array.
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

// RelationshipTable returns the single children query FLI has for every
// container kind.
func (a *Adapter) RelationshipTable(kind bridge.Kind) []bridge.Relationship {
	switch kind {
	case bridge.KindModule, bridge.KindStruct, bridge.KindArray:
		return []bridge.Relationship{bridge.RelMembers}
	}

	return nil
}

// Iterate walks the children query. Generate-block scopes are invisible to
// it; their contents are only reachable through synthesized pseudo-scopes.
func (a *Adapter) Iterate(
	parent bridge.Object,
	rel bridge.Relationship,
) bridge.ObjectIterator {
	p, ok := parent.(*kback.Object)
	if !ok || rel != bridge.RelMembers {
		return kback.EmptyIterator{}
	}

	return a.NewChildIterator(p.Kernel(), func(o *kernel.Object) bool {
		return o.Kind() != kernel.KindGenScope
	}, nil)
}

// Register arms one callback. FLI cancellations are always deferred.
func (a *Adapter) Register(
	req bridge.CallbackRequest,
) (bridge.BackendCallback, error) {
	switch req.Reason {
	case bridge.ReasonAfterDelay:
		return a.RegisterTimer(req, false)
	case bridge.ReasonValueChange:
		return a.RegisterValueChange(req, false)
	}

	return a.RegisterPhase(req)
}
