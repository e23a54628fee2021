package bridge

// An IterResult is one object produced by hierarchy traversal. Objects the
// backend recognizes but cannot name carry a raw reference instead of a
// handle, so a fallback resolution strategy can still construct one via
// Context.HandleFromRaw.
type IterResult struct {
	Handle *Handle
	Raw    Object
}

// Named reports whether the result carries a resolved handle.
func (r IterResult) Named() bool {
	return r.Handle != nil
}

// A HierarchyIterator walks the children of one handle. It tries the
// backend's relationship queries in priority order, moving to the next
// relationship when the current one is exhausted. It is lazy, finite, and
// not restartable; a fresh call to IterateChildren re-walks from the
// backend.
type HierarchyIterator struct {
	ctx    *Context
	parent *Handle
	table  []Relationship
	cur    ObjectIterator
}

// IterateChildren starts a traversal of the children of a handle.
func (c *Context) IterateChildren(parent *Handle) *HierarchyIterator {
	return &HierarchyIterator{
		ctx:    c,
		parent: parent,
		table:  c.adapter.RelationshipTable(parent.kind),
	}
}

// Next produces the next child, or false when every relationship in the
// table is exhausted.
func (it *HierarchyIterator) Next() (IterResult, bool) {
	for {
		if it.cur == nil {
			if len(it.table) == 0 {
				return IterResult{}, false
			}

			it.cur = it.ctx.adapter.Iterate(it.parent.obj, it.table[0])
			it.table = it.table[1:]
		}

		obj, ok := it.cur.Next()
		if !ok {
			it.cur = nil
			continue
		}

		if obj.Name() == "" {
			return IterResult{Raw: obj}, true
		}

		return IterResult{Handle: it.ctx.wrap(obj, it.parent.id)}, true
	}
}

// Collect drains the iterator into a slice of results.
func (it *HierarchyIterator) Collect() []IterResult {
	var out []IterResult
	for {
		r, ok := it.Next()
		if !ok {
			return out
		}

		out = append(out, r)
	}
}
