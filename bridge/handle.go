package bridge

import (
	"errors"

	"github.com/cosimlab/cosim/hdl"
)

// A Handle identifies one simulation object. Handles are created lazily on
// first resolution, cached in the context's arena for the lifetime of the
// run, and never destroyed mid-run. The parent link is an arena index, not
// a pointer.
type Handle struct {
	ctx    *Context
	id     int
	parent int

	obj Object

	name     string
	kind     Kind
	constant bool
	length   int
	left     int
	right    int
}

// ID returns the arena index of the handle.
func (h *Handle) ID() int {
	return h.id
}

// Name returns the fully qualified hierarchical name, or an empty string
// for objects the backend cannot name.
func (h *Handle) Name() string {
	return h.name
}

// Kind returns the normalized semantic type.
func (h *Handle) Kind() Kind {
	return h.kind
}

// IsConst reports whether the object is a constant or parameter.
func (h *Handle) IsConst() bool {
	return h.constant
}

// Len returns the cached element count for indexable kinds.
func (h *Handle) Len() int {
	return h.length
}

// Range returns the cached declared index range.
func (h *Handle) Range() (left, right int) {
	return h.left, h.right
}

// Parent returns the parent handle, or nil for roots and handles built from
// raw backend references.
func (h *Handle) Parent() *Handle {
	if h.parent < 0 {
		return nil
	}

	return h.ctx.handles[h.parent]
}

// Raw returns the backend-native reference behind the handle.
func (h *Handle) Raw() Object {
	return h.obj
}

// rebind replaces the backend-native reference on re-resolution. The cached
// identity attributes stay untouched.
func (h *Handle) rebind(obj Object) {
	h.obj = obj
}

// Logic reads the four-state value of a logic handle.
func (h *Handle) Logic() (hdl.Vector, error) {
	return h.obj.Logic()
}

// BinStr reads the value as an MSB-first four-state string.
func (h *Handle) BinStr() (string, error) {
	v, err := h.obj.Logic()
	if err != nil {
		return "", err
	}

	return v.String(), nil
}

// Integer reads the value as an integer. Four-state values go through the
// context's unknown-bit resolver.
func (h *Handle) Integer() (int64, error) {
	if h.kind == KindLogic {
		v, err := h.obj.Logic()
		if err != nil {
			return 0, err
		}

		u, err := h.ctx.resolver.ToUint64(v)
		if err != nil {
			return 0, err
		}

		return int64(u), nil
	}

	return h.obj.Integer()
}

// Real reads a real-valued handle.
func (h *Handle) Real() (float64, error) {
	return h.obj.Real()
}

// Str reads a string handle.
func (h *Handle) Str() (string, error) {
	return h.obj.Str()
}

// SetLogic writes a four-state value with the given action semantics.
// Writing a constant raises a ReadOnlyViolation. A write rejected by the
// simulator's read-only phase escalates to a ProtocolViolation.
func (h *Handle) SetLogic(v hdl.Vector, a Action) error {
	if h.constant {
		return &ReadOnlyViolation{Name: h.name}
	}

	err := h.obj.SetLogic(v, a)
	if errors.Is(err, ErrWriteInReadOnlyPhase) {
		return &ProtocolViolation{
			Msg: "write to " + h.name + " during read-only phase",
		}
	}

	return err
}

// SetInteger writes an integer value. Logic handles get the vector form of
// the integer deposited.
func (h *Handle) SetInteger(v int64, a Action) error {
	if h.constant {
		return &ReadOnlyViolation{Name: h.name}
	}

	if h.kind == KindLogic {
		return h.SetLogic(hdl.VectorFromUint64(uint64(v), h.length), a)
	}

	err := h.obj.SetInteger(v)
	if errors.Is(err, ErrWriteInReadOnlyPhase) {
		return &ProtocolViolation{
			Msg: "write to " + h.name + " during read-only phase",
		}
	}

	return err
}

// SetReal writes a real-valued handle.
func (h *Handle) SetReal(v float64) error {
	if h.constant {
		return &ReadOnlyViolation{Name: h.name}
	}

	return h.obj.SetReal(v)
}

// SetStr writes a string handle.
func (h *Handle) SetStr(v string) error {
	if h.constant {
		return &ReadOnlyViolation{Name: h.name}
	}

	return h.obj.SetStr(v)
}
