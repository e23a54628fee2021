// Package bridge normalizes the incompatible procedural simulator
// interfaces into one model of object handles, callbacks, and values. The
// scheduler and all testbench-facing code depend only on this package, never
// on a specific backend.
package bridge

import (
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
)

// Kind is the normalized semantic type of a simulation object.
type Kind int

// The normalized object kinds.
const (
	KindLogic Kind = iota
	KindInteger
	KindReal
	KindEnum
	KindString
	KindStruct
	KindArray
	KindModule
)

var kindNames = map[Kind]string{
	KindLogic:   "logic",
	KindInteger: "integer",
	KindReal:    "real",
	KindEnum:    "enum",
	KindString:  "string",
	KindStruct:  "struct",
	KindArray:   "array",
	KindModule:  "module",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Edge selects which value transitions a value-change callback reports.
type Edge int

// The edge kinds.
const (
	EdgeRising Edge = iota
	EdgeFalling
	EdgeEither
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	}

	return "either"
}

// Reason is the normalized callback reason code.
type Reason int

// The callback reasons.
const (
	ReasonAfterDelay Reason = iota
	ReasonValueChange
	ReasonReadWrite
	ReasonReadOnly
	ReasonNextTimeStep
	ReasonStartOfSim
	ReasonEndOfSim
)

var reasonNames = map[Reason]string{
	ReasonAfterDelay:   "after-delay",
	ReasonValueChange:  "value-change",
	ReasonReadWrite:    "read-write",
	ReasonReadOnly:     "read-only",
	ReasonNextTimeStep: "next-time-step",
	ReasonStartOfSim:   "start-of-sim",
	ReasonEndOfSim:     "end-of-sim",
}

func (r Reason) String() string {
	return reasonNames[r]
}

// Action selects the semantics of a handle write.
type Action int

// The write actions.
const (
	// ActionDeposit schedules the write; it becomes visible when the
	// current delta settles.
	ActionDeposit Action = iota

	// ActionDepositNow commits the write immediately.
	ActionDepositNow

	// ActionForce holds the value until released.
	ActionForce

	// ActionRelease removes a force.
	ActionRelease

	// ActionFreeze holds the signal at its current value.
	ActionFreeze
)

// Time is a 64-bit simulation time split into two 32-bit words, the way the
// procedural interfaces carry it.
type Time struct {
	Hi uint32
	Lo uint32
}

// TimeFromUint64 splits a femtosecond count into a Time pair.
func TimeFromUint64(v uint64) Time {
	return Time{Hi: uint32(v >> 32), Lo: uint32(v)}
}

// Uint64 joins the two words back into a femtosecond count.
func (t Time) Uint64() uint64 {
	return uint64(t.Hi)<<32 | uint64(t.Lo)
}

// Relationship is a normalized one-to-many relationship query. Backends
// support different, incomplete subsets.
type Relationship int

// The relationship queries.
const (
	RelSubScopes Relationship = iota
	RelNets
	RelVariables
	RelParameters
	RelMembers
	RelElements
)

var relationshipNames = map[Relationship]string{
	RelSubScopes:  "sub-scopes",
	RelNets:       "nets",
	RelVariables:  "variables",
	RelParameters: "parameters",
	RelMembers:    "members",
	RelElements:   "elements",
}

func (r Relationship) String() string {
	return relationshipNames[r]
}

// An Object is a backend-native reference to one simulation object. The
// bridge wraps Objects into Handles; testbench code never touches Objects
// directly.
type Object interface {
	// Name returns the normalized fully qualified name, or an empty string
	// for objects the backend cannot name.
	Name() string

	// Kind returns the normalized semantic type.
	Kind() Kind

	// IsConst reports whether the object is an elaboration-time constant.
	IsConst() bool

	// Len returns the element count for indexable objects, 0 otherwise.
	Len() int

	// Range returns the declared index range for indexable objects.
	Range() (left, right int)

	// Logic reads the four-state value of a logic object.
	Logic() (hdl.Vector, error)

	// Integer reads the raw integer storage of an integer object.
	Integer() (int64, error)

	// Real reads a real-valued object.
	Real() (float64, error)

	// Str reads a string object.
	Str() (string, error)

	// SetLogic writes a four-state value with the given action.
	SetLogic(v hdl.Vector, a Action) error

	// SetInteger writes an integer object.
	SetInteger(v int64) error

	// SetReal writes a real-valued object.
	SetReal(v float64) error

	// SetStr writes a string object.
	SetStr(v string) error
}

// An ObjectIterator walks one relationship of one parent. It is lazy,
// finite, and not restartable.
type ObjectIterator interface {
	Next() (Object, bool)
}

// A CallbackRequest asks a backend to deliver a normalized callback.
type CallbackRequest struct {
	Reason  Reason
	Edge    Edge
	Target  Object
	Delay   Time
	Deliver func()
}

// A BackendCallback is the backend's native registration of one callback.
type BackendCallback interface {
	// Cancel attempts to unschedule the callback. It returns true when the
	// backend truly released it, and false when the backend can only let it
	// fire once more (the bridge then suppresses the delivery).
	Cancel() bool
}

// An Adapter translates the normalized model into one backend's native
// calls. One implementation exists per procedural interface.
type Adapter interface {
	// Name returns the backend's short name.
	Name() string

	// Root resolves a top-level object by name.
	Root(name string) (Object, bool)

	// Child resolves a named child of a scope.
	Child(parent Object, name string) (Object, bool)

	// Index resolves an element of an indexable object.
	Index(parent Object, i int) (Object, bool)

	// RelationshipTable returns the ordered relationship queries to try
	// when iterating the children of an object of the given kind.
	RelationshipTable(kind Kind) []Relationship

	// Iterate walks one relationship. Backends return an empty iterator
	// for relationships they do not support on the given object.
	Iterate(parent Object, rel Relationship) ObjectIterator

	// Register arms one callback with the backend.
	Register(req CallbackRequest) (BackendCallback, error)

	// Now returns the current simulation time.
	Now() Time

	// Timescale returns the unit/precision pair of the simulation.
	Timescale() kernel.Timescale

	// Finish asks the embedding simulator to end the run.
	Finish()
}
