package kernel

import (
	"fmt"
	"log"

	"github.com/cosimlab/cosim/hdl"
)

// ObjectKind classifies an object in the design hierarchy.
type ObjectKind int

// The kinds of objects a design can contain.
const (
	KindModule ObjectKind = iota
	KindGenScope
	KindStruct
	KindNet
	KindVariable
	KindParameter
	KindInteger
	KindReal
	KindString
	KindEnum
	KindArray
)

var kindNames = map[ObjectKind]string{
	KindModule:    "module",
	KindGenScope:  "genscope",
	KindStruct:    "struct",
	KindNet:       "net",
	KindVariable:  "variable",
	KindParameter: "parameter",
	KindInteger:   "integer",
	KindReal:      "real",
	KindString:    "string",
	KindEnum:      "enum",
	KindArray:     "array",
}

func (k ObjectKind) String() string {
	return kindNames[k]
}

// IsScope returns true for kinds that can contain other objects.
func (k ObjectKind) IsScope() bool {
	return k == KindModule || k == KindGenScope ||
		k == KindStruct || k == KindArray
}

// An Object is one node in the design hierarchy. Objects live in the
// design's arena and refer to their parent and children by index, so the
// graph carries no cyclic pointers.
type Object struct {
	id       int
	parent   int
	kind     ObjectKind
	name     string
	path     string
	children []int
	constant bool

	sig *Signal

	intVal    int64
	realVal   float64
	strVal    string
	enumNames []string

	left, right int
}

// ID returns the arena index of the object.
func (o *Object) ID() int {
	return o.id
}

// Kind returns the object's kind.
func (o *Object) Kind() ObjectKind {
	return o.kind
}

// Name returns the local name of the object. Anonymous array elements have
// an empty name.
func (o *Object) Name() string {
	return o.name
}

// Path returns the fully qualified dotted path of the object.
func (o *Object) Path() string {
	return o.path
}

// IsConst returns true if the object cannot be written.
func (o *Object) IsConst() bool {
	return o.constant
}

// Range returns the declared index range of an indexable object.
func (o *Object) Range() (left, right int) {
	return o.left, o.right
}

// NumChildren returns the number of child objects.
func (o *Object) NumChildren() int {
	return len(o.children)
}

// Signal returns the four-state storage backing the object, or nil for
// scopes and non-logic objects.
func (o *Object) Signal() *Signal {
	return o.sig
}

// A Design is the hierarchy of objects a kernel simulates. All objects are
// arena-allocated and addressed by index.
type Design struct {
	objects []*Object
	roots   []int
	byPath  map[string]int
}

// NewDesign creates an empty design.
func NewDesign() *Design {
	return &Design{
		byPath: make(map[string]int),
	}
}

func (d *Design) add(parent *Object, name string, kind ObjectKind) *Object {
	o := &Object{
		id:     len(d.objects),
		parent: -1,
		kind:   kind,
		name:   name,
		path:   name,
	}

	if parent != nil {
		if !parent.kind.IsScope() {
			log.Panicf("cannot add %q under non-scope %q", name, parent.path)
		}

		o.parent = parent.id
		o.path = parent.path + "." + name
		parent.children = append(parent.children, o.id)
	} else {
		d.roots = append(d.roots, o.id)
	}

	d.objects = append(d.objects, o)
	if name != "" {
		d.byPath[o.path] = o.id
	}

	return o
}

// AddModule adds a module scope. A nil parent adds a top-level module.
func (d *Design) AddModule(parent *Object, name string) *Object {
	return d.add(parent, name, KindModule)
}

// AddGenScope adds a generate-block pseudo-scope. The name carries the
// iteration index suffix, e.g. "blk[3]".
func (d *Design) AddGenScope(parent *Object, name string, index int) *Object {
	o := d.add(parent, fmt.Sprintf("%s[%d]", name, index), KindGenScope)
	o.left = index
	o.right = index

	return o
}

// AddStruct adds a structure object. Structure members are its children.
func (d *Design) AddStruct(parent *Object, name string) *Object {
	return d.add(parent, name, KindStruct)
}

// AddNet adds a four-state net of the given width.
func (d *Design) AddNet(parent *Object, name string, width int) *Object {
	o := d.add(parent, name, KindNet)
	o.sig = newSignal(width)
	o.left = width - 1

	return o
}

// AddVariable adds a four-state variable of the given width.
func (d *Design) AddVariable(parent *Object, name string, width int) *Object {
	o := d.add(parent, name, KindVariable)
	o.sig = newSignal(width)
	o.left = width - 1

	return o
}

// AddParameter adds a constant parameter holding an elaborated value.
func (d *Design) AddParameter(
	parent *Object,
	name string,
	value int64,
) *Object {
	o := d.add(parent, name, KindParameter)
	o.intVal = value
	o.constant = true

	return o
}

// AddInteger adds a two-state integer variable.
func (d *Design) AddInteger(parent *Object, name string, value int64) *Object {
	o := d.add(parent, name, KindInteger)
	o.intVal = value

	return o
}

// AddReal adds a real-valued variable.
func (d *Design) AddReal(parent *Object, name string, value float64) *Object {
	o := d.add(parent, name, KindReal)
	o.realVal = value

	return o
}

// AddString adds a string variable.
func (d *Design) AddString(parent *Object, name string, value string) *Object {
	o := d.add(parent, name, KindString)
	o.strVal = value

	return o
}

// AddEnum adds an enumerated variable. The value indexes into the literal
// names.
func (d *Design) AddEnum(
	parent *Object,
	name string,
	literals []string,
	value int,
) *Object {
	o := d.add(parent, name, KindEnum)
	o.enumNames = literals
	o.intVal = int64(value)

	return o
}

// AddArray adds an array of four-state elements. The elements are anonymous
// children addressed by index; their paths carry a bracket suffix.
func (d *Design) AddArray(
	parent *Object,
	name string,
	size int,
	elemWidth int,
) *Object {
	arr := d.add(parent, name, KindArray)
	arr.left = 0
	arr.right = size - 1

	for i := 0; i < size; i++ {
		elem := &Object{
			id:     len(d.objects),
			parent: arr.id,
			kind:   KindVariable,
			name:   "",
			path:   fmt.Sprintf("%s[%d]", arr.path, i),
			sig:    newSignal(elemWidth),
		}
		elem.left = elemWidth - 1
		d.objects = append(d.objects, elem)
		d.byPath[elem.path] = elem.id
		arr.children = append(arr.children, elem.id)
	}

	return arr
}

// Object returns the object at the given arena index.
func (d *Design) Object(id int) *Object {
	if id < 0 || id >= len(d.objects) {
		return nil
	}

	return d.objects[id]
}

// NumObjects returns the number of objects in the design.
func (d *Design) NumObjects() int {
	return len(d.objects)
}

// Roots returns the top-level objects of the design.
func (d *Design) Roots() []*Object {
	out := make([]*Object, 0, len(d.roots))
	for _, id := range d.roots {
		out = append(out, d.objects[id])
	}

	return out
}

// Parent returns the parent of an object, or nil for top-level objects.
func (d *Design) Parent(o *Object) *Object {
	if o.parent < 0 {
		return nil
	}

	return d.objects[o.parent]
}

// Children returns the children of a scope in declaration order.
func (d *Design) Children(o *Object) []*Object {
	out := make([]*Object, 0, len(o.children))
	for _, id := range o.children {
		out = append(out, d.objects[id])
	}

	return out
}

// FindByPath looks up an object by its fully qualified dotted path. A miss
// is an absence, not an error, as probing for optional objects is a valid
// use case.
func (d *Design) FindByPath(path string) (*Object, bool) {
	id, ok := d.byPath[path]
	if !ok {
		return nil, false
	}

	return d.objects[id], true
}

// A Signal is the four-state storage behind a net or variable, together
// with its change subscribers and force state.
type Signal struct {
	value  hdl.Vector
	forced bool

	subs      map[int]func(old, new hdl.Vector)
	subOrder  []int
	nextSubID int
}

func newSignal(width int) *Signal {
	return &Signal{
		value: hdl.NewVector(width),
		subs:  make(map[int]func(old, new hdl.Vector)),
	}
}

// Value returns the current value of the signal.
func (s *Signal) Value() hdl.Vector {
	return s.value.Clone()
}

// Width returns the bit width of the signal.
func (s *Signal) Width() int {
	return s.value.Width()
}

// IsForced returns true while a force or freeze holds the signal.
func (s *Signal) IsForced() bool {
	return s.forced
}

func (s *Signal) subscribe(fn func(old, new hdl.Vector)) int {
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subOrder = append(s.subOrder, id)

	return id
}

func (s *Signal) unsubscribe(id int) {
	delete(s.subs, id)
	for i, sid := range s.subOrder {
		if sid == id {
			s.subOrder = append(s.subOrder[:i], s.subOrder[i+1:]...)
			break
		}
	}
}

// commit stores a new value and notifies subscribers in registration order.
func (s *Signal) commit(v hdl.Vector) {
	old := s.value
	if old.Equal(v) {
		return
	}

	s.value = v.Clone()

	for _, id := range append([]int(nil), s.subOrder...) {
		if fn, ok := s.subs[id]; ok {
			fn(old, s.value)
		}
	}
}
