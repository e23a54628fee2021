// Package hdl provides the four-state value model shared by the simulator
// kernel and the cosimulation bridge.
package hdl

import (
	"fmt"
	"strings"
)

// A Logic is a single four-state bit.
type Logic byte

// The four states a Logic can take.
const (
	L0 Logic = iota
	L1
	LX
	LZ
)

// Rune returns the character used to print the bit.
func (l Logic) Rune() rune {
	switch l {
	case L0:
		return '0'
	case L1:
		return '1'
	case LX:
		return 'x'
	case LZ:
		return 'z'
	}

	return '?'
}

// IsKnown returns true if the bit is 0 or 1.
func (l Logic) IsKnown() bool {
	return l == L0 || l == L1
}

// LogicFromRune converts a character into a Logic bit.
func LogicFromRune(r rune) (Logic, error) {
	switch r {
	case '0':
		return L0, nil
	case '1':
		return L1, nil
	case 'x', 'X':
		return LX, nil
	case 'z', 'Z':
		return LZ, nil
	}

	return LX, fmt.Errorf("invalid logic character %q", r)
}

// A Vector is a fixed-width four-state word. Index 0 is the least significant
// bit. The zero-length vector is valid and represents a zero-width object.
type Vector []Logic

// NewVector creates a vector of the given width with every bit set to X,
// matching the power-on state of an uninitialized signal.
func NewVector(width int) Vector {
	v := make(Vector, width)
	for i := range v {
		v[i] = LX
	}

	return v
}

// VectorFromUint64 creates a vector of the given width holding the lowest
// width bits of val.
func VectorFromUint64(val uint64, width int) Vector {
	v := make(Vector, width)
	for i := 0; i < width; i++ {
		if val&(1<<uint(i)) != 0 {
			v[i] = L1
		} else {
			v[i] = L0
		}
	}

	return v
}

// ParseVector parses an MSB-first binary string such as "10x1z0".
func ParseVector(s string) (Vector, error) {
	v := make(Vector, len(s))
	for i, r := range s {
		l, err := LogicFromRune(r)
		if err != nil {
			return nil, err
		}

		v[len(s)-1-i] = l
	}

	return v, nil
}

// String formats the vector MSB first.
func (v Vector) String() string {
	var b strings.Builder
	for i := len(v) - 1; i >= 0; i-- {
		b.WriteRune(v[i].Rune())
	}

	return b.String()
}

// Width returns the number of bits in the vector.
func (v Vector) Width() int {
	return len(v)
}

// Clone returns a copy of the vector.
func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)

	return c
}

// Equal reports whether two vectors have the same width and bits.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}

	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}

	return true
}

// IsKnown returns true if every bit is 0 or 1.
func (v Vector) IsKnown() bool {
	for _, l := range v {
		if !l.IsKnown() {
			return false
		}
	}

	return true
}

// Resized returns a copy of the vector truncated or zero-extended to width.
func (v Vector) Resized(width int) Vector {
	c := make(Vector, width)
	for i := range c {
		if i < len(v) {
			c[i] = v[i]
		} else {
			c[i] = L0
		}
	}

	return c
}

// IsRising reports a transition to 1 on the least significant bit. A signal
// coming out of X counts as an edge only when the new value is 1.
func IsRising(old, new Vector) bool {
	if len(old) == 0 || len(new) == 0 {
		return false
	}

	return old[0] != L1 && new[0] == L1
}

// IsFalling reports a transition to 0 on the least significant bit.
func IsFalling(old, new Vector) bool {
	if len(old) == 0 || len(new) == 0 {
		return false
	}

	return old[0] != L0 && new[0] == L0
}
