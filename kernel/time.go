package kernel

import (
	"fmt"
	"log"
)

// VTime is a simulation time stamp in femtoseconds. Simulation time is
// monotonically non-decreasing and is only advanced by the kernel.
type VTime uint64

// A TimeTeller can be used to get the current simulation time.
type TimeTeller interface {
	CurrentTime() VTime
}

// A TimeUnit is one of the SI units a timescale can use.
type TimeUnit int

// The supported time units.
const (
	Fs TimeUnit = iota
	Ps
	Ns
	Us
	Ms
	S
)

var unitFemto = map[TimeUnit]uint64{
	Fs: 1,
	Ps: 1e3,
	Ns: 1e6,
	Us: 1e9,
	Ms: 1e12,
	S:  1e15,
}

var unitName = map[TimeUnit]string{
	Fs: "fs", Ps: "ps", Ns: "ns", Us: "us", Ms: "ms", S: "s",
}

// ParseTimeUnit converts a unit name such as "ns" into a TimeUnit.
func ParseTimeUnit(name string) (TimeUnit, error) {
	for u, n := range unitName {
		if n == name {
			return u, nil
		}
	}

	return Fs, fmt.Errorf("unknown time unit %q", name)
}

func (u TimeUnit) String() string {
	return unitName[u]
}

// A Timescale is the unit/precision pair a simulation runs with. The
// multiplier must be 1, 10, or 100.
type Timescale struct {
	Mult int
	Unit TimeUnit
}

// MakeTimescale creates a Timescale, panicking on an illegal multiplier.
func MakeTimescale(mult int, unit TimeUnit) Timescale {
	if mult != 1 && mult != 10 && mult != 100 {
		log.Panicf("timescale multiplier must be 1, 10, or 100, got %d", mult)
	}

	return Timescale{Mult: mult, Unit: unit}
}

// ToVTime converts n timescale units into femtoseconds.
func (t Timescale) ToVTime(n uint64) VTime {
	return VTime(n * uint64(t.Mult) * unitFemto[t.Unit])
}

// FromVTime converts a femtosecond stamp into timescale units, truncating.
func (t Timescale) FromVTime(v VTime) uint64 {
	return uint64(v) / (uint64(t.Mult) * unitFemto[t.Unit])
}

func (t Timescale) String() string {
	return fmt.Sprintf("%d%s", t.Mult, t.Unit)
}
