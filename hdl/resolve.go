package hdl

import (
	"fmt"
	"math/rand"
)

// A ResolvePolicy decides how X and Z bits are coerced when a four-state
// vector is read as an integer.
type ResolvePolicy int

// The supported policies.
const (
	// ResolveError rejects any vector that contains X or Z bits.
	ResolveError ResolvePolicy = iota

	// ResolveZeros coerces X and Z bits to 0.
	ResolveZeros

	// ResolveOnes coerces X and Z bits to 1.
	ResolveOnes

	// ResolveRandom coerces each X and Z bit to a pseudo-random value. The
	// sequence is deterministic for a fixed seed.
	ResolveRandom
)

func (p ResolvePolicy) String() string {
	switch p {
	case ResolveError:
		return "error"
	case ResolveZeros:
		return "zeros"
	case ResolveOnes:
		return "ones"
	case ResolveRandom:
		return "random"
	}

	return "unknown"
}

// ParseResolvePolicy converts a policy name into a ResolvePolicy.
func ParseResolvePolicy(name string) (ResolvePolicy, error) {
	switch name {
	case "error":
		return ResolveError, nil
	case "zeros":
		return ResolveZeros, nil
	case "ones":
		return ResolveOnes, nil
	case "random":
		return ResolveRandom, nil
	}

	return ResolveError, fmt.Errorf("unknown resolve policy %q", name)
}

// A ResolutionError reports an X or Z bit encountered under the error policy.
type ResolutionError struct {
	Value string
	Bit   int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf(
		"cannot resolve bit %d of %q: value is not 0 or 1", e.Bit, e.Value)
}

// A Resolver coerces four-state vectors to two-state values according to a
// policy. Resolvers are not safe for concurrent use.
type Resolver struct {
	policy ResolvePolicy
	rand   *rand.Rand
}

// NewResolver creates a Resolver. The seed is only used by the random policy.
func NewResolver(policy ResolvePolicy, seed int64) *Resolver {
	return &Resolver{
		policy: policy,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Policy returns the policy the resolver applies.
func (r *Resolver) Policy() ResolvePolicy {
	return r.policy
}

// ResolveBit coerces one bit.
func (r *Resolver) ResolveBit(l Logic) (Logic, error) {
	if l.IsKnown() {
		return l, nil
	}

	switch r.policy {
	case ResolveZeros:
		return L0, nil
	case ResolveOnes:
		return L1, nil
	case ResolveRandom:
		if r.rand.Intn(2) == 0 {
			return L0, nil
		}
		return L1, nil
	}

	return LX, &ResolutionError{Value: l.String(), Bit: 0}
}

// Resolve coerces every bit of a vector, returning a fully known copy.
func (r *Resolver) Resolve(v Vector) (Vector, error) {
	out := v.Clone()
	for i, l := range out {
		if l.IsKnown() {
			continue
		}

		if r.policy == ResolveError {
			return nil, &ResolutionError{Value: v.String(), Bit: i}
		}

		b, err := r.ResolveBit(l)
		if err != nil {
			return nil, err
		}

		out[i] = b
	}

	return out, nil
}

// ToUint64 resolves the vector and packs its lowest 64 bits into an integer.
func (r *Resolver) ToUint64(v Vector) (uint64, error) {
	resolved, err := r.Resolve(v)
	if err != nil {
		return 0, err
	}

	var out uint64
	for i, l := range resolved {
		if i >= 64 {
			break
		}

		if l == L1 {
			out |= 1 << uint(i)
		}
	}

	return out, nil
}

// String returns the printable form of a single bit.
func (l Logic) String() string {
	return string(l.Rune())
}
