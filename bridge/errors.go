package bridge

import (
	"errors"
	"fmt"
)

// ErrWriteInReadOnlyPhase is returned by backends when a write reaches the
// simulator during the read-only phase. The bridge escalates it to a
// ProtocolViolation because the write indicates scheduler/simulator
// desynchronization.
var ErrWriteInReadOnlyPhase = errors.New("write attempted in read-only phase")

// A RegistrationError reports that a backend rejected a callback
// registration. It is fatal to the run.
type RegistrationError struct {
	Backend string
	Reason  Reason
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("backend %s failed to arm %s callback: %v",
		e.Backend, e.Reason, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// A ProtocolViolation reports bridge/backend desynchronization, such as a
// callback delivered in the FREE state or a write during the read-only
// phase. It is fatal to the run.
type ProtocolViolation struct {
	Msg string
}

func (e *ProtocolViolation) Error() string {
	return "protocol violation: " + e.Msg
}

// A ReadOnlyViolation reports a write to a constant handle. It is
// recoverable and is raised to the calling task.
type ReadOnlyViolation struct {
	Name string
}

func (e *ReadOnlyViolation) Error() string {
	return fmt.Sprintf("cannot write constant object %q", e.Name)
}
