// Package simulation ties a kernel, a backend adapter, a scheduler, and
// the recording services into one runnable cosimulation session.
package simulation

import (
	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/datarecording"
	"github.com/cosimlab/cosim/kernel"
	"github.com/cosimlab/cosim/monitoring"
	"github.com/cosimlab/cosim/sched"
	"github.com/cosimlab/cosim/tracing"
)

// A Simulation provides the services required to run cosimulation tests.
type Simulation struct {
	id string

	kernel    *kernel.Kernel
	ctx       *bridge.Context
	scheduler *sched.Scheduler

	dataRecorder datarecording.DataRecorder
	sessionLog   *datarecording.SessionRecorder
	monitor      *monitoring.Monitor
	tracer       *tracing.DBTracer
}

// ID returns the unique identifier of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Kernel returns the kernel driving the session.
func (s *Simulation) Kernel() *kernel.Kernel {
	return s.kernel
}

// Context returns the adapter context of the session.
func (s *Simulation) Context() *bridge.Context {
	return s.ctx
}

// Scheduler returns the task scheduler of the session.
func (s *Simulation) Scheduler() *sched.Scheduler {
	return s.scheduler
}

// DataRecorder returns the data recorder used in the simulation.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor used in the simulation, or nil when
// monitoring is disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Tracer returns the task tracer used in the simulation.
func (s *Simulation) Tracer() *tracing.DBTracer {
	return s.tracer
}

// Terminate closes the session log and the recorder.
func (s *Simulation) Terminate() {
	s.sessionLog.End()
	s.dataRecorder.Close()
}
