package simulation

import (
	"github.com/rs/xid"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/datarecording"
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
	"github.com/cosimlab/cosim/monitoring"
	"github.com/cosimlab/cosim/sched"
	"github.com/cosimlab/cosim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	design         *kernel.Design
	backendName    string
	timescale      kernel.Timescale
	policy         hdl.ResolvePolicy
	seed           int64
	monitorOn      bool
	monitorPort    int
	launchBrowser  bool
	outputFileName string
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		backendName: "vpi",
		timescale:   kernel.MakeTimescale(1, kernel.Ns),
		policy:      hdl.ResolveError,
		seed:        1,
		monitorOn:   true,
	}
}

// WithDesign sets the elaborated design the session runs against.
func (b Builder) WithDesign(d *kernel.Design) Builder {
	b.design = d
	return b
}

// WithBackend selects the procedural-interface backend by name.
func (b Builder) WithBackend(name string) Builder {
	b.backendName = name
	return b
}

// WithTimescale sets the simulation timescale.
func (b Builder) WithTimescale(ts kernel.Timescale) Builder {
	b.timescale = ts
	return b
}

// WithResolutionPolicy sets how unknown bits resolve on integer reads.
func (b Builder) WithResolutionPolicy(p hdl.ResolvePolicy) Builder {
	b.policy = p
	return b
}

// WithSeed sets the seed used by the random resolution policy.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowserLaunch opens the monitoring dashboard in a browser once the
// server is up.
func (b Builder) WithBrowserLaunch() Builder {
	b.launchBrowser = true
	return b
}

// WithOutputFileName sets the custom output file name for the data
// recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.design == nil {
		panic("a design must be provided before building")
	}

	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{id: xid.New().String()}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "cosim_run_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)
	s.sessionLog = datarecording.NewSessionRecorder(s.dataRecorder)

	s.kernel = kernel.NewKernel(b.design, b.timescale)

	adapter, err := bridge.NewAdapter(b.backendName, s.kernel)
	if err != nil {
		panic(err)
	}

	s.ctx = bridge.NewContext(adapter, hdl.NewResolver(b.policy, b.seed))
	s.scheduler = sched.New(s.ctx)

	s.tracer = tracing.NewDBTracer(s.kernel, s.dataRecorder)
	s.tracer.AttachTo(s.scheduler)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.launchBrowser {
			s.monitor.WithBrowserLaunch()
		}
		s.monitor.RegisterKernel(s.kernel)
		s.monitor.RegisterContext(s.ctx)
		s.monitor.RegisterScheduler(s.scheduler)
		s.monitor.StartServer()
	}

	s.sessionLog.Start()
	s.sessionLog.Record("Backend", b.backendName)
	s.sessionLog.Record("Timescale", b.timescale.String())
	s.sessionLog.Record("ResolutionPolicy", b.policy.String())

	return s
}
