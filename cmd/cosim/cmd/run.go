package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
	"github.com/cosimlab/cosim/sched"
	"github.com/cosimlab/cosim/simulation"
)

var runFlags = struct {
	backend     string
	timescale   string
	resolve     string
	seed        int64
	output      string
	monitorPort int
	noMonitor   bool
	openBrowser bool
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the built-in smoke regression against a backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := buildSimulation()
		if err != nil {
			return err
		}
		defer sim.Terminate()

		summary := smokeRegression(sim).Run()

		return summary.Must()
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.backend, "backend",
		envOr("COSIM_BACKEND", "vpi"), "backend to run against")
	runCmd.Flags().StringVar(&runFlags.timescale, "timescale",
		envOr("COSIM_TIMESCALE", "1ns"), "simulation timescale, e.g. 10ps")
	runCmd.Flags().StringVar(&runFlags.resolve, "resolve",
		envOr("COSIM_RESOLVE", "error"),
		"unknown-bit policy: error, zeros, ones, or random")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed",
		int64(envIntOr("COSIM_SEED", 1)), "seed for the random policy")
	runCmd.Flags().StringVar(&runFlags.output, "output",
		envOr("COSIM_OUTPUT", ""), "output database file name")
	runCmd.Flags().IntVar(&runFlags.monitorPort, "monitor-port",
		envIntOr("COSIM_MONITOR_PORT", 0), "monitoring server port")
	runCmd.Flags().BoolVar(&runFlags.noMonitor, "no-monitor",
		false, "disable the monitoring server")
	runCmd.Flags().BoolVar(&runFlags.openBrowser, "open-browser",
		false, "open the monitoring dashboard in a browser")

	rootCmd.AddCommand(runCmd)
}

func buildSimulation() (*simulation.Simulation, error) {
	ts, err := parseTimescale(runFlags.timescale)
	if err != nil {
		return nil, err
	}

	policy, err := hdl.ParseResolvePolicy(runFlags.resolve)
	if err != nil {
		return nil, err
	}

	b := simulation.MakeBuilder().
		WithDesign(smokeDesign()).
		WithBackend(runFlags.backend).
		WithTimescale(ts).
		WithResolutionPolicy(policy).
		WithSeed(runFlags.seed)

	if runFlags.output != "" {
		b = b.WithOutputFileName(runFlags.output)
	}

	if runFlags.noMonitor {
		b = b.WithoutMonitoring()
	} else {
		if runFlags.monitorPort > 0 {
			b = b.WithMonitorPort(runFlags.monitorPort)
		}
		if runFlags.openBrowser {
			b = b.WithBrowserLaunch()
		}
	}

	return b.Build(), nil
}

// parseTimescale converts strings such as "1ns" or "10ps" into a
// Timescale.
func parseTimescale(s string) (kernel.Timescale, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	if i == 0 || i == len(s) {
		return kernel.Timescale{},
			fmt.Errorf("invalid timescale %q, want e.g. 1ns", s)
	}

	mult, err := strconv.Atoi(s[:i])
	if err != nil {
		return kernel.Timescale{}, err
	}

	unit, err := kernel.ParseTimeUnit(strings.TrimSpace(s[i:]))
	if err != nil {
		return kernel.Timescale{}, err
	}

	if mult != 1 && mult != 10 && mult != 100 {
		return kernel.Timescale{},
			fmt.Errorf("timescale multiplier must be 1, 10, or 100")
	}

	return kernel.MakeTimescale(mult, unit), nil
}

// smokeDesign elaborates a small flip-flop design the built-in regression
// runs against.
func smokeDesign() *kernel.Design {
	design := kernel.NewDesign()
	top := design.AddModule(nil, "top")
	design.AddNet(top, "clk", 1)
	design.AddNet(top, "d", 1)
	design.AddVariable(top, "q", 1)

	return design
}

// smokeRegression wires the built-in tests: a flip-flop model, a clock,
// and checkers that exercise edges and delays.
func smokeRegression(sim *simulation.Simulation) *simulation.Runner {
	ctx := sim.Context()

	runner := simulation.NewRunner(sim)

	runner.AddTest("dff_captures_d", func(t *sched.Task) error {
		clk, _ := ctx.RootHandle("top.clk")
		d, _ := ctx.RootHandle("top.d")
		q, _ := ctx.RootHandle("top.q")

		// Flip-flop model: q follows d on every rising clock edge.
		model := t.Scheduler().Spawn("dff_model", func(t *sched.Task) error {
			rising := sched.RisingEdge(clk)
			for {
				if err := t.Wait(rising); err != nil {
					return err
				}

				v, err := d.Logic()
				if err != nil {
					return err
				}
				if err := q.SetLogic(v, bridge.ActionDeposit); err != nil {
					return err
				}
			}
		})
		defer model.Kill()

		t.Scheduler().Spawn("clock", func(t *sched.Task) error {
			for i := 0; i < 8; i++ {
				if err := clk.SetLogic(
					hdl.VectorFromUint64(0, 1),
					bridge.ActionDeposit); err != nil {
					return err
				}
				if err := t.Wait(sched.NewTimer(5)); err != nil {
					return err
				}

				if err := clk.SetLogic(
					hdl.VectorFromUint64(1, 1),
					bridge.ActionDeposit); err != nil {
					return err
				}
				if err := t.Wait(sched.NewTimer(5)); err != nil {
					return err
				}
			}

			return nil
		})

		falling := sched.FallingEdge(clk)

		// The first drive moves the clock from unknown to 0. Sync past
		// that edge before checking captures.
		if err := t.Wait(falling); err != nil {
			return err
		}

		for _, bit := range []uint64{1, 0, 1, 1} {
			if err := d.SetLogic(
				hdl.VectorFromUint64(bit, 1),
				bridge.ActionDeposit); err != nil {
				return err
			}

			// One full cycle: the rising edge captures, the falling edge
			// is a safe point to check.
			if err := t.Wait(falling); err != nil {
				return err
			}

			got, err := q.Integer()
			if err != nil {
				return err
			}
			if uint64(got) != bit {
				return sched.Failf("q is %d after driving d=%d", got, bit)
			}
		}

		return nil
	})

	runner.AddTest("delay_advances_time", func(t *sched.Task) error {
		before := ctx.Now()

		if err := t.Wait(sched.NewTimer(25)); err != nil {
			return err
		}

		elapsed := ctx.Now() - before
		want := uint64(sim.Kernel().Timescale().ToVTime(25))
		if elapsed != want {
			return sched.Failf("elapsed %d fs, want %d fs", elapsed, want)
		}

		return nil
	})

	return runner
}
