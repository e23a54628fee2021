package simulation

import (
	"errors"
	"fmt"
	"os"

	"github.com/cosimlab/cosim/sched"
)

// A Test is one named piece of verification logic run by the Runner.
type Test struct {
	Name string
	Fn   sched.TaskFunc
}

// TestResult is the recorded outcome of one test.
type TestResult struct {
	Name    string
	Passed  bool
	SimTime uint64
	Detail  string
}

// A Summary aggregates the outcomes of one regression run.
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	Results []TestResult

	// Fatal is set when a framework error aborted the run. Test failures
	// never set it.
	Fatal error
}

// A Runner executes tests sequentially inside one simulator session and
// records the outcome of each.
type Runner struct {
	sim   *Simulation
	tests []Test
}

// NewRunner creates a Runner over a built simulation.
func NewRunner(sim *Simulation) *Runner {
	sim.DataRecorder().CreateTable("test_results", TestResult{})

	return &Runner{sim: sim}
}

// AddTest appends a test to the regression.
func (r *Runner) AddTest(name string, fn sched.TaskFunc) *Runner {
	r.tests = append(r.tests, Test{Name: name, Fn: fn})

	return r
}

// Run executes all tests in order and returns the summary. Each test runs
// as a task; the next test starts only after the previous one terminated.
func (r *Runner) Run() Summary {
	summary := Summary{Total: len(r.tests)}

	var bar interface {
		MoveInProgressToFinished(uint64)
		IncrementInProgress(uint64)
	}
	if m := r.sim.Monitor(); m != nil {
		bar = m.CreateProgressBar("regression", uint64(len(r.tests)))
	}

	s := r.sim.Scheduler()
	s.Spawn("regression", func(t *sched.Task) error {
		for _, test := range r.tests {
			if bar != nil {
				bar.IncrementInProgress(1)
			}

			task := t.Scheduler().Spawn(test.Name, test.Fn)
			err := t.Wait(task.Join())

			result := TestResult{
				Name:    test.Name,
				Passed:  err == nil,
				SimTime: r.sim.Context().Now(),
			}
			if err != nil {
				result.Detail = err.Error()
			}

			summary.Results = append(summary.Results, result)
			r.sim.DataRecorder().InsertData("test_results", result)
			r.reportResult(result)

			if bar != nil {
				bar.MoveInProgressToFinished(1)
			}

			if s.Fatal() != nil {
				break
			}
		}

		return nil
	})

	if err := r.sim.Kernel().Run(); err != nil {
		summary.Fatal = err
	}

	if s.Fatal() != nil {
		summary.Fatal = s.Fatal()
	}

	for _, res := range summary.Results {
		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	r.reportSummary(summary)

	return summary
}

func (r *Runner) reportResult(res TestResult) {
	status := "PASS"
	if !res.Passed {
		status = "FAIL"
	}

	fmt.Fprintf(os.Stderr, "%s  %s", status, res.Name)
	if res.Detail != "" {
		fmt.Fprintf(os.Stderr, "  (%s)", res.Detail)
	}
	fmt.Fprintln(os.Stderr)
}

func (r *Runner) reportSummary(summary Summary) {
	fmt.Fprintf(os.Stderr, "%d tests, %d passed, %d failed\n",
		summary.Total, summary.Passed, summary.Failed)

	if summary.Fatal != nil {
		fmt.Fprintf(os.Stderr, "fatal: %s\n", summary.Fatal)
	}
}

// Ok reports whether the regression both completed and passed.
func (s Summary) Ok() bool {
	return s.Fatal == nil && s.Failed == 0
}

// ErrRegressionFailed is returned by Must when any test failed.
var ErrRegressionFailed = errors.New("regression failed")

// Must converts a summary into an error suitable for a command exit path.
func (s Summary) Must() error {
	if s.Fatal != nil {
		return s.Fatal
	}

	if s.Failed > 0 {
		return ErrRegressionFailed
	}

	return nil
}
