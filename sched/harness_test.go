package sched

import (
	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/bridge/fli"
	"github.com/cosimlab/cosim/bridge/vpi"
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
)

// harness runs a scheduler over an embedded kernel with a small design: a
// one-bit clock, an eight-bit data net, and an elaborated constant.
type harness struct {
	k    *kernel.Kernel
	ctx  *bridge.Context
	s    *Scheduler
	clk  *bridge.Handle
	data *bridge.Handle
}

func newHarness(newAdapter func(*kernel.Kernel) bridge.Adapter) *harness {
	design := kernel.NewDesign()
	top := design.AddModule(nil, "top")
	design.AddNet(top, "clk", 1)
	design.AddNet(top, "data", 8)
	design.AddParameter(top, "WIDTH", 8)

	k := kernel.NewKernel(design, kernel.MakeTimescale(1, kernel.Ns))
	ctx := bridge.NewContext(newAdapter(k), hdl.NewResolver(hdl.ResolveZeros, 1))

	h := &harness{k: k, ctx: ctx, s: New(ctx)}

	var ok bool
	h.clk, ok = ctx.RootHandle("top.clk")
	if !ok {
		panic("clk not found")
	}

	h.data, ok = ctx.RootHandle("top.data")
	if !ok {
		panic("data not found")
	}

	return h
}

func newVPIHarness() *harness {
	return newHarness(func(k *kernel.Kernel) bridge.Adapter {
		return vpi.New(k)
	})
}

func newFLIHarness() *harness {
	return newHarness(func(k *kernel.Kernel) bridge.Adapter {
		return fli.New(k)
	})
}

// at converts n timescale units to the femtosecond reading of Context.Now.
func (h *harness) at(n uint64) uint64 {
	return uint64(h.k.Timescale().ToVTime(n))
}

func (h *harness) depositClk(bit uint64) error {
	return h.clk.SetLogic(hdl.VectorFromUint64(bit, 1), bridge.ActionDeposit)
}

// spawnClock toggles the clock with a half period of 5 units, starting low.
func (h *harness) spawnClock(cycles int) *Task {
	return h.s.Spawn("clock", func(t *Task) error {
		for i := 0; i < cycles; i++ {
			if err := h.depositClk(0); err != nil {
				return err
			}
			if err := t.Wait(NewTimer(5)); err != nil {
				return err
			}

			if err := h.depositClk(1); err != nil {
				return err
			}
			if err := t.Wait(NewTimer(5)); err != nil {
				return err
			}
		}

		return nil
	})
}
