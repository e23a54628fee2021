package fli_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/bridge/fli"
	"github.com/cosimlab/cosim/hdl"
	"github.com/cosimlab/cosim/kernel"
)

func elaborate() *kernel.Design {
	design := kernel.NewDesign()
	top := design.AddModule(nil, "top")
	design.AddParameter(top, "WIDTH", 8)
	design.AddNet(top, "clk", 1)
	rec := design.AddStruct(top, "pkt")
	design.AddNet(rec, "addr", 8)
	design.AddNet(rec, "valid", 1)
	design.AddArray(top, "mem", 4, 8)
	gen0 := design.AddGenScope(top, "ring", 0)
	design.AddNet(gen0, "q", 1)
	gen1 := design.AddGenScope(top, "ring", 1)
	design.AddNet(gen1, "q", 1)

	return design
}

func namesOf(results []bridge.IterResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if r.Named() {
			names = append(names, r.Handle.Name())
		}
	}

	return names
}

var _ = Describe("Adapter", func() {
	var (
		k   *kernel.Kernel
		ctx *bridge.Context
		top *bridge.Handle
	)

	BeforeEach(func() {
		k = kernel.NewKernel(elaborate(), kernel.MakeTimescale(1, kernel.Ns))
		ctx = bridge.NewContext(
			fli.New(k), hdl.NewResolver(hdl.ResolveError, 1))

		var ok bool
		top, ok = ctx.RootHandle("top")
		Expect(ok).To(BeTrue())
	})

	It("should hide generate scopes from the children query", func() {
		names := namesOf(ctx.IterateChildren(top).Collect())

		Expect(names).To(Equal([]string{
			"top.WIDTH", "top.clk", "top.pkt", "top.mem",
		}))
	})

	It("should synthesize generate scopes from bracketed names", func() {
		ring, ok := ctx.ChildHandle(top, "ring[1]")
		Expect(ok).To(BeTrue())
		Expect(ring.Name()).To(Equal("top.ring[1]"))
		Expect(ring.Kind()).To(Equal(bridge.KindModule))

		q, ok := ctx.ChildHandle(ring, "q")
		Expect(ok).To(BeTrue())
		Expect(q.Len()).To(Equal(1))

		_, ok = ctx.ChildHandle(top, "ring[7]")
		Expect(ok).To(BeFalse())
	})

	It("should fall through bracketed names to array elements", func() {
		elem, ok := ctx.ChildHandle(top, "mem[3]")
		Expect(ok).To(BeTrue())
		Expect(elem.Name()).To(Equal("top.mem[3]"))
		Expect(elem.Kind()).To(Equal(bridge.KindLogic))
		Expect(elem.Len()).To(Equal(8))
	})

	It("should use one relationship query for every container kind", func() {
		pkt, _ := ctx.ChildHandle(top, "pkt")
		Expect(namesOf(ctx.IterateChildren(pkt).Collect())).To(Equal(
			[]string{"top.pkt.addr", "top.pkt.valid"}))

		mem, _ := ctx.ChildHandle(top, "mem")
		Expect(namesOf(ctx.IterateChildren(mem).Collect())).To(Equal(
			[]string{"top.mem[0]", "top.mem[1]", "top.mem[2]", "top.mem[3]"}))
	})

	It("should defer timer cancellation and suppress the late firing", func() {
		fired := false
		cb, err := ctx.ArmTimer(
			uint64(k.Timescale().ToVTime(10)), func() { fired = true })
		Expect(err).ToNot(HaveOccurred())

		cb.Cancel()
		Expect(cb.State()).To(Equal(bridge.CallbackDelete))

		Expect(k.Run()).To(Succeed())
		Expect(fired).To(BeFalse())
		Expect(cb.State()).To(Equal(bridge.CallbackFree))
	})

	It("should defer edge-watch cancellation until the next edge", func() {
		clk, _ := ctx.ChildHandle(top, "clk")

		fired := false
		cb, err := ctx.ArmValueChange(clk, bridge.EdgeRising,
			func() { fired = true })
		Expect(err).ToNot(HaveOccurred())

		cb.Cancel()
		Expect(cb.State()).To(Equal(bridge.CallbackDelete))

		_, err = ctx.ArmTimer(uint64(k.Timescale().ToVTime(5)), func() {
			Expect(clk.SetLogic(
				hdl.VectorFromUint64(1, 1), bridge.ActionDeposit)).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		// The native watch fires once more on the edge; the delivery is
		// swallowed and the handle retires.
		Expect(k.Run()).To(Succeed())
		Expect(fired).To(BeFalse())
		Expect(cb.State()).To(Equal(bridge.CallbackFree))
	})
})
