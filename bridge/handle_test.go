package bridge

import (
	"errors"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cosimlab/cosim/hdl"
)

var _ = ginkgo.Describe("Handle", func() {
	var (
		adapter *fakeAdapter
		ctx     *Context
	)

	ginkgo.BeforeEach(func() {
		adapter = newFakeAdapter()
		ctx = NewContext(adapter, hdl.NewResolver(hdl.ResolveZeros, 1))
	})

	ginkgo.It("should cache handles by name across resolutions", func() {
		obj := &fakeObject{name: "top", kind: KindModule}
		adapter.roots["top"] = obj

		h1, ok := ctx.RootHandle("top")
		Expect(ok).To(BeTrue())

		h2, ok := ctx.RootHandle("top")
		Expect(ok).To(BeTrue())
		Expect(h2).To(BeIdenticalTo(h1))
		Expect(ctx.NumHandles()).To(Equal(1))
	})

	ginkgo.It("should report a lookup miss as an absence", func() {
		_, ok := ctx.RootHandle("nope")
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should resolve children through the adapter", func() {
		top := &fakeObject{name: "top", kind: KindModule}
		sig := &fakeObject{name: "top.sig", kind: KindLogic, length: 4}
		adapter.roots["top"] = top
		adapter.children["top.sig"] = sig

		h, ok := ctx.RootHandle("top")
		Expect(ok).To(BeTrue())

		child, ok := ctx.ChildHandle(h, "sig")
		Expect(ok).To(BeTrue())
		Expect(child.Name()).To(Equal("top.sig"))
		Expect(child.Kind()).To(Equal(KindLogic))
		Expect(child.Len()).To(Equal(4))
		Expect(child.Parent()).To(BeIdenticalTo(h))
	})

	ginkgo.It("should write and read back a four-state value", func() {
		sig := &fakeObject{name: "top.sig", kind: KindLogic, length: 4}
		adapter.roots["top.sig"] = sig
		h, _ := ctx.RootHandle("top.sig")

		v, err := hdl.ParseVector("10z1")
		Expect(err).ToNot(HaveOccurred())
		Expect(h.SetLogic(v, ActionDeposit)).To(Succeed())

		got, err := h.BinStr()
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal("10z1"))
	})

	ginkgo.It("should apply the unknown-bit policy when reading integers", func() {
		sig := &fakeObject{name: "top.sig", kind: KindLogic, length: 4}
		sig.value, _ = hdl.ParseVector("1x1x")
		adapter.roots["top.sig"] = sig
		h, _ := ctx.RootHandle("top.sig")

		// The context resolver forces unknowns to zero.
		v, err := h.Integer()
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(int64(0b1010)))
	})

	ginkgo.It("should raise ReadOnlyViolation on writes to constants", func() {
		p := &fakeObject{
			name: "top.WIDTH", kind: KindInteger, constant: true}
		adapter.roots["top.WIDTH"] = p
		h, _ := ctx.RootHandle("top.WIDTH")

		err := h.SetInteger(3, ActionDeposit)

		var roErr *ReadOnlyViolation
		Expect(errors.As(err, &roErr)).To(BeTrue())
		Expect(roErr.Name).To(Equal("top.WIDTH"))
	})

	ginkgo.It("should escalate read-only-phase writes to protocol violations",
		func() {
			sig := &fakeObject{
				name: "top.sig", kind: KindLogic, length: 1, inRO: true}
			adapter.roots["top.sig"] = sig
			h, _ := ctx.RootHandle("top.sig")

			err := h.SetLogic(hdl.VectorFromUint64(1, 1), ActionDeposit)

			var pv *ProtocolViolation
			Expect(errors.As(err, &pv)).To(BeTrue())
		})
})
