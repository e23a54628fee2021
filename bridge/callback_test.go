package bridge

import (
	"errors"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/cosimlab/cosim/hdl"
)

var errBackend = errors.New("backend out of resources")

var _ = ginkgo.Describe("Callback lifecycle", func() {
	var (
		mockCtrl *gomock.Controller
		adapter  *fakeAdapter
		ctx      *Context
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		adapter = newFakeAdapter()
		ctx = NewContext(adapter, hdl.NewResolver(hdl.ResolveError, 1))
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should move FREE to PRIMED on a successful arm", func() {
		cb, err := ctx.ArmTimer(10, func() {})

		Expect(err).ToNot(HaveOccurred())
		Expect(cb.State()).To(Equal(CallbackPrimed))
		Expect(adapter.registered).To(HaveLen(1))
		Expect(adapter.registered[0].req.Reason).To(Equal(ReasonAfterDelay))
		Expect(adapter.registered[0].req.Delay.Uint64()).To(Equal(uint64(10)))
	})

	ginkgo.It("should surface a registration failure", func() {
		adapter.registerErr = errBackend
		_, err := ctx.ArmTimer(10, func() {})

		var regErr *RegistrationError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &regErr)).To(BeTrue())
		Expect(regErr.Reason).To(Equal(ReasonAfterDelay))
		Expect(errors.Is(err, errBackend)).To(BeTrue())
	})

	ginkgo.It("should run the handler and free a one-shot callback", func() {
		fired := 0
		cb, err := ctx.ArmTimer(10, func() { fired++ })
		Expect(err).ToNot(HaveOccurred())

		adapter.registered[0].fire()

		Expect(fired).To(Equal(1))
		Expect(cb.State()).To(Equal(CallbackFree))
	})

	ginkgo.It("should reuse pooled handles of the same reason", func() {
		cb1, err := ctx.ArmTimer(10, func() {})
		Expect(err).ToNot(HaveOccurred())
		adapter.registered[0].fire()

		cb2, err := ctx.ArmTimer(20, func() {})
		Expect(err).ToNot(HaveOccurred())

		Expect(cb2).To(BeIdenticalTo(cb1))
		Expect(cb2.State()).To(Equal(CallbackPrimed))
	})

	ginkgo.It("should support rearming from within the delivery", func() {
		fired := 0
		var cb *Callback
		var err error

		cb, err = ctx.ArmTimer(10, func() {
			fired++
			if fired == 1 {
				Expect(cb.Rearm()).To(Succeed())
			}
		})
		Expect(err).ToNot(HaveOccurred())

		adapter.registered[0].fire()
		Expect(cb.State()).To(Equal(CallbackPrimed))

		adapter.registered[1].fire()
		Expect(fired).To(Equal(2))
		Expect(cb.State()).To(Equal(CallbackFree))
	})

	ginkgo.It("should truly cancel when the backend supports it", func() {
		backend := NewMockBackendCallback(mockCtrl)
		backend.EXPECT().Cancel().Return(true)
		adapter.newBackend = func() BackendCallback { return backend }

		cb, err := ctx.ArmTimer(10, func() {})
		Expect(err).ToNot(HaveOccurred())

		cb.Cancel()
		Expect(cb.State()).To(Equal(CallbackFree))
	})

	ginkgo.It("should defer cancellation and suppress the extra firing", func() {
		backend := NewMockBackendCallback(mockCtrl)
		backend.EXPECT().Cancel().Return(false)
		adapter.newBackend = func() BackendCallback { return backend }

		fired := 0
		cb, err := ctx.ArmTimer(10, func() { fired++ })
		Expect(err).ToNot(HaveOccurred())

		cb.Cancel()
		Expect(cb.State()).To(Equal(CallbackDelete))

		adapter.registered[0].fire()
		Expect(fired).To(BeZero())
		Expect(cb.State()).To(Equal(CallbackFree))
	})

	ginkgo.It("should panic on a delivery in FREE state", func() {
		cb, err := ctx.ArmTimer(10, func() {})
		Expect(err).ToNot(HaveOccurred())

		adapter.registered[0].fire()
		Expect(cb.State()).To(Equal(CallbackFree))

		Expect(func() { adapter.registered[0].fire() }).To(Panic())
	})

	ginkgo.It("should keep at most one primed watch per handle and edge", func() {
		root := &fakeObject{name: "top.sig", kind: KindLogic, length: 1}
		adapter.roots[root.name] = root
		h, ok := ctx.RootHandle(root.name)
		Expect(ok).To(BeTrue())

		cb1, err := ctx.ArmValueChange(h, EdgeRising, func() {})
		Expect(err).ToNot(HaveOccurred())

		cb2, err := ctx.ArmValueChange(h, EdgeRising, func() {})
		Expect(err).ToNot(HaveOccurred())

		Expect(cb1.State()).To(Equal(CallbackFree))
		Expect(cb2.State()).To(Equal(CallbackPrimed))
	})

	ginkgo.It("should allow one primed watch per edge kind on one handle", func() {
		root := &fakeObject{name: "top.sig", kind: KindLogic, length: 1}
		adapter.roots[root.name] = root
		h, ok := ctx.RootHandle(root.name)
		Expect(ok).To(BeTrue())

		cb1, err := ctx.ArmValueChange(h, EdgeRising, func() {})
		Expect(err).ToNot(HaveOccurred())

		cb2, err := ctx.ArmValueChange(h, EdgeFalling, func() {})
		Expect(err).ToNot(HaveOccurred())

		Expect(cb1.State()).To(Equal(CallbackPrimed))
		Expect(cb2.State()).To(Equal(CallbackPrimed))
	})
})
