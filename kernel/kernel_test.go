package kernel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cosimlab/cosim/hdl"
)

var _ = Describe("Kernel", func() {
	var (
		design *Design
		top    *Object
		clk    *Object
		k      *Kernel
	)

	BeforeEach(func() {
		design = NewDesign()
		top = design.AddModule(nil, "top")
		clk = design.AddVariable(top, "clk", 1)
		k = NewKernel(design, MakeTimescale(1, Ns))
	})

	It("should run timers in time order", func() {
		var order []int

		_, err := k.AfterDelay(20, func() { order = append(order, 2) })
		Expect(err).ToNot(HaveOccurred())
		_, err = k.AfterDelay(10, func() { order = append(order, 1) })
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(order).To(Equal([]int{1, 2}))
		Expect(k.CurrentTime()).To(Equal(VTime(20)))
	})

	It("should advance time monotonically", func() {
		var stamps []VTime

		for _, d := range []VTime{30, 10, 20, 10} {
			_, err := k.AfterDelay(d, func() {
				stamps = append(stamps, k.CurrentTime())
			})
			Expect(err).ToNot(HaveOccurred())
		}

		Expect(k.Run()).To(Succeed())

		for i := 1; i < len(stamps); i++ {
			Expect(stamps[i]).To(BeNumerically(">=", stamps[i-1]))
		}
	})

	It("should not fire a canceled timer", func() {
		fired := false

		t, err := k.AfterDelay(10, func() { fired = true })
		Expect(err).ToNot(HaveOccurred())
		Expect(k.CancelTimer(t)).To(BeTrue())
		Expect(k.CancelTimer(t)).To(BeFalse())

		Expect(k.Run()).To(Succeed())
		Expect(fired).To(BeFalse())
	})

	It("should commit deposits after the active region settles", func() {
		one := hdl.VectorFromUint64(1, 1)
		var seenAtDeposit, seenAtReadWrite hdl.Vector

		_, err := k.AfterDelay(10, func() {
			Expect(k.SetLogic(clk, one, WriteDeposit)).To(Succeed())
			seenAtDeposit = clk.Signal().Value()

			Expect(k.AtReadWrite(func() {
				seenAtReadWrite = clk.Signal().Value()
			})).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(seenAtDeposit.String()).To(Equal("x"))
		Expect(seenAtReadWrite.String()).To(Equal("1"))
	})

	It("should notify value-change subscribers on commit", func() {
		var notified []string

		_, err := k.OnValueChange(clk, func(old, new hdl.Vector) {
			notified = append(notified, old.String()+"->"+new.String())
		})
		Expect(err).ToNot(HaveOccurred())

		_, err = k.AfterDelay(5, func() {
			Expect(k.SetLogic(
				clk, hdl.VectorFromUint64(1, 1), WriteImmediate)).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(notified).To(Equal([]string{"x->1"}))
	})

	It("should not notify when the committed value is unchanged", func() {
		count := 0

		_, err := k.OnValueChange(clk, func(old, new hdl.Vector) { count++ })
		Expect(err).ToNot(HaveOccurred())

		one := hdl.VectorFromUint64(1, 1)
		_, err = k.AfterDelay(5, func() {
			Expect(k.SetLogic(clk, one, WriteImmediate)).To(Succeed())
			Expect(k.SetLogic(clk, one, WriteImmediate)).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("should order read-write before read-only within one step", func() {
		var order []string

		_, err := k.AfterDelay(10, func() {
			Expect(k.AtReadOnly(func() {
				order = append(order, "ro")
			})).To(Succeed())
			Expect(k.AtReadWrite(func() {
				order = append(order, "rw")
			})).To(Succeed())
			order = append(order, "active")
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(order).To(Equal([]string{"active", "rw", "ro"}))
	})

	It("should reject writes during the read-only phase", func() {
		var writeErr error

		_, err := k.AfterDelay(10, func() {
			Expect(k.AtReadOnly(func() {
				writeErr = k.SetLogic(
					clk, hdl.VectorFromUint64(1, 1), WriteImmediate)
			})).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(writeErr).To(MatchError(ErrReadOnlyPhase))
	})

	It("should reject zero-delay timers during the read-only phase", func() {
		var timerErr error

		_, err := k.AfterDelay(10, func() {
			Expect(k.AtReadOnly(func() {
				_, timerErr = k.AfterDelay(0, func() {})
			})).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(timerErr).To(MatchError(ErrReadOnlyPhase))
	})

	It("should fire next-time-step at the first event of a later step", func() {
		var stamp VTime

		_, err := k.AfterDelay(10, func() {
			k.AtNextTimeStep(func() { stamp = k.CurrentTime() })

			_, err := k.AfterDelay(0, func() {})
			Expect(err).ToNot(HaveOccurred())
			_, err = k.AfterDelay(7, func() {})
			Expect(err).ToNot(HaveOccurred())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(stamp).To(Equal(VTime(17)))
	})

	It("should hold a forced value against deposits", func() {
		one := hdl.VectorFromUint64(1, 1)
		zero := hdl.VectorFromUint64(0, 1)

		_, err := k.AfterDelay(10, func() {
			Expect(k.SetLogic(clk, one, WriteForce)).To(Succeed())
			Expect(k.SetLogic(clk, zero, WriteDeposit)).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		_, err = k.AfterDelay(20, func() {
			Expect(clk.Signal().Value().String()).To(Equal("1"))
			Expect(k.SetLogic(clk, zero, WriteRelease)).To(Succeed())
			Expect(k.SetLogic(clk, zero, WriteImmediate)).To(Succeed())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(clk.Signal().Value().String()).To(Equal("0"))
	})

	It("should reject writes to constants", func() {
		p := design.AddParameter(top, "WIDTH", 8)

		Expect(k.SetInt(p, 4)).To(MatchError(ErrConstWrite))
	})

	It("should call start and finish handlers around the run", func() {
		var order []string

		k.OnStart(func() { order = append(order, "start") })
		k.OnFinish(func(now VTime) { order = append(order, "finish") })

		_, err := k.AfterDelay(10, func() { order = append(order, "evt") })
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(order).To(Equal([]string{"start", "evt", "finish"}))
	})

	It("should stop when a finish is requested", func() {
		ran := false

		_, err := k.AfterDelay(10, func() { k.RequestFinish() })
		Expect(err).ToNot(HaveOccurred())
		_, err = k.AfterDelay(20, func() { ran = true })
		Expect(err).ToNot(HaveOccurred())

		Expect(k.Run()).To(Succeed())
		Expect(ran).To(BeFalse())
		Expect(k.CurrentTime()).To(Equal(VTime(10)))
	})
})
