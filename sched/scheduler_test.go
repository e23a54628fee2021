package sched

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/hdl"
)

var _ = Describe("Scheduler", func() {
	It("should resume a task after its delay", func() {
		h := newVPIHarness()

		var resumedAt uint64
		h.s.Spawn("waiter", func(t *Task) error {
			if err := t.Wait(NewTimer(10)); err != nil {
				return err
			}

			resumedAt = h.ctx.Now()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(resumedAt).To(Equal(h.at(10)))
	})

	It("should wake edge waiters only on their edge", func() {
		h := newVPIHarness()

		rising := RisingEdge(h.clk)
		falling := FallingEdge(h.clk)

		var rises, falls []uint64
		h.s.Spawn("rise-watch", func(t *Task) error {
			for i := 0; i < 3; i++ {
				if err := t.Wait(rising); err != nil {
					return err
				}
				rises = append(rises, h.ctx.Now())
			}

			return nil
		})
		h.s.Spawn("fall-watch", func(t *Task) error {
			for i := 0; i < 3; i++ {
				if err := t.Wait(falling); err != nil {
					return err
				}
				falls = append(falls, h.ctx.Now())
			}

			return nil
		})

		h.spawnClock(4)

		Expect(h.k.Run()).To(Succeed())

		// The very first drive moves the clock from unknown to 0, which
		// counts as a falling edge.
		Expect(falls).To(Equal([]uint64{h.at(0), h.at(10), h.at(20)}))
		Expect(rises).To(Equal([]uint64{h.at(5), h.at(15), h.at(25)}))
	})

	It("should wake every independent waiter on the same edge", func() {
		h := newVPIHarness()

		// Each waiter builds its own trigger for the same (signal, edge)
		// pair; neither may displace the other's watch.
		woken := map[string]bool{}
		for _, name := range []string{"w1", "w2"} {
			name := name
			h.s.Spawn(name, func(t *Task) error {
				if err := t.Wait(RisingEdge(h.clk)); err != nil {
					return err
				}
				woken[name] = true

				return nil
			})
		}

		h.s.Spawn("driver", func(t *Task) error {
			if err := h.depositClk(0); err != nil {
				return err
			}
			if err := t.Wait(NewTimer(5)); err != nil {
				return err
			}

			return h.depositClk(1)
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(woken).To(Equal(map[string]bool{"w1": true, "w2": true}))
	})

	It("should resume a read-write waiter after deposits commit", func() {
		h := newVPIHarness()

		var seen string
		h.s.Spawn("writer", func(t *Task) error {
			err := h.data.SetLogic(
				hdl.VectorFromUint64(5, 8), bridge.ActionDeposit)
			if err != nil {
				return err
			}

			if err := t.Wait(ReadWrite()); err != nil {
				return err
			}

			seen, err = h.data.BinStr()

			return err
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(seen).To(Equal("00000101"))
	})

	It("should resume a next-time-step waiter when time advances", func() {
		h := newVPIHarness()

		var resumedAt uint64
		h.s.Spawn("step-watch", func(t *Task) error {
			if err := t.Wait(NextTimeStep()); err != nil {
				return err
			}

			resumedAt = h.ctx.Now()

			return nil
		})
		h.s.Spawn("delayer", func(t *Task) error {
			return t.Wait(NewTimer(4))
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(resumedAt).To(Equal(h.at(4)))
	})

	It("should terminate the session when a read-only write escalates",
		func() {
			h := newVPIHarness()

			bad := h.s.Spawn("late-writer", func(t *Task) error {
				if err := t.Wait(ReadOnly()); err != nil {
					return err
				}

				return h.data.SetLogic(
					hdl.VectorFromUint64(1, 8), bridge.ActionDeposit)
			})

			Expect(h.k.Run()).To(Succeed())

			Expect(bad.State()).To(Equal(TaskFailed))

			var pv *bridge.ProtocolViolation
			Expect(errors.As(bad.Err(), &pv)).To(BeTrue())

			// A protocol violation is fatal to the session, not just to
			// the offending task.
			Expect(h.s.Fatal()).To(BeIdenticalTo(bad.Err()))
		})

	It("should report the winner of a completion race", func() {
		h := newVPIHarness()

		fast := h.s.Spawn("fast", func(t *Task) error {
			if err := t.Wait(NewTimer(3)); err != nil {
				return err
			}
			t.SetResult("fast-done")

			return nil
		})
		slow := h.s.Spawn("slow", func(t *Task) error {
			return t.Wait(NewTimer(9))
		})

		var winner Trigger
		var wonAt uint64
		h.s.Spawn("racer", func(t *Task) error {
			w, err := t.WaitFirst(fast.Join(), slow.Join())
			if err != nil {
				return err
			}

			winner = w
			wonAt = h.ctx.Now()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())

		Expect(winner).To(BeIdenticalTo(fast.Join()))
		Expect(wonAt).To(Equal(h.at(3)))
		Expect(fast.Result()).To(Equal("fast-done"))

		// The losing task still runs to completion on its own.
		Expect(slow.State()).To(Equal(TaskFinished))
	})

	It("should isolate a constant-write failure to its task", func() {
		h := newVPIHarness()

		width, ok := h.ctx.RootHandle("top.WIDTH")
		Expect(ok).To(BeTrue())

		bad := h.s.Spawn("bad-write", func(t *Task) error {
			if err := t.Wait(NewTimer(1)); err != nil {
				return err
			}

			return width.SetInteger(16, bridge.ActionDeposit)
		})
		good := h.s.Spawn("good", func(t *Task) error {
			return t.Wait(NewTimer(4))
		})

		Expect(h.k.Run()).To(Succeed())

		Expect(bad.State()).To(Equal(TaskFailed))

		var roErr *bridge.ReadOnlyViolation
		Expect(errors.As(bad.Err(), &roErr)).To(BeTrue())

		// A recoverable violation fails the task, not the session.
		Expect(h.s.Failures()).To(HaveLen(1))
		Expect(h.s.Fatal()).To(BeNil())
		Expect(good.State()).To(Equal(TaskFinished))
	})

	It("should leave no visible effect when a killed wait fires", func() {
		h := newFLIHarness()

		trig := RisingEdge(h.clk)

		resumed := false
		victim := h.s.Spawn("victim", func(t *Task) error {
			if err := t.Wait(trig); err != nil {
				return err
			}
			resumed = true

			return nil
		})

		// The backend cannot unschedule, so the cancellation is deferred.
		cb := trig.cb
		Expect(cb.State()).To(Equal(bridge.CallbackPrimed))

		var stateAfterKill bridge.CallbackState
		h.s.Spawn("killer", func(t *Task) error {
			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}

			victim.Kill()
			stateAfterKill = cb.State()

			return nil
		})

		h.s.Spawn("driver", func(t *Task) error {
			if err := h.depositClk(0); err != nil {
				return err
			}
			if err := t.Wait(NewTimer(5)); err != nil {
				return err
			}

			return h.depositClk(1)
		})

		Expect(h.k.Run()).To(Succeed())

		Expect(stateAfterKill).To(Equal(bridge.CallbackDelete))
		Expect(cb.State()).To(Equal(bridge.CallbackFree))
		Expect(resumed).To(BeFalse())
		Expect(victim.State()).To(Equal(TaskKilled))
		Expect(victim.Err()).To(MatchError(ErrTaskKilled))
	})

	It("should start sibling tasks in program order", func() {
		h := newVPIHarness()

		var order []string
		h.s.Spawn("parent", func(t *Task) error {
			order = append(order, "parent-head")

			t.Scheduler().Spawn("a", func(t *Task) error {
				order = append(order, "a")

				return nil
			})
			t.Scheduler().Spawn("b", func(t *Task) error {
				order = append(order, "b")

				return nil
			})

			order = append(order, "parent-tail")

			return t.Wait(NewTimer(1))
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(order).To(Equal([]string{"parent-head", "parent-tail", "a", "b"}))
	})

	It("should propagate a failure through the completion trigger", func() {
		h := newVPIHarness()

		failing := h.s.Spawn("failing", func(t *Task) error {
			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}

			return Failf("checker saw %d mismatches", 3)
		})

		var joinErr error
		h.s.Spawn("joiner", func(t *Task) error {
			joinErr = t.Wait(failing.Join())

			return nil
		})

		Expect(h.k.Run()).To(Succeed())

		var tf *TestFailure
		Expect(errors.As(joinErr, &tf)).To(BeTrue())
		Expect(tf.Msg).To(Equal("checker saw 3 mismatches"))
	})

	It("should continue without suspending on a finished completion", func() {
		h := newVPIHarness()

		done := h.s.Spawn("done", func(t *Task) error {
			t.SetResult(42)

			return nil
		})

		var sawAt uint64
		h.s.Spawn("late-joiner", func(t *Task) error {
			if err := t.Wait(NewTimer(6)); err != nil {
				return err
			}
			if err := t.Wait(done.Join()); err != nil {
				return err
			}

			sawAt = h.ctx.Now()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(sawAt).To(Equal(h.at(6)))
		Expect(done.Result()).To(Equal(42))
	})

	It("should kill a task that never started", func() {
		h := newVPIHarness()

		var victim *Task
		h.s.Spawn("killer", func(t *Task) error {
			victim = t.Scheduler().Spawn("victim", func(t *Task) error {
				return t.Wait(NewTimer(100))
			})
			victim.Kill()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(victim.State()).To(Equal(TaskKilled))
	})

	It("should run deferred cleanup when a task is killed", func() {
		h := newVPIHarness()

		cleaned := false
		victim := h.s.Spawn("victim", func(t *Task) error {
			defer func() { cleaned = true }()

			return t.Wait(NewTimer(100))
		})

		h.s.Spawn("killer", func(t *Task) error {
			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}
			victim.Kill()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(cleaned).To(BeTrue())
		Expect(victim.State()).To(Equal(TaskKilled))
	})

	It("should wait for all members of a combinator", func() {
		h := newVPIHarness()

		a := h.s.Spawn("a", func(t *Task) error {
			return t.Wait(NewTimer(3))
		})
		b := h.s.Spawn("b", func(t *Task) error {
			return t.Wait(NewTimer(7))
		})

		var doneAt uint64
		h.s.Spawn("barrier", func(t *Task) error {
			if err := t.Wait(All(a.Join(), b.Join())); err != nil {
				return err
			}

			doneAt = h.ctx.Now()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(doneAt).To(Equal(h.at(7)))
	})

	It("should register a shared barrier with each member once", func() {
		h := newVPIHarness()

		e1 := h.s.NewEvent("e1")
		e2 := h.s.NewEvent("e2")
		barrier := All(e1, e2)

		w1 := h.s.Spawn("w1", func(t *Task) error {
			return t.Wait(barrier)
		})
		w2 := h.s.Spawn("w2", func(t *Task) error {
			return t.Wait(barrier)
		})

		var memberWaiters int
		h.s.Spawn("setter", func(t *Task) error {
			if err := t.Wait(NewTimer(1)); err != nil {
				return err
			}

			// The second waiter joins the barrier without re-priming its
			// members.
			memberWaiters = e1.numWaiters()

			e1.Set(nil)
			e2.Set(nil)

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(memberWaiters).To(Equal(1))
		Expect(w1.State()).To(Equal(TaskFinished))
		Expect(w2.State()).To(Equal(TaskFinished))
	})
})
