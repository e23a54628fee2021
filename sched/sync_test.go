package sched

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Event", func() {
	It("should wake all waiters when set", func() {
		h := newVPIHarness()
		ev := h.s.NewEvent("go")

		var woken []string
		watch := func(name string) {
			h.s.Spawn(name, func(t *Task) error {
				if err := t.Wait(ev); err != nil {
					return err
				}
				woken = append(woken, name)

				return nil
			})
		}

		watch("w1")
		watch("w2")

		h.s.Spawn("setter", func(t *Task) error {
			if err := t.Wait(NewTimer(3)); err != nil {
				return err
			}
			ev.Set("payload")

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(woken).To(Equal([]string{"w1", "w2"}))
		Expect(ev.IsSet()).To(BeTrue())
		Expect(ev.Data()).To(Equal("payload"))
	})

	It("should not suspend on an already set event", func() {
		h := newVPIHarness()
		ev := h.s.NewEvent("go")

		var sawAt uint64
		h.s.Spawn("waiter", func(t *Task) error {
			ev.Set(nil)

			if err := t.Wait(ev); err != nil {
				return err
			}

			sawAt = h.ctx.Now()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(sawAt).To(Equal(h.at(0)))
	})

	It("should block again after a clear", func() {
		h := newVPIHarness()
		ev := h.s.NewEvent("go")

		var rounds []uint64
		h.s.Spawn("waiter", func(t *Task) error {
			for i := 0; i < 2; i++ {
				if err := t.Wait(ev); err != nil {
					return err
				}
				rounds = append(rounds, h.ctx.Now())
				ev.Clear()
			}

			return nil
		})

		h.s.Spawn("setter", func(t *Task) error {
			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}
			ev.Set(nil)

			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}
			ev.Set(nil)

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(rounds).To(Equal([]uint64{h.at(2), h.at(4)}))
	})
})

var _ = Describe("Lock", func() {
	It("should grant contenders in FIFO order", func() {
		h := newVPIHarness()
		lk := h.s.NewLock("bus")

		var grants []string
		user := func(name string, startDelay uint64) {
			h.s.Spawn(name, func(t *Task) error {
				if err := t.Wait(NewTimer(startDelay)); err != nil {
					return err
				}

				if err := t.Wait(lk.Acquire()); err != nil {
					return err
				}
				grants = append(grants, name)

				if err := t.Wait(NewTimer(10)); err != nil {
					return err
				}
				lk.Release()

				return nil
			})
		}

		user("u1", 1)
		user("u2", 2)
		user("u3", 3)

		Expect(h.k.Run()).To(Succeed())
		Expect(grants).To(Equal([]string{"u1", "u2", "u3"}))
	})

	It("should grant an uncontended lock without suspending", func() {
		h := newVPIHarness()
		lk := h.s.NewLock("bus")

		var heldAt uint64
		h.s.Spawn("solo", func(t *Task) error {
			if err := t.Wait(lk.Acquire()); err != nil {
				return err
			}

			heldAt = h.ctx.Now()
			lk.Release()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(heldAt).To(Equal(h.at(0)))
		Expect(lk.Locked()).To(BeFalse())
	})

	It("should skip a killed contender in the queue", func() {
		h := newVPIHarness()
		lk := h.s.NewLock("bus")

		var grants []string

		holder := h.s.Spawn("holder", func(t *Task) error {
			if err := t.Wait(lk.Acquire()); err != nil {
				return err
			}
			grants = append(grants, "holder")

			if err := t.Wait(NewTimer(10)); err != nil {
				return err
			}
			lk.Release()

			return nil
		})
		_ = holder

		doomed := h.s.Spawn("doomed", func(t *Task) error {
			if err := t.Wait(NewTimer(1)); err != nil {
				return err
			}

			if err := t.Wait(lk.Acquire()); err != nil {
				return err
			}
			grants = append(grants, "doomed")
			lk.Release()

			return nil
		})

		h.s.Spawn("patient", func(t *Task) error {
			if err := t.Wait(NewTimer(2)); err != nil {
				return err
			}

			if err := t.Wait(lk.Acquire()); err != nil {
				return err
			}
			grants = append(grants, "patient")
			lk.Release()

			return nil
		})

		h.s.Spawn("killer", func(t *Task) error {
			if err := t.Wait(NewTimer(5)); err != nil {
				return err
			}
			doomed.Kill()

			return nil
		})

		Expect(h.k.Run()).To(Succeed())
		Expect(grants).To(Equal([]string{"holder", "patient"}))
	})
})

var _ = Describe("First", func() {
	It("should deregister the losing triggers", func() {
		h := newVPIHarness()

		rising := RisingEdge(h.clk)
		timeout := NewTimer(3)

		var winner Trigger
		h.s.Spawn("racer", func(t *Task) error {
			w, err := t.WaitFirst(rising, timeout)
			if err != nil {
				return err
			}
			winner = w

			return nil
		})

		h.spawnClock(1)

		Expect(h.k.Run()).To(Succeed())

		// The timer at 3 beats the rising edge at 5, and the losing edge
		// watch is disarmed before the edge arrives.
		Expect(winner).To(BeIdenticalTo(timeout))
		Expect(rising.numWaiters()).To(BeZero())
		Expect(rising.cb).To(BeNil())
	})
})
