package sched

// A FirstTrigger fires as soon as any of its members does. The losing
// members are deregistered before any waiter resumes, cascading through
// nested combinators.
type FirstTrigger struct {
	triggerBase

	members []Trigger
	primed  []Trigger
	winner  Trigger
	fired   bool
}

// First combines triggers into a wait-for-first.
func First(trs ...Trigger) *FirstTrigger {
	return &FirstTrigger{members: trs}
}

// Winner returns the member that fired, or nil before the combinator
// fires.
func (f *FirstTrigger) Winner() Trigger {
	return f.winner
}

func (f *FirstTrigger) prime(s *Scheduler, w waiter) error {
	if f.fired {
		w.wake(f)

		return nil
	}

	f.addWaiter(w)

	if len(f.primed) > 0 {
		return nil
	}

	for _, m := range f.members {
		if err := f.primeMember(s, m); err != nil {
			f.unprimeMembers()
			f.removeWaiter(w)

			return err
		}

		// A member that was already ready fired during its prime. The
		// rest must not be armed at all.
		if f.fired {
			break
		}
	}

	return nil
}

func (f *FirstTrigger) primeMember(s *Scheduler, m Trigger) error {
	if err := m.prime(s, f); err != nil {
		return err
	}

	if !f.fired {
		f.primed = append(f.primed, m)
	}

	return nil
}

func (f *FirstTrigger) unprime(w waiter) {
	f.removeWaiter(w)

	if f.numWaiters() == 0 {
		f.unprimeMembers()
	}
}

func (f *FirstTrigger) unprimeMembers() {
	for _, m := range f.primed {
		m.unprime(f)
	}
	f.primed = nil
}

// wake records the winner and deregisters the losers before waking the
// combinator's own waiters.
func (f *FirstTrigger) wake(tr Trigger) {
	if f.fired {
		return
	}

	f.fired = true
	f.winner = tr

	for _, m := range f.primed {
		if m != tr {
			m.unprime(f)
		}
	}
	f.primed = nil

	f.fireWaiters(f)
}

// An AllTrigger fires when every member has fired at least once.
type AllTrigger struct {
	triggerBase

	members []Trigger
	done    map[Trigger]bool
	primed  bool
	fired   bool
}

// All combines triggers into a wait-for-all.
func All(trs ...Trigger) *AllTrigger {
	return &AllTrigger{
		members: trs,
		done:    make(map[Trigger]bool),
	}
}

func (a *AllTrigger) prime(s *Scheduler, w waiter) error {
	if a.fired {
		w.wake(a)

		return nil
	}

	a.addWaiter(w)

	// Later waiters join the already-primed members; re-priming would
	// register the combinator with each member a second time.
	if a.primed {
		return nil
	}

	a.primed = true

	for _, m := range a.members {
		if a.done[m] {
			continue
		}

		if err := m.prime(s, a); err != nil {
			a.unprimeMembers()
			a.removeWaiter(w)
			a.primed = false

			return err
		}
	}

	if !a.fired && a.remaining() == 0 {
		a.fireAll()
	}

	return nil
}

func (a *AllTrigger) unprime(w waiter) {
	a.removeWaiter(w)

	if a.numWaiters() == 0 {
		a.unprimeMembers()
		a.primed = false
	}
}

func (a *AllTrigger) unprimeMembers() {
	for _, m := range a.members {
		if !a.done[m] {
			m.unprime(a)
		}
	}
}

func (a *AllTrigger) remaining() int {
	n := 0
	for _, m := range a.members {
		if !a.done[m] {
			n++
		}
	}

	return n
}

func (a *AllTrigger) wake(tr Trigger) {
	a.done[tr] = true

	if !a.fired && a.remaining() == 0 {
		a.fireAll()
	}
}

func (a *AllTrigger) fireAll() {
	a.fired = true
	a.fireWaiters(a)
}
