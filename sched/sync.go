package sched

// An Event is a level-sensitive synchronization flag between tasks.
// Waiting on a set event continues without suspending; setting the event
// wakes every current waiter in registration order.
type Event struct {
	triggerBase

	name  string
	set   bool
	data  interface{}
	sched *Scheduler
}

// NewEvent creates a cleared event owned by the scheduler.
func (s *Scheduler) NewEvent(name string) *Event {
	return &Event{name: name, sched: s}
}

// Name returns the event's name.
func (e *Event) Name() string {
	return e.name
}

// IsSet reports whether the event is currently set.
func (e *Event) IsSet() bool {
	return e.set
}

// Data returns the payload passed to the latest Set.
func (e *Event) Data() interface{} {
	return e.data
}

// Set raises the flag and wakes every waiter. The payload is available to
// woken tasks through Data.
func (e *Event) Set(data interface{}) {
	e.set = true
	e.data = data

	e.fireWaiters(e)
	e.sched.drain()
}

// Clear lowers the flag. Tasks already woken stay runnable.
func (e *Event) Clear() {
	e.set = false
	e.data = nil
}

func (e *Event) prime(s *Scheduler, w waiter) error {
	if e.set {
		w.wake(e)

		return nil
	}

	e.addWaiter(w)

	return nil
}

func (e *Event) unprime(w waiter) {
	e.removeWaiter(w)
}

// A Lock is a mutual-exclusion primitive with FIFO fairness. Contending
// tasks acquire it in the order they asked.
type Lock struct {
	name   string
	sched  *Scheduler
	locked bool
	queue  []*acquireReq
}

// NewLock creates an unlocked lock owned by the scheduler.
func (s *Scheduler) NewLock(name string) *Lock {
	return &Lock{name: name, sched: s}
}

// Name returns the lock's name.
func (l *Lock) Name() string {
	return l.name
}

// Locked reports whether the lock is currently held.
func (l *Lock) Locked() bool {
	return l.locked
}

// Acquire returns a trigger that fires when the lock is granted to the
// caller. An uncontended lock is granted without suspending.
func (l *Lock) Acquire() Trigger {
	return &acquireReq{lock: l}
}

// Release hands the lock to the longest-waiting acquirer, or unlocks it
// if none is queued.
func (l *Lock) Release() {
	if len(l.queue) == 0 {
		l.locked = false

		return
	}

	req := l.queue[0]
	l.queue = l.queue[1:]

	req.grant()
	l.sched.drain()
}

// acquireReq is one pending acquisition. Each Acquire call produces a
// fresh request so the FIFO order of contenders is preserved.
type acquireReq struct {
	lock   *Lock
	waiter waiter
}

func (r *acquireReq) prime(s *Scheduler, w waiter) error {
	r.waiter = w

	if !r.lock.locked {
		r.lock.locked = true
		w.wake(r)

		return nil
	}

	r.lock.queue = append(r.lock.queue, r)

	return nil
}

// unprime drops the request from the queue. A killed task never holds up
// the contenders behind it.
func (r *acquireReq) unprime(w waiter) {
	q := r.lock.queue
	for i, x := range q {
		if x == r {
			r.lock.queue = append(q[:i], q[i+1:]...)

			return
		}
	}
}

func (r *acquireReq) grant() {
	r.waiter.wake(r)
}
