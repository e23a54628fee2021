package kernel

// An Event is something going to happen at a future simulation time.
type Event interface {
	// Time returns the time that the event should happen.
	Time() VTime

	// Handler returns the handler that should handle the event.
	Handler() Handler
}

// A Handler defines a domain for events. An event can only be scheduled by
// its handler and can only directly modify that handler.
type Handler interface {
	Handle(e Event) error
}

// EventBase provides the basic fields and getters for other events.
type EventBase struct {
	ID      string
	time    VTime
	handler Handler
}

// NewEventBase creates a new EventBase.
func NewEventBase(t VTime, handler Handler) *EventBase {
	e := new(EventBase)
	e.ID = GetIDGenerator().Generate()
	e.time = t
	e.handler = handler

	return e
}

// Time returns the time that the event is going to happen.
func (e EventBase) Time() VTime {
	return e.time
}

// Handler returns the handler to handle the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// An EventScheduler can be used to schedule future events.
type EventScheduler interface {
	Schedule(e Event)
}

// funcEvent runs a plain function when it fires. The kernel uses it for timer
// wake-ups; it carries a cancellation mark so that a backend that supports
// true cancellation can retire it before it fires.
type funcEvent struct {
	EventBase

	fn       func()
	canceled bool
	fired    bool
}

func (e *funcEvent) Handle(evt Event) error {
	fe := evt.(*funcEvent)
	if fe.canceled {
		return nil
	}

	fe.fired = true
	fe.fn()

	return nil
}

func (e *funcEvent) Handler() Handler {
	return e
}
