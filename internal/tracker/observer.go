package tracker

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventLaunched     EventType = "launched"
	EventAttached     EventType = "attached"
	EventUpdated      EventType = "updated"
	EventError        EventType = "error"
	EventStopped      EventType = "stopped"
	EventTerminal     EventType = "terminal"
	EventNotification EventType = "notification"
)

// Notification is a user-facing message about a success or failure.
type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

// Event is delivered to observers after every session change.
type Event struct {
	Type         EventType
	Time         time.Time
	Snapshot     Snapshot
	Notification *Notification // set for EventNotification only
}

// Observer receives session events. Notify is called in order, one event at
// a time, and never while the tracker holds a lock, so observers may query or
// drive the tracker (Stop, Attach, Launch, Refresh). Events caused from
// inside Notify are delivered after it returns. Slow observers delay the
// tracker.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) {
	f(e)
}

// Observers fans an event out to several observers.
type Observers []Observer

// Notify delivers e to every non-nil observer in order.
func (o Observers) Notify(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(e)
		}
	}
}
