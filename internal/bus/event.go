package bus

import "time"

// Event kinds published by the client. Subscribers filter by prefix, so
// "push." receives every push channel event.
const (
	KindStatusChanged = "session.status_changed"
	KindViewChanged   = "sync.view_changed"
	KindUIError       = "ui.error"
	KindPushPrefix    = "push."
	KindPushClosed    = "push.closed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// PushKind is the bus kind of a push channel event name.
func PushKind(name string) string {
	return KindPushPrefix + name
}
