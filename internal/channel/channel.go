package channel

// Channel is the push-event surface the sync engine consumes. The concrete
// implementation is the websocket Client; tests use the in-memory Memory
// channel so no transport is involved.
type Channel interface {
	// Subscribe joins a channel key. Events for that key start flowing to
	// bound handlers once the server acknowledges.
	Subscribe(key string) error

	// Unsubscribe leaves a channel key. Must be paired with every Subscribe;
	// the engine unsubscribes the previous thread before switching.
	Unsubscribe(key string) error

	// Bind registers a handler for an event kind across all subscribed
	// channels. The returned Binding must be unbound when the owner goes away,
	// otherwise a remount would register the handler twice.
	Bind(kind EventKind, h Handler) *Binding

	// Publish sends a client-originated event (typing indicators) to a
	// channel. Non-client events are rejected by the server.
	Publish(key string, kind EventKind, data interface{}) error
}

// Well-known channel keys.
const (
	// PresenceKey is the single global presence channel every connected
	// client joins; it is not scoped to any thread.
	PresenceKey = "presence-youapp"

	threadKeyPrefix = "thread-"
	userKeyPrefix   = "user-"
)

// ThreadKey returns the channel key carrying a thread's message events.
func ThreadKey(threadID string) string {
	return threadKeyPrefix + threadID
}

// UserKey returns the viewer-scoped notification channel key.
func UserKey(userID string) string {
	return userKeyPrefix + userID
}
