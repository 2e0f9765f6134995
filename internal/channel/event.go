package channel

import (
	"encoding/json"
)

// EventKind enumerates every event the client consumes or publishes. Using a
// closed enum instead of raw event-name strings keeps dispatch exhaustive and
// typo-proof; the wire names live only in the two mapping functions below.
type EventKind int

const (
	EventUnknown EventKind = iota

	// Connection-level protocol events.
	EventSubscriptionSucceeded
	EventMemberAdded
	EventMemberRemoved

	// Thread-scoped message events.
	EventMessageNew
	EventMessageUpdate
	EventMessageRemove

	// Viewer-scoped notification events.
	EventThreadNew

	// Ephemeral client events, never persisted.
	EventTyping
)

const (
	nameSubscriptionSucceeded = "pusher:subscription_succeeded"
	nameMemberAdded           = "pusher:member_added"
	nameMemberRemoved         = "pusher:member_removed"
	nameMessageNew            = "messages:new"
	nameMessageUpdate         = "message:update"
	nameMessageRemove         = "message:remove"
	nameThreadNew             = "thread:new"
	nameTyping                = "client-typing"
)

// KindFromName maps a wire event name to its kind. Unknown names map to
// EventUnknown and are dropped by the dispatcher.
func KindFromName(name string) EventKind {
	switch name {
	case nameSubscriptionSucceeded:
		return EventSubscriptionSucceeded
	case nameMemberAdded:
		return EventMemberAdded
	case nameMemberRemoved:
		return EventMemberRemoved
	case nameMessageNew:
		return EventMessageNew
	case nameMessageUpdate:
		return EventMessageUpdate
	case nameMessageRemove:
		return EventMessageRemove
	case nameThreadNew:
		return EventThreadNew
	case nameTyping:
		return EventTyping
	}
	return EventUnknown
}

// Name returns the wire event name for a kind.
func (k EventKind) Name() string {
	switch k {
	case EventSubscriptionSucceeded:
		return nameSubscriptionSucceeded
	case EventMemberAdded:
		return nameMemberAdded
	case EventMemberRemoved:
		return nameMemberRemoved
	case EventMessageNew:
		return nameMessageNew
	case EventMessageUpdate:
		return nameMessageUpdate
	case EventMessageRemove:
		return nameMessageRemove
	case EventThreadNew:
		return nameThreadNew
	case EventTyping:
		return nameTyping
	}
	return "unknown"
}

// Envelope is the wire format every frame uses in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Auth    string          `json:"auth,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded inbound frame handed to bound handlers.
type Event struct {
	Kind    EventKind
	Channel string
	Data    json.RawMessage
}

// MemberSnapshot is the payload of a subscription_succeeded frame on a
// presence channel: the full set of currently connected members.
type MemberSnapshot struct {
	Members []MemberInfo `json:"members"`
}

// MemberInfo is the payload of member_added / member_removed frames.
type MemberInfo struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}
