package models

import (
	"time"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// editedDeadband guards against false "edited" flags caused by clock or
// serialization jitter between created_at and edited_at.
const editedDeadband = time.Second

// Message is a single chat message as held by the client. ID is the
// server-assigned identifier once confirmed; for an optimistic entry it
// temporarily equals LocalID until the server responds.
type Message struct {
	ID       string `json:"id"`
	LocalID  string `json:"local_id,omitempty"` // set only on client-originated messages
	ThreadID string `json:"thread_id"`

	SenderID string `json:"sender_id"`
	Sender   Sender `json:"sender"`

	Body      string    `json:"body,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	SeenIDs []string `json:"seen_ids"`

	// Status is meaningful only on the client while an optimistic entry is
	// outstanding; confirmed messages from the server are always "sent".
	Status MessageStatus `json:"status,omitempty"`

	IsDeleted         bool     `json:"is_deleted"`
	DeletedForUserIDs []string `json:"deleted_for_user_ids,omitempty"`

	Reactions []Reaction `json:"reactions,omitempty"`
}

// Sender is the denormalized author profile carried on every message so the
// list can render without a join.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// HasContent reports whether the message carries a body or an attachment.
// A message with neither is invalid and must be rejected before any send.
func (m *Message) HasContent() bool {
	return m.Body != "" || m.MediaURL != ""
}

// SeenBy reports whether userID already acknowledged this message.
func (m *Message) SeenBy(userID string) bool {
	for _, id := range m.SeenIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkSeenBy adds userID to the seen set. Duplicates never accumulate.
func (m *Message) MarkSeenBy(userID string) {
	if m.SeenBy(userID) {
		return
	}
	m.SeenIDs = append(m.SeenIDs, userID)
}

// IsEdited reports whether the message was modified after creation, with a
// one second deadband so a created_at/edited_at pair written in the same
// persistence round-trip does not count as an edit.
func (m *Message) IsEdited() bool {
	if m.EditedAt == nil {
		return false
	}
	return m.EditedAt.Sub(m.CreatedAt) > editedDeadband
}

// DeletedFor reports whether userID asked for this message to be hidden from
// their own view ("delete for me").
func (m *Message) DeletedFor(userID string) bool {
	for _, id := range m.DeletedForUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate shared state through a returned message.
func (m *Message) Clone() Message {
	out := *m
	if m.SeenIDs != nil {
		out.SeenIDs = append([]string(nil), m.SeenIDs...)
	}
	if m.DeletedForUserIDs != nil {
		out.DeletedForUserIDs = append([]string(nil), m.DeletedForUserIDs...)
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return out
}
