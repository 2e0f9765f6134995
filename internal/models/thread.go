package models

import (
	"time"
)

// Thread is a direct or group conversation. Its ID partitions everything:
// channel subscriptions, message stores, seen reporting.
type Thread struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	IsGroup   bool      `json:"is_group"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`

	LastMessageAt time.Time `json:"last_message_at"`
}

// HasMember reports whether userID belongs to the thread.
func (t *Thread) HasMember(userID string) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
