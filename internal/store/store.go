// Package store holds the in-memory message list for each open thread and
// the reconciliation rules that merge the server snapshot, optimistic local
// entries and push-delivered events into one ordered, deduplicated view.
package store

import (
	"sync"

	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// MessageStore is the single source of truth for one thread's visible
// message list. Ordering is created_at ascending with insertion order
// breaking ties; id uniqueness is the sole dedupe key.
//
// All mutation is serialized behind the store's mutex, so callers may touch
// it from any goroutine. Snapshots and lookups return clones; nothing handed
// out aliases internal state.
type MessageStore struct {
	mu       sync.RWMutex
	threadID string
	messages []models.Message
}

// NewMessageStore constructs an empty store for a thread.
func NewMessageStore(threadID string) *MessageStore {
	return &MessageStore{threadID: threadID}
}

// ThreadID returns the owning thread's id.
func (s *MessageStore) ThreadID() string {
	return s.threadID
}

// Seed replaces the store contents with the server snapshot. Duplicate ids
// inside the snapshot keep their first occurrence.
func (s *MessageStore) Seed(snapshot []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	seen := make(map[string]struct{}, len(snapshot))
	for _, msg := range snapshot {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg.Clone())
	}
}

// Append inserts a message at its ordered position. It reports false without
// mutating anything when an entry with the same id is already present, or
// when the message carries a localId that an outstanding placeholder already
// holds: a pushed confirmation of our own optimistic send counts as
// already-present, and the pipeline's confirm step does the in-place swap.
func (s *MessageStore) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOfLocked(msg.ID) >= 0 {
		return false
	}
	if msg.LocalID != "" {
		for i := range s.messages {
			if s.messages[i].LocalID == msg.LocalID {
				return false
			}
		}
	}

	// Nearly all arrivals are in order; walk back only past entries that are
	// strictly newer so equal timestamps keep insertion order.
	pos := len(s.messages)
	for pos > 0 && s.messages[pos-1].CreatedAt.After(msg.CreatedAt) {
		pos--
	}

	s.messages = append(s.messages, models.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = msg.Clone()
	return true
}

// Replace swaps the entry with the same id in place, preserving its list
// position. It reports false when no entry matches; the caller must not
// insert speculatively on a miss.
func (s *MessageStore) Replace(id string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		return false
	}
	s.messages[i] = msg.Clone()
	return true
}

// ReplaceByLocalID swaps the optimistic entry correlated by localID,
// preserving its position. This is the confirm step of an optimistic send:
// the placeholder's provisional id gives way to the server-assigned one.
func (s *MessageStore) ReplaceByLocalID(localID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].LocalID == localID && s.messages[i].LocalID != "" {
			s.messages[i] = msg.Clone()
			return true
		}
	}
	return false
}

// Remove deletes the entry with the given id. Absent ids are a no-op.
func (s *MessageStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	return true
}

// Get returns a clone of the message with the given id.
func (s *MessageStore) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOfLocked(id); i >= 0 {
		return s.messages[i].Clone(), true
	}
	return models.Message{}, false
}

// GetByLocalID returns a clone of the optimistic entry correlated by localID.
func (s *MessageStore) GetByLocalID(localID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.messages {
		if s.messages[i].LocalID == localID && s.messages[i].LocalID != "" {
			return s.messages[i].Clone(), true
		}
	}
	return models.Message{}, false
}

// Contains reports whether an id is present.
func (s *MessageStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfLocked(id) >= 0
}

// Len returns the number of messages held.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot returns a deep copy of the current list, in order. The delete
// pipeline keeps one around so a failed delete can restore the exact
// pre-delete state.
func (s *MessageStore) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].Clone()
	}
	return out
}

// Restore replaces the contents with a previously taken snapshot. Used for
// rollback after a failed optimistic delete: intervening mutations are
// discarded wholesale rather than merged.
func (s *MessageStore) Restore(snapshot []models.Message) {
	s.Seed(snapshot)
}

func (s *MessageStore) indexOfLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}
