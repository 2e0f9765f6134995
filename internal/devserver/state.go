package devserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// State is the fixture's in-memory message storage. It implements just
// enough of the persistence contract for the sync engine to run against:
// server-assigned ids, created_at stamping, seen sets, deletion.
type State struct {
	mu       sync.RWMutex
	nextID   int
	messages map[string][]models.Message // thread id -> created_at ascending
}

// NewState constructs empty storage.
func NewState() *State {
	return &State{messages: make(map[string][]models.Message)}
}

// CreateMessage persists a new message and returns the authoritative record.
// The caller's localId is echoed back so clients can correlate broadcasts
// with their own placeholders.
func (s *State) CreateMessage(threadID, senderID string, req api.CreateMessageRequest) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := models.Message{
		ID:        fmt.Sprintf("msg-%d", s.nextID),
		LocalID:   req.LocalID,
		ThreadID:  threadID,
		SenderID:  senderID,
		Sender:    models.Sender{ID: senderID, Name: senderID},
		Body:      req.Body,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		CreatedAt: time.Now().UTC(),
		SeenIDs:   []string{},
		Status:    models.StatusSent,
	}
	s.messages[threadID] = append(s.messages[threadID], msg)
	return msg
}

// List returns a thread's messages, created_at ascending.
func (s *State) List(threadID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.messages[threadID]))
	for _, m := range s.messages[threadID] {
		out = append(out, m.Clone())
	}
	return out
}

// Delete removes a message by id, returning the removed record.
func (s *State) Delete(messageID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for threadID, msgs := range s.messages {
		for i, m := range msgs {
			if m.ID == messageID {
				s.messages[threadID] = append(msgs[:i], msgs[i+1:]...)
				return m, true
			}
		}
	}
	return models.Message{}, false
}

// MarkSeen adds userID to a message's seen set. An empty messageID targets
// the thread's latest message. Marking twice is a no-op; the updated record
// and whether anything changed are returned.
func (s *State) MarkSeen(threadID, userID, messageID string) (models.Message, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[threadID]
	if len(msgs) == 0 {
		return models.Message{}, false, false
	}

	idx := len(msgs) - 1
	if messageID != "" {
		idx = -1
		for i, m := range msgs {
			if m.ID == messageID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return models.Message{}, false, false
		}
	}

	if msgs[idx].SeenBy(userID) {
		return msgs[idx].Clone(), true, false
	}
	msgs[idx].MarkSeenBy(userID)
	return msgs[idx].Clone(), true, true
}
