// Package presence maintains the live roster of online users from the
// global presence channel. The roster is app-wide, not per-thread, and is
// never persisted: a user exists here exactly as long as the channel says so.
package presence

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// Tracker owns exactly one presence subscription for its lifetime. Start and
// Stop must be paired: starting twice without stopping would double-register
// every handler.
type Tracker struct {
	ch  channel.Channel
	log *zap.Logger

	mu      sync.RWMutex
	roster  map[string]models.PresenceUser
	started bool

	bindings []*channel.Binding
}

// NewTracker constructs a stopped tracker.
func NewTracker(ch channel.Channel, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		ch:     ch,
		log:    log,
		roster: make(map[string]models.PresenceUser),
	}
}

// Start binds the membership handlers and joins the presence channel. The
// roster stays empty until the subscription snapshot arrives.
func (t *Tracker) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	t.bindings = []*channel.Binding{
		t.ch.Bind(channel.EventSubscriptionSucceeded, t.onSubscribed),
		t.ch.Bind(channel.EventMemberAdded, t.onMemberAdded),
		t.ch.Bind(channel.EventMemberRemoved, t.onMemberRemoved),
	}
	return t.ch.Subscribe(channel.PresenceKey)
}

// Stop unbinds every handler, leaves the channel and clears the roster.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	t.roster = make(map[string]models.PresenceUser)
	t.mu.Unlock()

	for _, b := range t.bindings {
		b.Unbind()
	}
	t.bindings = nil
	if err := t.ch.Unsubscribe(channel.PresenceKey); err != nil {
		t.log.Warn("presence unsubscribe failed", zap.Error(err))
	}
}

// IsOnline reports whether the roster currently contains userID.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.roster[userID]
	return ok
}

// Roster returns the current set of online users.
func (t *Tracker) Roster() []models.PresenceUser {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.PresenceUser, 0, len(t.roster))
	for _, u := range t.roster {
		out = append(out, u)
	}
	return out
}

// Count returns the number of online users.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roster)
}

func (t *Tracker) onSubscribed(ev channel.Event) {
	if ev.Channel != channel.PresenceKey {
		return
	}

	var snap channel.MemberSnapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.log.Warn("bad presence snapshot", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.roster = make(map[string]models.PresenceUser, len(snap.Members))
	for _, m := range snap.Members {
		t.roster[m.ID] = memberToUser(m)
	}
	count := len(t.roster)
	t.mu.Unlock()

	t.log.Info("presence roster seeded", zap.Int("online", count))
}

func (t *Tracker) onMemberAdded(ev channel.Event) {
	if ev.Channel != channel.PresenceKey {
		return
	}

	var m channel.MemberInfo
	if err := json.Unmarshal(ev.Data, &m); err != nil || m.ID == "" {
		return
	}

	t.mu.Lock()
	t.roster[m.ID] = memberToUser(m)
	t.mu.Unlock()
}

func (t *Tracker) onMemberRemoved(ev channel.Event) {
	if ev.Channel != channel.PresenceKey {
		return
	}

	var m channel.MemberInfo
	if err := json.Unmarshal(ev.Data, &m); err != nil || m.ID == "" {
		return
	}

	t.mu.Lock()
	delete(t.roster, m.ID)
	t.mu.Unlock()
}

func memberToUser(m channel.MemberInfo) models.PresenceUser {
	return models.PresenceUser{
		ID:     m.ID,
		Email:  m.Email,
		Name:   m.Name,
		Avatar: m.Avatar,
	}
}
