package devserver

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
)

// client is one websocket connection and the channel keys it joined.
type client struct {
	conn     *websocket.Conn
	userID   string
	writeMu  sync.Mutex
	channels map[string]struct{}
}

func (c *client) send(env channel.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Hub fans events out to every connection subscribed to a channel key and
// maintains presence membership for the global presence channel.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub constructs an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("user_id", c.userID), zap.Int("total", total))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	_, wasPresence := c.channels[channel.PresenceKey]
	total := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	if wasPresence {
		h.presenceChanged(c.userID, channel.EventMemberRemoved)
	}
	h.log.Info("client disconnected", zap.String("user_id", c.userID), zap.Int("total", total))
}

// subscribe joins a client to a key. Joining the presence channel replies
// with the member snapshot and announces the member to everyone else.
func (h *Hub) subscribe(c *client, key string) {
	h.mu.Lock()
	c.channels[key] = struct{}{}
	h.mu.Unlock()

	if key != channel.PresenceKey {
		h.ack(c, key, nil)
		return
	}

	snap := channel.MemberSnapshot{Members: h.presenceMembers()}
	data, _ := json.Marshal(snap)
	h.ack(c, key, data)
	h.presenceChanged(c.userID, channel.EventMemberAdded)
}

func (h *Hub) ack(c *client, key string, data json.RawMessage) {
	env := channel.Envelope{
		Event:   channel.EventSubscriptionSucceeded.Name(),
		Channel: key,
		Data:    data,
	}
	if err := c.send(env); err != nil {
		h.log.Warn("subscription ack failed", zap.String("user_id", c.userID), zap.Error(err))
	}
}

func (h *Hub) unsubscribe(c *client, key string) {
	h.mu.Lock()
	_, had := c.channels[key]
	delete(c.channels, key)
	h.mu.Unlock()

	if had && key == channel.PresenceKey {
		h.presenceChanged(c.userID, channel.EventMemberRemoved)
	}
}

// presenceMembers returns one entry per distinct user on the presence
// channel. Two tabs of the same user collapse into one member.
func (h *Hub) presenceMembers() []channel.MemberInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	members := make([]channel.MemberInfo, 0, len(h.clients))
	for c := range h.clients {
		if _, on := c.channels[channel.PresenceKey]; !on {
			continue
		}
		if _, dup := seen[c.userID]; dup {
			continue
		}
		seen[c.userID] = struct{}{}
		members = append(members, channel.MemberInfo{ID: c.userID, Name: c.userID})
	}
	return members
}

func (h *Hub) presenceChanged(userID string, kind channel.EventKind) {
	// A user with another connection still on the channel is not gone.
	if kind == channel.EventMemberRemoved {
		for _, m := range h.presenceMembers() {
			if m.ID == userID {
				return
			}
		}
	}
	h.Broadcast(channel.PresenceKey, kind, channel.MemberInfo{ID: userID, Name: userID})
}

// Broadcast delivers an event to every connection subscribed to key. Dead
// connections are dropped on write failure.
func (h *Hub) Broadcast(key string, kind channel.EventKind, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("broadcast marshal failed", zap.Error(err))
		return
	}
	env := channel.Envelope{Event: kind.Name(), Channel: key, Data: raw}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if _, on := c.channels[key]; on {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(env); err != nil {
			h.log.Warn("broadcast write failed, dropping client",
				zap.String("user_id", c.userID), zap.Error(err))
			h.unregister(c)
			_ = c.conn.Close()
		}
	}
}
