// Package devserver is a self-contained fixture implementing the
// persistence API and event channel contracts the sync engine talks to.
// It exists for local development and integration runs; storage is in
// memory and identity is a dev-mode bearer token.
package devserver

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
	"github.com/ilkhoeri/youapp-test-sub001/internal/httpx"
)

// Server bundles the fiber app, the hub and the in-memory state.
type Server struct {
	App    *fiber.App
	hub    *Hub
	state  *State
	secret []byte
	log    *zap.Logger
}

// New constructs the fixture. secret verifies channel auth tokens for
// presence- and user-scoped subscriptions.
func New(secret []byte, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		App:    fiber.New(fiber.Config{AppName: "chatsync devserver"}),
		hub:    NewHub(log),
		state:  NewState(),
		secret: secret,
		log:    log,
	}

	s.App.Use(requestid.New())
	s.App.Use(logger.New())
	s.App.Use(cors.New())

	s.App.Get("/threads/:id/messages", s.listMessages)
	s.App.Post("/threads/:id/messages", s.createMessage)
	s.App.Delete("/messages/:id", s.deleteMessage)
	s.App.Post("/threads/:id/seen", s.markSeen)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	s.App.Get("/ws", websocket.New(s.handleSocket))

	return s
}

// Listen serves until the listener fails.
func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	return c.JSON(s.state.List(c.Params("id")))
}

func (s *Server) createMessage(c *fiber.Ctx) error {
	userID, err := httpx.BearerUserID(c)
	if err != nil {
		return httpx.Unauthorized(c, "missing_token", "Missing bearer token")
	}

	var req api.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "bad_body", "Malformed message body")
	}
	if req.Body == "" && req.MediaURL == "" {
		return httpx.BadRequest(c, "empty_message", "Message needs a body or an attachment")
	}

	threadID := c.Params("id")
	msg := s.state.CreateMessage(threadID, userID, req)
	s.hub.Broadcast(channel.ThreadKey(threadID), channel.EventMessageNew, msg)

	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if _, err := httpx.BearerUserID(c); err != nil {
		return httpx.Unauthorized(c, "missing_token", "Missing bearer token")
	}

	msg, ok := s.state.Delete(c.Params("id"))
	if !ok {
		return httpx.NotFound(c, "unknown_message", "No such message")
	}
	s.hub.Broadcast(channel.ThreadKey(msg.ThreadID), channel.EventMessageRemove, msg)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) markSeen(c *fiber.Ctx) error {
	userID, err := httpx.BearerUserID(c)
	if err != nil {
		return httpx.Unauthorized(c, "missing_token", "Missing bearer token")
	}

	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return httpx.BadRequest(c, "bad_body", "Malformed seen body")
	}

	threadID := c.Params("id")
	msg, found, changed := s.state.MarkSeen(threadID, userID, req.MessageID)
	if !found {
		return httpx.NotFound(c, "unknown_message", "No such message")
	}
	if changed {
		s.hub.Broadcast(channel.ThreadKey(threadID), channel.EventMessageUpdate, msg)
	}
	return c.JSON(msg)
}

func (s *Server) handleSocket(conn *websocket.Conn) {
	userID := conn.Query("user_id")
	if userID == "" {
		_ = conn.Close()
		return
	}

	cl := &client{
		conn:     conn,
		userID:   userID,
		channels: make(map[string]struct{}),
	}
	s.hub.register(cl)
	defer s.hub.unregister(cl)

	for {
		var env channel.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Event {
		case "subscribe":
			if !s.authorized(userID, env) {
				s.log.Warn("subscribe rejected",
					zap.String("user_id", userID), zap.String("channel", env.Channel))
				continue
			}
			s.hub.subscribe(cl, env.Channel)
		case "unsubscribe":
			s.hub.unsubscribe(cl, env.Channel)
		case channel.EventTyping.Name():
			// Rebroadcast ephemeral client events verbatim; never stored.
			var payload interface{}
			if err := json.Unmarshal(env.Data, &payload); err == nil {
				s.hub.Broadcast(env.Channel, channel.EventTyping, payload)
			}
		}
	}
}

// authorized enforces channel auth: presence- and user-scoped channels need
// a valid token, and a user channel only admits its own user.
func (s *Server) authorized(userID string, env channel.Envelope) bool {
	needsToken := env.Channel == channel.PresenceKey || env.Channel == channel.UserKey(userID)
	if isUserChannel(env.Channel) && env.Channel != channel.UserKey(userID) {
		return false
	}
	if !needsToken && !isPresenceChannel(env.Channel) {
		return true
	}

	claims, err := channel.VerifyChannelToken(s.secret, env.Auth, env.Channel)
	if err != nil {
		return false
	}
	return claims.UserID == userID
}

func isUserChannel(key string) bool {
	return len(key) > 5 && key[:5] == "user-"
}

func isPresenceChannel(key string) bool {
	return len(key) > 9 && key[:9] == "presence-"
}
