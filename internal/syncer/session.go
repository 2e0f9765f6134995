// Package syncer wires the event channel into the reconciliation engine and
// owns the open-thread lifecycle: subscribe, hydrate, snapshot, switch,
// backfill. One Session serves one signed-in viewer.
package syncer

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/cache"
	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
	"github.com/ilkhoeri/youapp-test-sub001/internal/receipts"
	"github.com/ilkhoeri/youapp-test-sub001/internal/store"
)

// TypingPayload is the body of a client-typing event.
type TypingPayload struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
}

// Session keeps the viewer's message state synchronized. All message-event
// routing goes through the Reconciler, which only ever mutates the store
// matching the event's own thread id; frames leaking from a just-left
// subscription therefore never touch the newly opened thread.
type Session struct {
	ch       channel.Channel
	rec      *store.Reconciler
	api      api.Persistence
	threads  *cache.ThreadCache
	receipts *receipts.Tracker
	viewer   models.Sender
	log      *zap.Logger

	mu         sync.Mutex
	openThread string
	started    bool
	bindings   []*channel.Binding

	onThreadNew func(models.Thread)
	onTyping    func(TypingPayload)

	wg sync.WaitGroup
}

// NewSession constructs a stopped session. threads and rt may be nil; the
// session then skips warm-start hydration and seen backfill respectively.
func NewSession(ch channel.Channel, rec *store.Reconciler, p api.Persistence, threads *cache.ThreadCache, rt *receipts.Tracker, viewer models.Sender, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ch:       ch,
		rec:      rec,
		api:      p,
		threads:  threads,
		receipts: rt,
		viewer:   viewer,
		log:      log,
	}
}

// OnThreadNew registers the callback fired when a conversation is started
// elsewhere and announced on the viewer's own channel.
func (s *Session) OnThreadNew(fn func(models.Thread)) { s.onThreadNew = fn }

// OnTyping registers the callback for ephemeral typing events. Typing never
// reaches any store.
func (s *Session) OnTyping(fn func(TypingPayload)) { s.onTyping = fn }

// Start binds the event handlers and joins the viewer's notification
// channel. Must be paired with Stop.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.bindings = []*channel.Binding{
		s.ch.Bind(channel.EventMessageNew, s.onMessageNew),
		s.ch.Bind(channel.EventMessageUpdate, s.onMessageUpdate),
		s.ch.Bind(channel.EventMessageRemove, s.onMessageRemove),
		s.ch.Bind(channel.EventThreadNew, s.onThreadNewEvent),
		s.ch.Bind(channel.EventTyping, s.onTypingEvent),
	}
	return s.ch.Subscribe(channel.UserKey(s.viewer.ID))
}

// Stop unbinds everything and leaves all channels.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	open := s.openThread
	s.openThread = ""
	s.mu.Unlock()

	for _, b := range s.bindings {
		b.Unbind()
	}
	s.bindings = nil

	if open != "" {
		_ = s.ch.Unsubscribe(channel.ThreadKey(open))
	}
	_ = s.ch.Unsubscribe(channel.UserKey(s.viewer.ID))
	s.wg.Wait()
}

// OpenThread switches the visible conversation. The previous thread's
// channel is left before the new one is joined, bounding the stale-event
// race to frames already in flight; those reconcile into their own thread's
// store anyway.
//
// Hydration order: cached snapshot first (warm paint), subscribe, then the
// authoritative API snapshot. Subscribing before the snapshot fetch means no
// event can fall into a gap; anything delivered twice is absorbed by the
// id dedupe.
func (s *Session) OpenThread(ctx context.Context, threadID string) (*store.MessageStore, error) {
	s.mu.Lock()
	prev := s.openThread
	s.openThread = threadID
	s.mu.Unlock()

	if prev != "" && prev != threadID {
		if err := s.ch.Unsubscribe(channel.ThreadKey(prev)); err != nil {
			s.log.Warn("unsubscribe previous thread failed",
				zap.String("thread_id", prev), zap.Error(err))
		}
	}

	st := s.rec.Open(threadID)

	if st.Len() == 0 {
		if snap, ok := s.threads.GetSnapshot(ctx, threadID); ok {
			st.Seed(snap)
			s.log.Debug("thread hydrated from cache",
				zap.String("thread_id", threadID), zap.Int("messages", len(snap)))
		}
	}

	if err := s.ch.Subscribe(channel.ThreadKey(threadID)); err != nil {
		return nil, err
	}

	snapshot, err := s.api.ListMessages(ctx, threadID)
	if err != nil {
		// Keep whatever we have (cache or previous state); push events still
		// reconcile on top of it.
		s.log.Warn("thread snapshot fetch failed",
			zap.String("thread_id", threadID), zap.Error(err))
		return st, nil
	}

	st.Seed(snapshot)
	if err := s.threads.SetSnapshot(ctx, threadID, snapshot); err != nil {
		s.log.Debug("snapshot cache write failed", zap.Error(err))
	}

	if s.receipts != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.receipts.Backfill(ctx, threadID, st.Snapshot()); err != nil {
				s.log.Warn("historical seen backfill halted",
					zap.String("thread_id", threadID), zap.Error(err))
			}
		}()
	}

	return st, nil
}

// CloseThread leaves the currently open thread's channel, if any.
func (s *Session) CloseThread() {
	s.mu.Lock()
	open := s.openThread
	s.openThread = ""
	s.mu.Unlock()

	if open != "" {
		_ = s.ch.Unsubscribe(channel.ThreadKey(open))
	}
}

// OpenThreadID returns the currently open thread, or empty.
func (s *Session) OpenThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openThread
}

// SendTyping publishes an ephemeral typing event for the open thread.
func (s *Session) SendTyping() error {
	s.mu.Lock()
	open := s.openThread
	s.mu.Unlock()
	if open == "" {
		return nil
	}
	return s.ch.Publish(channel.ThreadKey(open), channel.EventTyping, TypingPayload{
		ThreadID: open,
		UserID:   s.viewer.ID,
	})
}

// Wait blocks until background work (seen backfill) has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) onMessageNew(ev channel.Event) {
	msg, ok := decodeMessage(ev, s.log)
	if !ok {
		return
	}
	s.rec.ApplyNew(msg)
}

func (s *Session) onMessageUpdate(ev channel.Event) {
	msg, ok := decodeMessage(ev, s.log)
	if !ok {
		return
	}
	s.rec.ApplyUpdate(msg)
}

func (s *Session) onMessageRemove(ev channel.Event) {
	msg, ok := decodeMessage(ev, s.log)
	if !ok {
		return
	}
	s.rec.ApplyRemove(msg)
}

func (s *Session) onThreadNewEvent(ev channel.Event) {
	if s.onThreadNew == nil {
		return
	}
	var t models.Thread
	if err := json.Unmarshal(ev.Data, &t); err != nil || t.ID == "" {
		return
	}
	s.onThreadNew(t)
}

func (s *Session) onTypingEvent(ev channel.Event) {
	if s.onTyping == nil {
		return
	}
	var p TypingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.UserID == "" {
		return
	}
	if p.UserID == s.viewer.ID {
		return // own typing echoes are noise
	}
	s.onTyping(p)
}

func decodeMessage(ev channel.Event, log *zap.Logger) (models.Message, bool) {
	var msg models.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil || msg.ID == "" || msg.ThreadID == "" {
		log.Warn("malformed message event dropped", zap.Error(err))
		return models.Message{}, false
	}
	return msg, true
}
