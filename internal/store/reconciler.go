package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// Reconciler routes asynchronous message events into the store belonging to
// the event's thread. Events for threads that were never opened are dropped:
// during a fast thread switch the previous subscription can still leak a few
// frames, and those must not conjure stores into existence.
//
// Dedupe is id-based and idempotent, which is the whole correctness story:
// the transport is at-least-once and replays freely on reconnect.
type Reconciler struct {
	mu     sync.RWMutex
	stores map[string]*MessageStore
	log    *zap.Logger
}

// NewReconciler constructs an empty reconciler.
func NewReconciler(log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		stores: make(map[string]*MessageStore),
		log:    log,
	}
}

// Open returns the store for a thread, creating it if needed. An in-flight
// send for an abandoned thread still reconciles into that thread's store,
// never into whichever thread happens to be open.
func (r *Reconciler) Open(threadID string) *MessageStore {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[threadID]
	if !ok {
		st = NewMessageStore(threadID)
		r.stores[threadID] = st
	}
	return st
}

// Lookup returns the store for a thread without creating one.
func (r *Reconciler) Lookup(threadID string) (*MessageStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[threadID]
	return st, ok
}

// Evict drops a thread's store. Called when the viewer leaves a conversation
// for good, not on ordinary thread switches (a switched-away store may still
// be the target of an in-flight optimistic send).
func (r *Reconciler) Evict(threadID string) {
	r.mu.Lock()
	delete(r.stores, threadID)
	r.mu.Unlock()
}

// ApplyNew inserts a pushed message. Re-delivery of an id the store already
// holds, including the snapshot, is absorbed silently.
func (r *Reconciler) ApplyNew(msg models.Message) {
	st, ok := r.Lookup(msg.ThreadID)
	if !ok {
		r.log.Debug("dropping new-message event for unopened thread",
			zap.String("thread_id", msg.ThreadID), zap.String("message_id", msg.ID))
		return
	}
	if !st.Append(msg) {
		r.log.Debug("duplicate delivery absorbed",
			zap.String("thread_id", msg.ThreadID), zap.String("message_id", msg.ID))
	}
}

// ApplyUpdate replaces the matching entry in place. Updates for ids the
// store does not hold are dropped; updating must never insert.
func (r *Reconciler) ApplyUpdate(msg models.Message) {
	st, ok := r.Lookup(msg.ThreadID)
	if !ok {
		return
	}
	if !st.Replace(msg.ID, msg) {
		r.log.Debug("update for unknown message dropped",
			zap.String("thread_id", msg.ThreadID), zap.String("message_id", msg.ID))
	}
}

// ApplyRemove deletes the matching entry. Absent ids are a no-op.
func (r *Reconciler) ApplyRemove(msg models.Message) {
	st, ok := r.Lookup(msg.ThreadID)
	if !ok {
		return
	}
	st.Remove(msg.ID)
}
