package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
	"github.com/ilkhoeri/youapp-test-sub001/internal/receipts"
	"github.com/ilkhoeri/youapp-test-sub001/internal/store"
)

var snapshotBase = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakePersistence serves canned snapshots and records seen calls.
type fakePersistence struct {
	mu        sync.Mutex
	snapshots map[string][]models.Message
	seenCalls []string
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{snapshots: make(map[string][]models.Message)}
}

func (f *fakePersistence) CreateMessage(ctx context.Context, threadID string, req api.CreateMessageRequest) (*models.Message, error) {
	return nil, nil
}

func (f *fakePersistence) DeleteMessage(ctx context.Context, messageID string) error {
	return nil
}

func (f *fakePersistence) MarkSeen(ctx context.Context, threadID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenCalls = append(f.seenCalls, messageID)
	return nil
}

func (f *fakePersistence) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.snapshots[threadID]...), nil
}

func (f *fakePersistence) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seenCalls...)
}

func pushMsg(id, threadID, sender string, offset time.Duration) models.Message {
	return models.Message{
		ID:        id,
		ThreadID:  threadID,
		SenderID:  sender,
		Body:      "body " + id,
		CreatedAt: snapshotBase.Add(offset),
	}
}

var viewer = models.Sender{ID: "viewer", Name: "Viewer"}

func newSession(t *testing.T, fake *fakePersistence) (*Session, *channel.Memory, *store.Reconciler) {
	t.Helper()
	ch := channel.NewMemory()
	rec := store.NewReconciler(nil)
	s := NewSession(ch, rec, fake, nil, nil, viewer, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, ch, rec
}

func TestOpenThreadLoadsSnapshot(t *testing.T) {
	fake := newFakePersistence()
	fake.snapshots["t1"] = []models.Message{
		pushMsg("m1", "t1", "alice", 0),
		pushMsg("m2", "t1", "alice", time.Minute),
	}

	s, ch, _ := newSession(t, fake)
	defer s.Stop()

	st, err := s.OpenThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("OpenThread: %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("store Len = %d, want 2", st.Len())
	}
	if !ch.Subscribed(channel.ThreadKey("t1")) {
		t.Errorf("thread channel not subscribed")
	}
	if !ch.Subscribed(channel.UserKey("viewer")) {
		t.Errorf("viewer notification channel not subscribed")
	}
}

func TestReplayedNewEventDoesNotDuplicate(t *testing.T) {
	fake := newFakePersistence()
	fake.snapshots["t1"] = []models.Message{pushMsg("m1", "t1", "alice", 0)}

	s, ch, _ := newSession(t, fake)
	defer s.Stop()

	st, _ := s.OpenThread(context.Background(), "t1")

	// Reconnection replays the snapshot message and a genuinely new one.
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageNew, pushMsg("m1", "t1", "alice", 0))
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageNew, pushMsg("m2", "t1", "alice", time.Minute))
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageNew, pushMsg("m2", "t1", "alice", time.Minute))

	if st.Len() != 2 {
		t.Errorf("store Len = %d, want 2 (replays absorbed)", st.Len())
	}
}

func TestUpdateAndRemoveEvents(t *testing.T) {
	fake := newFakePersistence()
	fake.snapshots["t1"] = []models.Message{
		pushMsg("m1", "t1", "alice", 0),
		pushMsg("m2", "t1", "alice", time.Minute),
	}

	s, ch, _ := newSession(t, fake)
	defer s.Stop()
	st, _ := s.OpenThread(context.Background(), "t1")

	edited := pushMsg("m1", "t1", "alice", 0)
	edited.Body = "edited"
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageUpdate, edited)

	got, _ := st.Get("m1")
	if got.Body != "edited" {
		t.Errorf("update not applied: %q", got.Body)
	}

	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageRemove, pushMsg("m2", "t1", "alice", time.Minute))
	if st.Contains("m2") {
		t.Errorf("remove not applied")
	}
}

func TestThreadSwitchUnsubscribesPrevious(t *testing.T) {
	fake := newFakePersistence()
	s, ch, _ := newSession(t, fake)
	defer s.Stop()

	_, _ = s.OpenThread(context.Background(), "t1")
	_, _ = s.OpenThread(context.Background(), "t2")

	if ch.Subscribed(channel.ThreadKey("t1")) {
		t.Errorf("previous thread channel still subscribed after switch")
	}
	if !ch.Subscribed(channel.ThreadKey("t2")) {
		t.Errorf("new thread channel not subscribed")
	}
	if s.OpenThreadID() != "t2" {
		t.Errorf("OpenThreadID = %q, want t2", s.OpenThreadID())
	}
}

func TestStaleThreadEventMutatesOnlyItsOwnStore(t *testing.T) {
	fake := newFakePersistence()
	s, ch, rec := newSession(t, fake)
	defer s.Stop()

	t1, _ := s.OpenThread(context.Background(), "t1")
	t2, _ := s.OpenThread(context.Background(), "t2")

	// A frame from the t1 subscription that was already in flight during the
	// switch: it reconciles into t1's store, never into the open thread's.
	_ = ch.Emit(channel.ThreadKey("t2"), channel.EventMessageNew, pushMsg("late", "t1", "alice", 0))

	if t2.Len() != 0 {
		t.Errorf("stale event leaked into open thread store")
	}
	if t1.Len() != 1 {
		t.Errorf("stale event lost; want it in its own thread store")
	}

	// Events for threads never opened are dropped outright.
	_ = ch.Emit(channel.ThreadKey("t2"), channel.EventMessageNew, pushMsg("x", "t-unknown", "alice", 0))
	if _, ok := rec.Lookup("t-unknown"); ok {
		t.Errorf("event for unopened thread created a store")
	}
}

func TestOpenThreadBackfillsUnseen(t *testing.T) {
	fake := newFakePersistence()
	fake.snapshots["t1"] = []models.Message{
		pushMsg("m1", "t1", "alice", 0),
		pushMsg("m2", "t1", "viewer", time.Minute), // own, skipped
		pushMsg("m3", "t1", "alice", 2*time.Minute),
	}

	ch := channel.NewMemory()
	rec := store.NewReconciler(nil)
	rt := receipts.NewTracker(fake, viewer.ID, time.Millisecond, nil)
	s := NewSession(ch, rec, fake, nil, rt, viewer, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	_, _ = s.OpenThread(context.Background(), "t1")
	s.Wait()

	seen := fake.seen()
	if len(seen) != 2 || seen[0] != "m1" || seen[1] != "m3" {
		t.Errorf("backfill seen calls = %v, want [m1 m3] ascending", seen)
	}
}

func TestThreadNewNotification(t *testing.T) {
	fake := newFakePersistence()
	s, ch, _ := newSession(t, fake)
	defer s.Stop()

	var got []models.Thread
	s.OnThreadNew(func(th models.Thread) { got = append(got, th) })

	_ = ch.Emit(channel.UserKey("viewer"), channel.EventThreadNew,
		models.Thread{ID: "t9", MemberIDs: []string{"viewer", "alice"}})

	if len(got) != 1 || got[0].ID != "t9" {
		t.Errorf("thread:new callback = %+v, want one t9", got)
	}
}

func TestTypingEventsAreEphemeral(t *testing.T) {
	fake := newFakePersistence()
	s, ch, _ := newSession(t, fake)
	defer s.Stop()

	var typing []TypingPayload
	s.OnTyping(func(p TypingPayload) { typing = append(typing, p) })

	st, _ := s.OpenThread(context.Background(), "t1")

	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventTyping, TypingPayload{ThreadID: "t1", UserID: "alice"})
	// Own echo filtered out.
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventTyping, TypingPayload{ThreadID: "t1", UserID: "viewer"})

	if len(typing) != 1 || typing[0].UserID != "alice" {
		t.Errorf("typing callbacks = %+v, want one from alice", typing)
	}
	if st.Len() != 0 {
		t.Errorf("typing event reached the message store")
	}

	// And publishing goes out through the channel.
	if err := s.SendTyping(); err != nil {
		t.Fatalf("SendTyping: %v", err)
	}
	pub := ch.Published()
	if len(pub) != 1 || pub[0].Kind != channel.EventTyping {
		t.Errorf("published = %+v, want one typing event", pub)
	}
}

func TestStopLeavesAllChannels(t *testing.T) {
	fake := newFakePersistence()
	s, ch, _ := newSession(t, fake)

	_, _ = s.OpenThread(context.Background(), "t1")
	s.Stop()

	if ch.Subscribed(channel.ThreadKey("t1")) || ch.Subscribed(channel.UserKey("viewer")) {
		t.Errorf("channels still subscribed after Stop")
	}

	// Events after Stop are ignored entirely.
	_ = ch.Subscribe(channel.ThreadKey("t1"))
	_ = ch.Emit(channel.ThreadKey("t1"), channel.EventMessageNew, pushMsg("m1", "t1", "alice", 0))
}
