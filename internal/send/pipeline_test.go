package send

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
	"github.com/ilkhoeri/youapp-test-sub001/internal/store"
	"github.com/ilkhoeri/youapp-test-sub001/internal/validation"
)

// fakePersistence is a scriptable in-memory Persistence implementation.
type fakePersistence struct {
	mu          sync.Mutex
	nextID      int
	createErr   error
	deleteErr   error
	created     []api.CreateMessageRequest
	deleted     []string
	seenCalls   []string
	serverClock time.Time
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{serverClock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakePersistence) CreateMessage(ctx context.Context, threadID string, req api.CreateMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, req)
	f.serverClock = f.serverClock.Add(time.Second)
	return &models.Message{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		LocalID:   req.LocalID,
		ThreadID:  threadID,
		SenderID:  "u1",
		Body:      req.Body,
		MediaURL:  req.MediaURL,
		CreatedAt: f.serverClock,
		SeenIDs:   []string{},
		Status:    models.StatusSent,
	}, nil
}

func (f *fakePersistence) DeleteMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePersistence) MarkSeen(ctx context.Context, threadID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenCalls = append(f.seenCalls, messageID)
	return nil
}

func (f *fakePersistence) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	return nil, nil
}

var viewer = models.Sender{ID: "u1", Name: "Alice"}

func newPipeline(p api.Persistence) (*Pipeline, *store.Reconciler) {
	rec := store.NewReconciler(nil)
	return NewPipeline(p, rec, viewer, nil), rec
}

func TestSendConfirmReplacesInPlace(t *testing.T) {
	fake := newFakePersistence()
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	// Two settled neighbors around the optimistic entry.
	st.Append(models.Message{ID: "m1", ThreadID: "t1", CreatedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)})

	localID, err := pipe.Send(context.Background(), "t1", Compose{Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Placeholder is visible immediately, before the network settles.
	placeholder, ok := st.GetByLocalID(localID)
	if !ok {
		t.Fatalf("placeholder not in store")
	}
	if placeholder.Status != models.StatusSending {
		t.Errorf("placeholder status = %q, want sending", placeholder.Status)
	}
	if placeholder.ID != localID {
		t.Errorf("placeholder id = %q, want localId %q", placeholder.ID, localID)
	}

	pipe.Wait()

	confirmed, ok := st.GetByLocalID(localID)
	if !ok {
		t.Fatalf("confirmed entry lost")
	}
	if confirmed.Status != models.StatusSent {
		t.Errorf("status = %q, want sent", confirmed.Status)
	}
	if confirmed.ID == localID {
		t.Errorf("id not replaced by server id")
	}
	if got := st.Snapshot(); got[len(got)-1].LocalID != localID {
		t.Errorf("confirmed entry moved, want same (last) position")
	}
	if st.Len() != 2 {
		t.Errorf("Len = %d, want 2", st.Len())
	}

	if len(fake.created) != 1 || fake.created[0].LocalID != localID {
		t.Errorf("persistence call missing localId: %+v", fake.created)
	}
}

func TestSendOfflineMarksFailedAndRetryUsesNewLocalID(t *testing.T) {
	fake := newFakePersistence()
	fake.createErr = errors.New("network down")
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	localID, err := pipe.Send(context.Background(), "t1", Compose{Body: "hello"})
	if err != nil {
		t.Fatalf("Send returned network error to caller: %v", err)
	}
	pipe.Wait()

	failed, ok := st.GetByLocalID(localID)
	if !ok {
		t.Fatalf("failed placeholder removed from store")
	}
	if failed.Status != models.StatusFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}

	// Network comes back; retry is a fresh send with a fresh localId.
	fake.mu.Lock()
	fake.createErr = nil
	fake.mu.Unlock()

	retryID, err := pipe.Retry(context.Background(), failed)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retryID == localID {
		t.Errorf("retry reused the failed localId")
	}
	pipe.Wait()

	if _, ok := st.GetByLocalID(retryID); !ok {
		t.Errorf("retried message missing")
	}
	// The failed entry stays until explicitly discarded.
	if _, ok := st.GetByLocalID(localID); !ok {
		t.Errorf("failed placeholder removed implicitly")
	}

	pipe.Discard("t1", localID)
	if _, ok := st.GetByLocalID(localID); ok {
		t.Errorf("Discard left the placeholder behind")
	}
}

func TestSendRejectsEmptyComposeBeforeNetwork(t *testing.T) {
	fake := newFakePersistence()
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	if _, err := pipe.Send(context.Background(), "t1", Compose{}); err != validation.ErrEmptyMessage {
		t.Fatalf("Send = %v, want ErrEmptyMessage", err)
	}
	if st.Len() != 0 {
		t.Errorf("invalid compose reached the store")
	}
	if len(fake.created) != 0 {
		t.Errorf("invalid compose reached the network")
	}
}

func TestDeleteRollbackRestoresFullSnapshot(t *testing.T) {
	fake := newFakePersistence()
	fake.deleteErr = errors.New("boom")
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	when := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	for _, id := range []string{"m1", "m2", "m3"} {
		when = when.Add(time.Minute)
		st.Append(models.Message{ID: id, ThreadID: "t1", Status: models.StatusSent, CreatedAt: when})
	}
	before := st.Snapshot()

	pipe.Delete(context.Background(), "t1", "m2")
	if st.Contains("m2") {
		t.Fatalf("optimistic delete did not remove entry")
	}
	pipe.Wait()

	after := st.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("rollback length = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Errorf("rollback order differs at %d: %q vs %q", i, after[i].ID, before[i].ID)
		}
	}
}

func TestDeleteSuccessCallsAPI(t *testing.T) {
	fake := newFakePersistence()
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")
	st.Append(models.Message{ID: "m1", ThreadID: "t1", Status: models.StatusSent, CreatedAt: time.Now()})

	pipe.Delete(context.Background(), "t1", "m1")
	pipe.Wait()

	if st.Contains("m1") {
		t.Errorf("deleted entry still present")
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "m1" {
		t.Errorf("api delete calls = %v", fake.deleted)
	}
}

func TestDeleteFailedPlaceholderSkipsAPI(t *testing.T) {
	fake := newFakePersistence()
	fake.createErr = errors.New("offline")
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	localID, _ := pipe.Send(context.Background(), "t1", Compose{Body: "x"})
	pipe.Wait()

	pipe.Delete(context.Background(), "t1", localID)
	pipe.Wait()

	if st.Len() != 0 {
		t.Errorf("failed placeholder not removed")
	}
	if len(fake.deleted) != 0 {
		t.Errorf("local-only placeholder hit the delete API")
	}
}

func TestPushConfirmationBeforeAPIResponse(t *testing.T) {
	// The broadcast copy of our own send can reconcile before the API call
	// returns. Append dedupes it by localId; the confirm step then falls
	// back to id-equality replacement.
	fake := newFakePersistence()
	pipe, rec := newPipeline(fake)
	st := rec.Open("t1")

	localID, err := pipe.Send(context.Background(), "t1", Compose{Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	pipe.Wait()

	confirmed, _ := st.GetByLocalID(localID)

	// Replay of the broadcast for the same send: same server id, same localId.
	rec.ApplyNew(confirmed)
	if st.Len() != 1 {
		t.Errorf("broadcast of own send duplicated the entry, Len = %d", st.Len())
	}
}
