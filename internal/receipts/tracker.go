// Package receipts reports "seen" acknowledgements to the persistence API.
// Live viewport tracking is debounced so rapid scrolling or a burst of
// incoming messages produces one outbound call per window; historical
// backfill walks unseen messages sequentially, paced and fail-fast.
package receipts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

const (
	// DefaultWindow collapses repeated visibility triggers; one MarkSeen goes
	// out per window carrying whichever message was noted last.
	DefaultWindow = 250 * time.Millisecond

	// defaultBackfillInterval paces sequential backfill acknowledgements so
	// opening an old thread does not flood the API.
	defaultBackfillInterval = 150 * time.Millisecond
)

// Tracker reports seen state for one viewer. The debounce timer and pending
// target are explicit fields rather than closure captures, so re-creating
// render passes can never leave multiple timers running.
type Tracker struct {
	api      api.Persistence
	viewerID string
	log      *zap.Logger
	window   time.Duration
	limiter  *rate.Limiter

	mu             sync.Mutex
	timer          *time.Timer
	pendingThread  string
	pendingMessage string

	wg sync.WaitGroup
}

// NewTracker constructs a tracker for viewerID. window <= 0 selects
// DefaultWindow.
func NewTracker(p api.Persistence, viewerID string, window time.Duration, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		api:      p,
		viewerID: viewerID,
		log:      log,
		window:   window,
		limiter:  rate.NewLimiter(rate.Every(defaultBackfillInterval), 1),
	}
}

// NoteVisible records that the thread's anchor message scrolled into view.
// Own messages and messages the viewer already acknowledged are skipped
// locally; the server remains authoritative either way. The first trigger
// opens a window; triggers inside it only update the target, and a single
// acknowledgement fires when the window closes.
func (t *Tracker) NoteVisible(threadID string, msg models.Message) {
	if msg.SenderID == t.viewerID || msg.SeenBy(t.viewerID) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pendingThread = threadID
	t.pendingMessage = msg.ID
	if t.timer != nil {
		return // window already open, latest target wins
	}
	t.wg.Add(1)
	t.timer = time.AfterFunc(t.window, t.fire)
}

func (t *Tracker) fire() {
	defer t.wg.Done()

	t.mu.Lock()
	threadID, messageID := t.pendingThread, t.pendingMessage
	t.timer = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.api.MarkSeen(ctx, threadID, messageID); err != nil {
		t.log.Warn("seen report failed",
			zap.String("thread_id", threadID),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// Backfill acknowledges every unseen message in ascending order, awaiting
// each call with a paced inter-request delay. The first failure halts the
// remaining batch; acknowledgements already sent stay sent, since each is
// independently idempotent server-side. Returns how many went out.
func (t *Tracker) Backfill(ctx context.Context, threadID string, msgs []models.Message) (int, error) {
	acked := 0
	for _, m := range msgs {
		if m.SenderID == t.viewerID || m.SeenBy(t.viewerID) {
			continue
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return acked, err
		}
		if err := t.api.MarkSeen(ctx, threadID, m.ID); err != nil {
			t.log.Warn("seen backfill aborted",
				zap.String("thread_id", threadID),
				zap.String("message_id", m.ID),
				zap.Int("acked", acked),
				zap.Error(err))
			return acked, err
		}
		acked++
	}
	return acked, nil
}

// Wait blocks until any open debounce window has fired and its
// acknowledgement settled. Used on shutdown and in tests.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
