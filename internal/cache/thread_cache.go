package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
)

// SnapshotTTL bounds how stale a warm-start snapshot may be. The authoritative
// snapshot always follows from the API; the cache only shortens the blank
// screen before it lands.
const SnapshotTTL = 5 * time.Minute

// ThreadCache stores msgpack-encoded thread snapshots keyed by thread id.
// Every failure degrades to a miss; the cache can never break a thread open.
type ThreadCache struct {
	redis *RedisCache
}

// NewThreadCache creates a thread snapshot cache. redis may be nil.
func NewThreadCache(redis *RedisCache) *ThreadCache {
	return &ThreadCache{redis: redis}
}

func snapshotKey(threadID string) string {
	return "thread:snap:" + threadID
}

// GetSnapshot returns the cached message list for a thread, if present.
func (tc *ThreadCache) GetSnapshot(ctx context.Context, threadID string) ([]models.Message, bool) {
	if tc == nil || tc.redis == nil {
		return nil, false
	}

	data, err := tc.redis.Get(ctx, snapshotKey(threadID))
	if err != nil || data == nil {
		return nil, false
	}

	var messages []models.Message
	if err := msgpack.Unmarshal(data, &messages); err != nil {
		return nil, false
	}
	return messages, true
}

// SetSnapshot caches a thread's message list.
func (tc *ThreadCache) SetSnapshot(ctx context.Context, threadID string, messages []models.Message) error {
	if tc == nil || tc.redis == nil {
		return nil
	}

	data, err := msgpack.Marshal(messages)
	if err != nil {
		return err
	}
	return tc.redis.Set(ctx, snapshotKey(threadID), data, SnapshotTTL)
}

// Invalidate drops a thread's cached snapshot.
func (tc *ThreadCache) Invalidate(ctx context.Context, threadID string) error {
	if tc == nil || tc.redis == nil {
		return nil
	}
	return tc.redis.Delete(ctx, snapshotKey(threadID))
}
