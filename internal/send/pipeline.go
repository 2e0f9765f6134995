// Package send is the optimistic send pipeline: a composed message shows up
// in the thread's store immediately as a sending placeholder, the
// persistence call runs in the background, and the placeholder is either
// swapped in place for the authoritative record or flagged failed.
package send

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
	"github.com/ilkhoeri/youapp-test-sub001/internal/store"
	"github.com/ilkhoeri/youapp-test-sub001/internal/validation"
)

// Compose is user input for one message.
type Compose struct {
	Body      string
	MediaURL  string
	MediaType models.MediaType
}

// Pipeline owns the optimistic lifecycle of locally-originated sends and
// deletes. Network failures never propagate to callers; they degrade to a
// failed status flag or a snapshot rollback.
type Pipeline struct {
	api  api.Persistence
	rec  *store.Reconciler
	user models.Sender
	log  *zap.Logger
	wg   sync.WaitGroup
}

// NewPipeline constructs a pipeline for the viewing user.
func NewPipeline(p api.Persistence, rec *store.Reconciler, user models.Sender, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{api: p, rec: rec, user: user, log: log}
}

// Send validates the compose, appends a sending placeholder to the thread's
// store and returns its localId without waiting for the network. The only
// error it can return is a validation failure; everything network-side is
// absorbed into the placeholder's status.
func (p *Pipeline) Send(ctx context.Context, threadID string, c Compose) (string, error) {
	if err := validation.ValidateCompose(c.Body, c.MediaURL); err != nil {
		return "", err
	}

	localID := uuid.NewString()
	placeholder := models.Message{
		ID:        localID,
		LocalID:   localID,
		ThreadID:  threadID,
		SenderID:  p.user.ID,
		Sender:    p.user,
		Body:      validation.NormalizeBody(c.Body),
		MediaURL:  c.MediaURL,
		MediaType: c.MediaType,
		CreatedAt: time.Now(),
		SeenIDs:   []string{},
		Status:    models.StatusSending,
	}

	st := p.rec.Open(threadID)
	st.Append(placeholder)

	p.wg.Add(1)
	go p.confirm(ctx, st, placeholder)

	return localID, nil
}

func (p *Pipeline) confirm(ctx context.Context, st *store.MessageStore, placeholder models.Message) {
	defer p.wg.Done()

	req := api.CreateMessageRequest{
		Body:      placeholder.Body,
		MediaURL:  placeholder.MediaURL,
		MediaType: placeholder.MediaType,
		LocalID:   placeholder.LocalID,
	}

	created, err := p.api.CreateMessage(ctx, st.ThreadID(), req)
	if err != nil {
		p.log.Warn("send failed, flagging placeholder",
			zap.String("thread_id", st.ThreadID()),
			zap.String("local_id", placeholder.LocalID),
			zap.Error(err))
		p.markFailed(st, placeholder.LocalID)
		return
	}

	confirmed := created.Clone()
	confirmed.LocalID = placeholder.LocalID
	confirmed.Status = models.StatusSent

	// localId first, id second: the push event may already have reconciled
	// the broadcast copy, in which case the placeholder is gone and the
	// entry now lives under the server id.
	if !st.ReplaceByLocalID(placeholder.LocalID, confirmed) {
		if !st.Replace(confirmed.ID, confirmed) {
			p.log.Warn("confirmed send has no entry to replace",
				zap.String("thread_id", st.ThreadID()),
				zap.String("message_id", confirmed.ID))
		}
	}
}

func (p *Pipeline) markFailed(st *store.MessageStore, localID string) {
	failed, ok := st.GetByLocalID(localID)
	if !ok {
		return
	}
	failed.Status = models.StatusFailed
	st.ReplaceByLocalID(localID, failed)
}

// Retry re-sends a failed message's content as a brand new send with a fresh
// localId. The failed placeholder stays put until the caller discards it.
func (p *Pipeline) Retry(ctx context.Context, failed models.Message) (string, error) {
	return p.Send(ctx, failed.ThreadID, Compose{
		Body:      failed.Body,
		MediaURL:  failed.MediaURL,
		MediaType: failed.MediaType,
	})
}

// Discard drops a never-confirmed placeholder from the local store. It is
// local-only: nothing about the entry ever reached the server.
func (p *Pipeline) Discard(threadID, localID string) {
	st, ok := p.rec.Lookup(threadID)
	if !ok {
		return
	}
	if entry, found := st.GetByLocalID(localID); found {
		st.Remove(entry.ID)
	}
}

// Delete removes a message optimistically and issues the persistence call in
// the background. On failure the entire pre-delete snapshot is restored:
// concurrent mutations may have landed in between, and wholesale restore is
// simpler than merging around them.
func (p *Pipeline) Delete(ctx context.Context, threadID, messageID string) {
	st, ok := p.rec.Lookup(threadID)
	if !ok {
		return
	}

	target, found := st.Get(messageID)
	if !found {
		return
	}

	// An unconfirmed or failed placeholder only exists locally.
	if target.Status == models.StatusSending || target.Status == models.StatusFailed {
		st.Remove(messageID)
		return
	}

	snapshot := st.Snapshot()
	st.Remove(messageID)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.api.DeleteMessage(ctx, messageID); err != nil {
			p.log.Warn("delete failed, restoring snapshot",
				zap.String("thread_id", threadID),
				zap.String("message_id", messageID),
				zap.Error(err))
			st.Restore(snapshot)
		}
	}()
}

// Wait blocks until every in-flight confirmation and delete has settled.
// Used on shutdown and in tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
