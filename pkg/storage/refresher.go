// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atticfs/atticfs/pkg/channel"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/taskqueue"
)

// RefreshPeriod is how often a message's attachment URLs are re-fetched.
// One hour under the chunk TTL, so a refresh always lands before expiry.
const RefreshPeriod = ChunkTTL - time.Hour

// Refresher keeps attachment URLs fresh. One schedule entry exists per
// uploaded message; when due, a link_refresh task is enqueued and a worker
// performs the actual refresh, so retries use the queue's backoff.
type Refresher struct {
	ch    channel.Channel
	st    store.Store
	queue taskqueue.Queue

	period time.Duration

	mu     sync.Mutex
	timers map[uint64]*time.Timer // by message id
	closed bool
}

// NewRefresher creates a Refresher scheduling on RefreshPeriod.
func NewRefresher(ch channel.Channel, st store.Store, queue taskqueue.Queue) *Refresher {
	return &Refresher{
		ch:     ch,
		st:     st,
		queue:  queue,
		period: RefreshPeriod,
		timers: make(map[uint64]*time.Timer),
	}
}

// Register schedules recurring refreshes for a message. Re-registering the
// same message id replaces the existing schedule rather than duplicating it.
func (r *Refresher) Register(channelID, messageID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if t, ok := r.timers[messageID]; ok {
		t.Stop()
	}
	r.timers[messageID] = time.AfterFunc(r.period, func() {
		r.enqueue(channelID, messageID)
	})
}

// Restore re-registers a schedule for every message holding live chunks.
// Called once at startup; schedules live only in memory.
func (r *Refresher) Restore(ctx context.Context) error {
	pairs, err := r.st.ListLiveChunkMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chunk messages: %w", err)
	}
	for _, p := range pairs {
		r.Register(p.ChannelID, p.MessageID)
	}
	logger.Info().Int("messages", len(pairs)).Msg("storage: link refresh schedules restored")
	return nil
}

// Unregister stops refreshing a message, used when its chunks are deleted.
func (r *Refresher) Unregister(messageID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[messageID]; ok {
		t.Stop()
		delete(r.timers, messageID)
	}
}

// Stop cancels every schedule entry.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// Scheduled reports whether a message currently has a schedule entry.
func (r *Refresher) Scheduled(messageID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[messageID]
	return ok
}

func (r *Refresher) enqueue(channelID, messageID uint64) {
	payload, err := taskqueue.MarshalPayload(taskqueue.LinkRefreshPayload{
		ChannelID: channelID,
		MessageID: messageID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("storage: failed to encode refresh payload")
		return
	}
	if err := r.queue.Enqueue(context.Background(), &taskqueue.Task{
		Type:    taskqueue.TaskTypeLinkRefresh,
		Payload: payload,
	}); err != nil {
		logger.Error().
			Err(err).
			Uint64("message_id", messageID).
			Msg("storage: failed to enqueue link refresh")
	}
	// Keep the schedule recurring regardless of the enqueue outcome.
	r.Register(channelID, messageID)
}

// RefreshMessage re-fetches one message and rewrites the stored URL and
// expiry for every chunk whose attachment is still present. Chunks whose
// attachment vanished are logged and left stale; a later read of that range
// may fail, which is degraded availability rather than a crash.
func (r *Refresher) RefreshMessage(ctx context.Context, channelID, messageID uint64) error {
	metrics.ChannelRate.Record()
	metrics.ChannelRequests.WithLabelValues("refresh").Inc()

	msg, err := r.ch.GetMessage(ctx, channelID, messageID)
	if err != nil {
		metrics.LinkRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch message %d: %w", messageID, err)
	}

	byID := make(map[uint64]channel.Attachment, len(msg.Attachments))
	for _, a := range msg.Attachments {
		byID[a.ID] = a
	}

	chunks, err := r.st.ListChunksByMessage(ctx, messageID)
	if err != nil {
		return err
	}

	expireAt := time.Now().Add(ChunkTTL)
	for _, c := range chunks {
		att, ok := byID[c.AttachmentID]
		if !ok {
			metrics.LinkRefreshes.WithLabelValues("vanished").Inc()
			logger.Warn().
				Uint64("message_id", messageID).
				Uint64("attachment_id", c.AttachmentID).
				Str("object_id", c.ObjectID).
				Msg("storage: attachment vanished, leaving chunk link stale")
			continue
		}
		if err := r.st.UpdateChunkLink(ctx, c.ObjectID, c.AttachmentID, att.URL, expireAt); err != nil {
			return fmt.Errorf("failed to update chunk link: %w", err)
		}
	}
	metrics.LinkRefreshes.WithLabelValues("ok").Inc()
	return nil
}

// LinkRefreshHandler executes link_refresh tasks.
type LinkRefreshHandler struct {
	Refresher *Refresher
}

func (h *LinkRefreshHandler) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeLinkRefresh
}

func (h *LinkRefreshHandler) Handle(ctx context.Context, task *taskqueue.Task) error {
	p, err := taskqueue.UnmarshalPayload[taskqueue.LinkRefreshPayload](task.Payload)
	if err != nil {
		return err
	}
	return h.Refresher.RefreshMessage(ctx, p.ChannelID, p.MessageID)
}
