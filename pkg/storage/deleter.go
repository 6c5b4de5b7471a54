// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"

	"github.com/atticfs/atticfs/pkg/channel"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/taskqueue"
	"github.com/atticfs/atticfs/pkg/types"
)

// Deleter retires a deleted version's platform messages. The metadata row
// is removed by the caller first; the platform delete runs as a detached
// task and the request path never waits on it.
type Deleter struct {
	queue taskqueue.Queue
}

// NewDeleter creates a Deleter over the given queue.
func NewDeleter(queue taskqueue.Queue) *Deleter {
	return &Deleter{queue: queue}
}

// EnqueueMessageDelete queues a bulk delete for the distinct message ids of
// a removed version's chunks.
func (d *Deleter) EnqueueMessageDelete(ctx context.Context, channelID uint64, messageIDs []uint64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	payload, err := taskqueue.MarshalPayload(taskqueue.ChunkDeletePayload{
		ChannelID:  channelID,
		MessageIDs: messageIDs,
	})
	if err != nil {
		return err
	}
	return d.queue.Enqueue(ctx, &taskqueue.Task{
		Type:    taskqueue.TaskTypeChunkDelete,
		Payload: payload,
	})
}

// DistinctMessageIDs extracts the unique message ids from chunk records,
// preserving first-seen order.
func DistinctMessageIDs(chunks []*types.ObjectChunk) []uint64 {
	seen := make(map[uint64]struct{}, len(chunks))
	var out []uint64
	for _, c := range chunks {
		if _, ok := seen[c.MessageID]; ok {
			continue
		}
		seen[c.MessageID] = struct{}{}
		out = append(out, c.MessageID)
	}
	return out
}

// ChunkDeleteHandler executes chunk_delete tasks against the platform.
type ChunkDeleteHandler struct {
	Channel channel.Channel
}

func (h *ChunkDeleteHandler) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeChunkDelete
}

func (h *ChunkDeleteHandler) Handle(ctx context.Context, task *taskqueue.Task) error {
	p, err := taskqueue.UnmarshalPayload[taskqueue.ChunkDeletePayload](task.Payload)
	if err != nil {
		return err
	}
	metrics.ChannelRate.Record()
	metrics.ChannelRequests.WithLabelValues("delete").Inc()
	return h.Channel.DeleteMessages(ctx, p.ChannelID, p.MessageIDs)
}
