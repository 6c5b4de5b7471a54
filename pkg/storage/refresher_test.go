// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/channel/channeltest"
	"github.com/atticfs/atticfs/pkg/store/memory"
	"github.com/atticfs/atticfs/pkg/taskqueue"
	"github.com/atticfs/atticfs/pkg/types"
)

// uploadObject posts a payload through the uploader and persists the object
// row with its chunk records.
func uploadObject(t *testing.T, fake *channeltest.Fake, st *memory.Store, objectID string, size int) []*types.ObjectChunk {
	t.Helper()

	path, _ := writePayload(t, size)
	up := NewUploaderWithChunkSize(fake, 100)
	chunks, err := up.Upload(context.Background(), path, "obj", 1, int64(size))
	require.NoError(t, err)

	require.NoError(t, st.CreateObject(context.Background(), &types.Object{
		ID:            objectID,
		BucketID:      "b1",
		Key:           "obj",
		ContentLength: int64(size),
		Version:       1,
		Chunks:        chunks,
	}))
	return chunks
}

func TestRefreshMessageRewritesLinks(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	queue := taskqueue.NewMemoryQueue()
	r := NewRefresher(fake, st, queue)

	chunks := uploadObject(t, fake, st, "o1", 250)
	msgID := chunks[0].MessageID

	// Rotation invalidates every stored URL.
	fake.RotateURLs()
	require.NoError(t, r.RefreshMessage(context.Background(), 1, msgID))

	refreshed, err := st.GetObjectChunks(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, refreshed, len(chunks))

	d := newTestDownloader()
	for i, c := range refreshed {
		assert.NotEqual(t, chunks[i].BlobURL, c.BlobURL)
		assert.True(t, c.ExpireAt.After(chunks[i].ExpireAt.Add(-time.Second)))

		// The rewritten URL must actually serve the chunk again.
		var out bytes.Buffer
		require.NoError(t, d.Fetch(context.Background(), []*types.ObjectChunk{c}, c.StartByte, c.EndByte, &out))
		assert.Equal(t, fake.AttachmentData(c.AttachmentID), out.Bytes())
	}
}

func TestRefreshMessageLeavesVanishedChunkStale(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	r := NewRefresher(fake, st, taskqueue.NewMemoryQueue())

	chunks := uploadObject(t, fake, st, "o1", 250)
	msgID := chunks[0].MessageID

	fake.RemoveAttachment(msgID, chunks[1].AttachmentID)
	fake.RotateURLs()
	require.NoError(t, r.RefreshMessage(context.Background(), 1, msgID))

	refreshed, err := st.GetObjectChunks(context.Background(), "o1")
	require.NoError(t, err)

	assert.NotEqual(t, chunks[0].BlobURL, refreshed[0].BlobURL)
	assert.Equal(t, chunks[1].BlobURL, refreshed[1].BlobURL, "vanished chunk keeps its stale link")
	assert.NotEqual(t, chunks[2].BlobURL, refreshed[2].BlobURL)
}

func TestRefreshMessageErrorsOnMissingMessage(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	r := NewRefresher(fake, memory.New(), taskqueue.NewMemoryQueue())
	assert.Error(t, r.RefreshMessage(context.Background(), 1, 999))
}

func TestRegisterReplacesExistingSchedule(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	r := NewRefresher(fake, memory.New(), taskqueue.NewMemoryQueue())
	defer r.Stop()

	r.Register(1, 42)
	r.Register(1, 42)
	assert.True(t, r.Scheduled(42))

	r.Unregister(42)
	assert.False(t, r.Scheduled(42))
}

func TestDueScheduleEnqueuesTaskAndRecurs(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	queue := taskqueue.NewMemoryQueue()
	r := NewRefresher(fake, memory.New(), queue)
	r.period = 10 * time.Millisecond
	defer r.Stop()

	r.Register(7, 42)

	require.Eventually(t, func() bool {
		task, err := queue.Dequeue(context.Background(), "test", taskqueue.TaskTypeLinkRefresh)
		if err != nil || task == nil {
			return false
		}
		p, err := taskqueue.UnmarshalPayload[taskqueue.LinkRefreshPayload](task.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), p.ChannelID)
		assert.Equal(t, uint64(42), p.MessageID)
		return true
	}, 2*time.Second, 5*time.Millisecond)

	// The schedule re-arms itself after firing.
	assert.True(t, r.Scheduled(42))
}

func TestRestoreSchedulesLiveMessages(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	queue := taskqueue.NewMemoryQueue()
	require.NoError(t, st.CreateBucket(context.Background(), &types.Bucket{ID: "b1", Name: "b1", ChannelID: 1}))
	chunks := uploadObject(t, fake, st, "o1", 250)

	// A fresh refresher, as after a process restart, knows nothing.
	r := NewRefresher(fake, st, queue)
	defer r.Stop()
	for _, c := range chunks {
		require.False(t, r.Scheduled(c.MessageID))
	}

	require.NoError(t, r.Restore(context.Background()))
	for _, c := range chunks {
		assert.True(t, r.Scheduled(c.MessageID))
	}
}

func TestStopPreventsNewSchedules(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	r := NewRefresher(fake, memory.New(), taskqueue.NewMemoryQueue())

	r.Register(1, 42)
	r.Stop()
	assert.False(t, r.Scheduled(42))

	r.Register(1, 43)
	assert.False(t, r.Scheduled(43))
}
