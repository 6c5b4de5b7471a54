// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

func TestBucketNameUniqueness(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, &types.Bucket{ID: "b1", Name: "photos"}))
	err := s.CreateBucket(ctx, &types.Bucket{ID: "b2", Name: "photos"})
	assert.ErrorIs(t, err, store.ErrBucketExists)
}

func TestLatestObjectResolution(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateObject(ctx, &types.Object{ID: "o1", BucketID: "b", Key: "k", Version: 1}))
	require.NoError(t, s.CreateObject(ctx, &types.Object{ID: "o2", BucketID: "b", Key: "k", Version: 2}))

	latest, err := s.GetLatestObject(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "o2", latest.ID)

	v1, err := s.GetObjectVersion(ctx, "b", "k", 1)
	require.NoError(t, err)
	assert.Equal(t, "o1", v1.ID)

	versions, err := s.ListObjectVersions(ctx, "b", "k")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(2), versions[0].Version, "versions list newest first")
}

func TestCountLiveObjectsIgnoresDeleteMarkers(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateObject(ctx, &types.Object{ID: "o1", BucketID: "b", Key: "a", Version: 1}))
	require.NoError(t, s.CreateObject(ctx, &types.Object{ID: "o2", BucketID: "b", Key: "a", Version: 2, DeleteMarker: true}))
	require.NoError(t, s.CreateObject(ctx, &types.Object{ID: "o3", BucketID: "b", Key: "c", Version: 1}))

	n, err := s.CountLiveObjects(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestObjectChunksRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	obj := &types.Object{
		ID: "o1", BucketID: "b", Key: "k", Version: 1,
		Chunks: []*types.ObjectChunk{
			{MessageID: 5, AttachmentID: 50, BlobURL: "u0", StartByte: 0, EndByte: 9, Size: 10},
			{MessageID: 5, AttachmentID: 51, BlobURL: "u1", StartByte: 10, EndByte: 14, Size: 5},
		},
	}
	require.NoError(t, s.CreateObject(ctx, obj))

	got, err := s.GetObjectByID(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, "o1", got.Chunks[0].ObjectID)

	expire := time.Now().Add(time.Hour)
	require.NoError(t, s.UpdateChunkLink(ctx, "o1", 51, "u1-fresh", expire))

	chunks, err := s.GetObjectChunks(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1-fresh", chunks[1].BlobURL)

	byMsg, err := s.ListChunksByMessage(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, byMsg, 2)
}

func TestListLiveChunkMessages(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, &types.Bucket{ID: "b1", Name: "docs", ChannelID: 7}))
	require.NoError(t, s.CreateObject(ctx, &types.Object{
		ID: "o1", BucketID: "b1", Key: "k", Version: 1,
		Chunks: []*types.ObjectChunk{
			{MessageID: 40, AttachmentID: 1},
			{MessageID: 40, AttachmentID: 2},
			{MessageID: 41, AttachmentID: 3},
		},
	}))

	pairs, err := s.ListLiveChunkMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.ChunkMessage{
		{ChannelID: 7, MessageID: 40},
		{ChannelID: 7, MessageID: 41},
	}, pairs)

	b, err := s.GetBucketByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "docs", b.Name)
	_, err = s.GetBucketByID(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrBucketNotFound)
}

func TestMultipartPartUpsertReplaces(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateMultipartUpload(ctx, &types.MultipartUpload{ID: "u1", BucketID: "b", Key: "k"}))

	require.NoError(t, s.UpsertMultipartPart(ctx, &types.MultipartPart{ID: "p1", UploadID: "u1", PartNumber: 1, ETag: "aaa"}))
	require.NoError(t, s.UpsertMultipartPart(ctx, &types.MultipartPart{ID: "p2", UploadID: "u1", PartNumber: 1, ETag: "bbb"}))

	u, err := s.GetMultipartUpload(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u.Parts, 1)
	assert.Equal(t, "bbb", u.Parts[0].ETag)
}
