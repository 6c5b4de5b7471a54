// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package bucket

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/channel"
	"github.com/atticfs/atticfs/pkg/channel/channeltest"
	"github.com/atticfs/atticfs/pkg/s3api/s3err"
	"github.com/atticfs/atticfs/pkg/store/memory"
	"github.com/atticfs/atticfs/pkg/types"
)

// failingChannel wraps the fake to inject a channel-delete failure.
type failingChannel struct {
	channel.Channel
	deleteErr error
}

func (f *failingChannel) DeleteChannel(ctx context.Context, channelID uint64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Channel.DeleteChannel(ctx, channelID)
}

func TestCreateProvisionsChannel(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	svc := NewService(st, fake)

	b, err := svc.Create(context.Background(), "my-bucket.v2", "u1", "us-east-1")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.NotZero(t, b.ChannelID)
	assert.Equal(t, types.StorageTypeChannel, b.StorageType)
	assert.Equal(t, 1, fake.ChannelCount())

	stored, err := svc.Get(context.Background(), "my-bucket.v2")
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
}

func TestCreateRejectsBadNames(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	svc := NewService(memory.New(), fake)

	for _, name := range []string{"", "ab", "UPPER", "-leading", "trailing-", "has space"} {
		_, err := svc.Create(context.Background(), name, "u1", "")
		assert.ErrorIs(t, err, s3err.ErrInvalidBucketName, "name %q", name)
	}
	assert.Zero(t, fake.ChannelCount(), "invalid names never reach the platform")
}

func TestCreateDuplicateName(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	svc := NewService(memory.New(), fake)
	ctx := context.Background()

	_, err := svc.Create(ctx, "docs", "u1", "")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "docs", "u2", "")
	assert.ErrorIs(t, err, s3err.ErrBucketAlreadyExists)
	assert.Equal(t, 1, fake.ChannelCount(), "losing create leaves no orphan channel")
}

func TestGetMissingBucket(t *testing.T) {
	t.Parallel()

	svc := NewService(memory.New(), channeltest.New(t))
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, s3err.ErrNoSuchBucket)
}

func TestDeleteRequiresEmptyBucket(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	svc := NewService(st, fake)
	ctx := context.Background()

	b, err := svc.Create(ctx, "docs", "u1", "")
	require.NoError(t, err)
	require.NoError(t, st.CreateObject(ctx, &types.Object{
		ID: "o1", BucketID: b.ID, Key: "k", Version: 1, ContentLength: 10,
	}))

	assert.ErrorIs(t, svc.Delete(ctx, b), s3err.ErrBucketNotEmpty)
}

func TestDeleteIsAllOrNothingWithChannel(t *testing.T) {
	t.Parallel()

	fake := channeltest.New(t)
	st := memory.New()
	ctx := context.Background()

	svc := NewService(st, fake)
	b, err := svc.Create(ctx, "docs", "u1", "")
	require.NoError(t, err)

	// Channel delete fails: the row must survive.
	broken := NewService(st, &failingChannel{Channel: fake, deleteErr: fmt.Errorf("platform down")})
	require.Error(t, broken.Delete(ctx, b))
	_, err = svc.Get(ctx, "docs")
	assert.NoError(t, err, "bucket row retained after failed channel delete")

	// Healthy path removes both.
	require.NoError(t, svc.Delete(ctx, b))
	_, err = svc.Get(ctx, "docs")
	assert.ErrorIs(t, err, s3err.ErrNoSuchBucket)
	assert.Zero(t, fake.ChannelCount())
}

func TestVersioningAndPublicFlags(t *testing.T) {
	t.Parallel()

	st := memory.New()
	svc := NewService(st, channeltest.New(t))
	ctx := context.Background()

	b, err := svc.Create(ctx, "docs", "u1", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetVersioning(ctx, b, true))
	require.NoError(t, svc.SetPublicFlags(ctx, b, true, false))

	stored, err := svc.Get(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, stored.EnableVersioning)
	assert.True(t, stored.EnablePublicRead)
	assert.False(t, stored.EnablePublicWrite)
}

func TestPutACLValidatesPrincipal(t *testing.T) {
	t.Parallel()

	svc := NewService(memory.New(), channeltest.New(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		acl     *types.BucketACL
		wantErr bool
	}{
		{"user grant", &types.BucketACL{BucketID: "b1", UserID: "u2"}, false},
		{"group grant", &types.BucketACL{BucketID: "b1", UserGroup: types.GroupAllUsers}, false},
		{"no principal", &types.BucketACL{BucketID: "b1"}, true},
		{"both principals", &types.BucketACL{BucketID: "b1", UserID: "u2", UserGroup: types.GroupAllUsers}, true},
		{"unknown group", &types.BucketACL{BucketID: "b1", UserGroup: "Everyone"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.PutACL(ctx, tt.acl)
			if tt.wantErr {
				assert.ErrorIs(t, err, s3err.ErrMalformedACL)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, tt.acl.ID)
			}
		})
	}
}

func TestTagsReplaceRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewService(memory.New(), channeltest.New(t))
	ctx := context.Background()

	require.NoError(t, svc.ReplaceTags(ctx, "b1", map[string]string{"env": "prod", "team": "infra"}))
	require.NoError(t, svc.ReplaceTags(ctx, "b1", map[string]string{"env": "dev"}))

	tags, err := svc.Tags(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "dev"}, tags)

	require.NoError(t, svc.DeleteTags(ctx, "b1"))
	tags, err = svc.Tags(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, tags)
}
