// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/store/memory"
	"github.com/atticfs/atticfs/pkg/types"
)

func newCachedStore(t *testing.T) (*Store, *memory.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	inner := memory.New()
	return NewStore(inner, rdb, time.Minute), inner, mr
}

func TestCredentialReadThrough(t *testing.T) {
	t.Parallel()

	cs, inner, mr := newCachedStore(t)
	ctx := context.Background()

	inner.AddUser(&types.User{ID: "u1", Name: "alice"})
	inner.AddCredential(&types.Credential{ID: "c1", UserID: "u1", AccessKey: "AK1", SecretKey: "sk"})

	cred, err := cs.GetCredentialByAccessKey(ctx, "AK1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UserID)
	assert.True(t, mr.Exists(credentialKeyPrefix+"AK1"))

	// Second read is served from the cache.
	cred, err = cs.GetCredentialByAccessKey(ctx, "AK1")
	require.NoError(t, err)
	assert.Equal(t, "sk", cred.SecretKey)
}

func TestCredentialMissNotCached(t *testing.T) {
	t.Parallel()

	cs, _, mr := newCachedStore(t)
	_, err := cs.GetCredentialByAccessKey(context.Background(), "AKNOPE")
	require.Error(t, err)
	assert.False(t, mr.Exists(credentialKeyPrefix+"AKNOPE"))
}

func TestBucketReadThroughAndInvalidation(t *testing.T) {
	t.Parallel()

	cs, inner, mr := newCachedStore(t)
	ctx := context.Background()

	b := &types.Bucket{ID: "b1", Name: "docs", OwnerID: "u1"}
	require.NoError(t, inner.CreateBucket(ctx, b))

	got, err := cs.GetBucketByName(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, got.EnableVersioning)
	assert.True(t, mr.Exists(bucketKeyPrefix+"docs"))

	// An update through the cached store drops the entry, so the next
	// read observes the new state.
	got.EnableVersioning = true
	require.NoError(t, cs.UpdateBucket(ctx, got))
	assert.False(t, mr.Exists(bucketKeyPrefix+"docs"))

	got, err = cs.GetBucketByName(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, got.EnableVersioning)
}

func TestDeleteBucketInvalidatesByID(t *testing.T) {
	t.Parallel()

	cs, inner, mr := newCachedStore(t)
	ctx := context.Background()

	require.NoError(t, inner.CreateBucket(ctx, &types.Bucket{ID: "b1", Name: "docs"}))
	_, err := cs.GetBucketByName(ctx, "docs")
	require.NoError(t, err)
	require.True(t, mr.Exists(bucketKeyPrefix+"docs"))

	require.NoError(t, cs.DeleteBucket(ctx, "b1"))
	assert.False(t, mr.Exists(bucketKeyPrefix+"docs"))
	assert.False(t, mr.Exists(bucketNameKeyPrefix+"b1"))
}

func TestCacheOutageFallsThrough(t *testing.T) {
	t.Parallel()

	cs, inner, mr := newCachedStore(t)
	ctx := context.Background()

	inner.AddUser(&types.User{ID: "u1"})
	inner.AddCredential(&types.Credential{ID: "c1", UserID: "u1", AccessKey: "AK1"})

	mr.Close()
	assert.False(t, cs.Healthy(ctx))

	cred, err := cs.GetCredentialByAccessKey(ctx, "AK1")
	require.NoError(t, err, "store reads survive a cache outage")
	assert.Equal(t, "u1", cred.UserID)
}
