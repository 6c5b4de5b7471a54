// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache is a Redis read-through layer over the store for the two
// lookups on every request path: credential by access key and bucket by
// name. Cache failures degrade to direct store reads; they never fail a
// request.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// DefaultTTL bounds staleness of cached rows on nodes that did not see the
// invalidating mutation.
const DefaultTTL = time.Minute

const (
	credentialKeyPrefix = "atticfs:cred:"
	bucketKeyPrefix     = "atticfs:bucket:"
	bucketNameKeyPrefix = "atticfs:bucketname:"
)

// Store decorates an inner store.Store with cached credential and bucket
// lookups, invalidated on bucket mutations.
type Store struct {
	store.Store
	rdb *redis.Client
	ttl time.Duration
}

// NewStore wraps inner with a Redis cache.
func NewStore(inner store.Store, rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Store: inner, rdb: rdb, ttl: ttl}
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetCredentialByAccessKey(ctx context.Context, accessKey string) (*types.Credential, error) {
	key := credentialKeyPrefix + accessKey

	var cred types.Credential
	if s.getCached(ctx, key, &cred) {
		return &cred, nil
	}

	fresh, err := s.Store.GetCredentialByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, key, fresh)
	return fresh, nil
}

func (s *Store) GetBucketByName(ctx context.Context, name string) (*types.Bucket, error) {
	key := bucketKeyPrefix + name

	var bucket types.Bucket
	if s.getCached(ctx, key, &bucket) {
		return &bucket, nil
	}

	fresh, err := s.Store.GetBucketByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, key, fresh)
	// Name mapping so a delete by id can invalidate the name entry.
	if err := s.rdb.Set(ctx, bucketNameKeyPrefix+fresh.ID, fresh.Name, s.ttl).Err(); err != nil {
		logger.Debug().Err(err).Msg("cache: failed to record bucket name mapping")
	}
	return fresh, nil
}

func (s *Store) UpdateBucket(ctx context.Context, bucket *types.Bucket) error {
	if err := s.Store.UpdateBucket(ctx, bucket); err != nil {
		return err
	}
	s.invalidate(ctx, bucketKeyPrefix+bucket.Name)
	return nil
}

func (s *Store) DeleteBucket(ctx context.Context, bucketID string) error {
	if err := s.Store.DeleteBucket(ctx, bucketID); err != nil {
		return err
	}
	if name, err := s.rdb.Get(ctx, bucketNameKeyPrefix+bucketID).Result(); err == nil {
		s.invalidate(ctx, bucketKeyPrefix+name)
	}
	s.invalidate(ctx, bucketNameKeyPrefix+bucketID)
	return nil
}

// Healthy reports whether the cache backend answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *Store) getCached(ctx context.Context, key string, out any) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Debug().Err(err).Str("key", key).Msg("cache: read failed, falling through")
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Debug().Err(err).Str("key", key).Msg("cache: corrupt entry, falling through")
		s.invalidate(ctx, key)
		return false
	}
	return true
}

func (s *Store) setCached(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		logger.Debug().Err(err).Str("key", key).Msg("cache: write failed")
	}
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Debug().Err(err).Strs("keys", keys).Msg("cache: invalidation failed")
	}
}
