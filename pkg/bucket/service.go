// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package bucket manages bucket lifecycle, versioning state, public flags,
// ACLs and tags. Every bucket is backed by one channel on the external
// platform.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/atticfs/atticfs/pkg/channel"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/s3api/s3err"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// bucketNameRE is the S3 bucket naming subset accepted here: lowercase
// alphanumerics, dots and hyphens, starting and ending alphanumeric.
var bucketNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Service implements bucket operations over the store and the platform.
type Service struct {
	st store.Store
	ch channel.Channel
}

// NewService creates the bucket service.
func NewService(st store.Store, ch channel.Channel) *Service {
	return &Service{st: st, ch: ch}
}

// Create provisions the backing channel first and persists the row after,
// so a row never exists without its channel. A row insert that loses a
// name race tears the channel back down.
func (s *Service) Create(ctx context.Context, name, ownerID, region string) (*types.Bucket, error) {
	if !bucketNameRE.MatchString(name) {
		return nil, s3err.ErrInvalidBucketName
	}
	if _, err := s.st.GetBucketByName(ctx, name); err == nil {
		return nil, s3err.ErrBucketAlreadyExists
	} else if !store.IsNotFound(err) {
		return nil, err
	}

	channelID, err := s.ch.CreateChannel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel for bucket %q: %w", name, err)
	}

	bucket := &types.Bucket{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerID:     ownerID,
		Region:      region,
		StorageType: types.StorageTypeChannel,
		ChannelID:   channelID,
		CreatedAt:   time.Now(),
	}
	if err := s.st.CreateBucket(ctx, bucket); err != nil {
		if derr := s.ch.DeleteChannel(ctx, channelID); derr != nil {
			logger.Error().Err(derr).Uint64("channel_id", channelID).Msg("bucket: failed to remove channel after lost create race")
		}
		if errors.Is(err, store.ErrBucketExists) {
			return nil, s3err.ErrBucketAlreadyExists
		}
		return nil, err
	}

	metrics.BucketCount.Inc()
	return bucket, nil
}

// Get resolves a bucket by name.
func (s *Service) Get(ctx context.Context, name string) (*types.Bucket, error) {
	bucket, err := s.st.GetBucketByName(ctx, name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, s3err.ErrNoSuchBucket
		}
		return nil, err
	}
	return bucket, nil
}

// List returns the caller's buckets.
func (s *Service) List(ctx context.Context, ownerID string) ([]*types.Bucket, error) {
	return s.st.ListBucketsByOwner(ctx, ownerID)
}

// Delete removes an empty bucket. The channel is deleted before the row;
// if the channel delete fails the row is kept, so the operation is
// all-or-nothing with respect to its backing channel.
func (s *Service) Delete(ctx context.Context, bucket *types.Bucket) error {
	count, err := s.st.CountLiveObjects(ctx, bucket.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return s3err.ErrBucketNotEmpty
	}

	if err := s.ch.DeleteChannel(ctx, bucket.ChannelID); err != nil {
		return fmt.Errorf("failed to delete channel %d: %w", bucket.ChannelID, err)
	}

	if err := s.st.DeleteBucketACLs(ctx, bucket.ID); err != nil {
		return err
	}
	if err := s.st.DeleteBucketTags(ctx, bucket.ID); err != nil {
		return err
	}
	if err := s.st.DeleteBucket(ctx, bucket.ID); err != nil {
		return err
	}

	metrics.BucketCount.Dec()
	return nil
}

// SetVersioning flips the bucket's versioning state.
func (s *Service) SetVersioning(ctx context.Context, bucket *types.Bucket, enabled bool) error {
	bucket.EnableVersioning = enabled
	return s.st.UpdateBucket(ctx, bucket)
}

// SetPublicFlags updates the bucket's anonymous access gates.
func (s *Service) SetPublicFlags(ctx context.Context, bucket *types.Bucket, publicRead, publicWrite bool) error {
	bucket.EnablePublicRead = publicRead
	bucket.EnablePublicWrite = publicWrite
	return s.st.UpdateBucket(ctx, bucket)
}

// PutACL validates and stores one grant. A grant names exactly one
// principal: a user id or one of the known groups.
func (s *Service) PutACL(ctx context.Context, acl *types.BucketACL) error {
	if err := validatePrincipal(acl.UserID, acl.UserGroup); err != nil {
		return err
	}
	if acl.ID == "" {
		acl.ID = uuid.NewString()
	}
	acl.CreatedAt = time.Now()
	return s.st.PutBucketACL(ctx, acl)
}

// ListACLs returns the bucket's grants.
func (s *Service) ListACLs(ctx context.Context, bucketID string) ([]*types.BucketACL, error) {
	return s.st.ListBucketACLs(ctx, bucketID)
}

// ReplaceTags swaps the bucket's tag set.
func (s *Service) ReplaceTags(ctx context.Context, bucketID string, tags map[string]string) error {
	if err := s.st.DeleteBucketTags(ctx, bucketID); err != nil {
		return err
	}
	for k, v := range tags {
		if err := s.st.PutBucketTag(ctx, &types.BucketTag{
			ID:       uuid.NewString(),
			BucketID: bucketID,
			Key:      k,
			Value:    v,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Tags returns the bucket's tag set.
func (s *Service) Tags(ctx context.Context, bucketID string) (map[string]string, error) {
	rows, err := s.st.ListBucketTags(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(rows))
	for _, t := range rows {
		tags[t.Key] = t.Value
	}
	return tags, nil
}

// DeleteTags removes every tag on the bucket.
func (s *Service) DeleteTags(ctx context.Context, bucketID string) error {
	return s.st.DeleteBucketTags(ctx, bucketID)
}

func validatePrincipal(userID, userGroup string) error {
	if (userID == "") == (userGroup == "") {
		return s3err.ErrMalformedACL
	}
	if userGroup != "" && userGroup != types.GroupAllUsers && userGroup != types.GroupAuthenticatedUsers {
		return s3err.ErrMalformedACL
	}
	return nil
}
