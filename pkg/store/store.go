// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the repository interface the services persist
// through. Implementations must commit every mutation before returning; no
// deferred or batched writes are visible to callers.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atticfs/atticfs/pkg/types"
)

// Sentinel errors. Services translate these into protocol fault codes.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrBucketExists       = errors.New("bucket already exists")
	ErrObjectNotFound     = errors.New("object not found")
	ErrUploadNotFound     = errors.New("multipart upload not found")
)

// Store is the repository used by every service. An explicit handle is
// passed into each operation; there is no ambient per-request state.
type Store interface {
	// Credentials and users
	GetCredentialByAccessKey(ctx context.Context, accessKey string) (*types.Credential, error)
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)

	// Buckets
	CreateBucket(ctx context.Context, bucket *types.Bucket) error
	GetBucketByName(ctx context.Context, name string) (*types.Bucket, error)
	GetBucketByID(ctx context.Context, id string) (*types.Bucket, error)
	ListBucketsByOwner(ctx context.Context, ownerID string) ([]*types.Bucket, error)
	UpdateBucket(ctx context.Context, bucket *types.Bucket) error
	DeleteBucket(ctx context.Context, bucketID string) error
	CountLiveObjects(ctx context.Context, bucketID string) (int64, error)

	// Bucket ACLs and tags
	ListBucketACLs(ctx context.Context, bucketID string) ([]*types.BucketACL, error)
	PutBucketACL(ctx context.Context, acl *types.BucketACL) error
	DeleteBucketACLs(ctx context.Context, bucketID string) error
	ListBucketTags(ctx context.Context, bucketID string) ([]*types.BucketTag, error)
	PutBucketTag(ctx context.Context, tag *types.BucketTag) error
	DeleteBucketTags(ctx context.Context, bucketID string) error

	// Objects. CreateObject persists the row and its chunk list as one unit.
	CreateObject(ctx context.Context, obj *types.Object) error
	GetObjectByID(ctx context.Context, id string) (*types.Object, error)
	GetLatestObject(ctx context.Context, bucketID, key string) (*types.Object, error)
	GetObjectVersion(ctx context.Context, bucketID, key string, version int64) (*types.Object, error)
	ListObjectVersions(ctx context.Context, bucketID, key string) ([]*types.Object, error)
	ListLatestObjects(ctx context.Context, bucketID, prefix string, limit int) ([]*types.Object, error)
	DeleteObject(ctx context.Context, objectID string) error
	TouchObjectAccess(ctx context.Context, objectID string, accessedAt time.Time) error

	// Object ACLs and tags, scoped to one version
	ListObjectACLs(ctx context.Context, objectID string) ([]*types.ObjectACL, error)
	PutObjectACL(ctx context.Context, acl *types.ObjectACL) error
	DeleteObjectACLs(ctx context.Context, objectID string) error
	ListObjectTags(ctx context.Context, objectID string) ([]*types.ObjectTag, error)
	PutObjectTag(ctx context.Context, tag *types.ObjectTag) error
	DeleteObjectTags(ctx context.Context, objectID string) error

	// Chunks
	GetObjectChunks(ctx context.Context, objectID string) ([]*types.ObjectChunk, error)
	ListChunksByMessage(ctx context.Context, messageID uint64) ([]*types.ObjectChunk, error)
	UpdateChunkLink(ctx context.Context, objectID string, attachmentID uint64, blobURL string, expireAt time.Time) error
	// ListLiveChunkMessages returns the distinct (channel, message) pairs
	// holding chunks of live objects.
	ListLiveChunkMessages(ctx context.Context) ([]types.ChunkMessage, error)

	// Multipart uploads. Get and List return parts eagerly loaded.
	CreateMultipartUpload(ctx context.Context, upload *types.MultipartUpload) error
	GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error)
	UpdateMultipartUpload(ctx context.Context, upload *types.MultipartUpload) error
	UpsertMultipartPart(ctx context.Context, part *types.MultipartPart) error
	DeleteMultipartUpload(ctx context.Context, uploadID string) error

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrBucketNotFound) ||
		errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrUploadNotFound)
}
