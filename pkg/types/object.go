// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"strings"
	"time"
)

// Object is one stored version of a key within a bucket.
// The pair (BucketID, Key) may have many versions; the highest version that
// is not a delete marker is the live object.
type Object struct {
	ID       string
	BucketID string
	Key      string

	OwnerID  string
	AuthorID string

	ContentType string
	// ContentLength is the logical (plaintext) length.
	ContentLength int64
	// StorageContentLength is the physical length after at-rest
	// transformations such as encryption. Equal to ContentLength for
	// unencrypted objects.
	StorageContentLength int64

	Version      int64
	ETag         string
	MD5          string
	IsFolder     bool
	DeleteMarker bool

	// Encryption state. WrappedDataKey is the envelope data key protected by
	// the key-protection service; the raw key is never persisted.
	IsEncrypted         bool
	EncryptionAlgorithm string
	EncryptionKeyID     string
	WrappedDataKey      []byte
	EncryptionMetadata  string
	EncryptionContext   string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	AccessedAt time.Time

	// Chunks is populated by read paths that need the storage layout.
	Chunks []*ObjectChunk
}

// IsFolderKey reports whether a zero-length object with this key should be
// treated as a folder placeholder.
func IsFolderKey(key string, contentLength int64) bool {
	return contentLength == 0 && strings.HasSuffix(key, "/")
}
