// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// StorageType identifies the backing driver for a bucket.
type StorageType string

const (
	// StorageTypeChannel stores object payloads as attachments on an
	// external chat-platform channel. One channel backs one bucket.
	StorageTypeChannel StorageType = "channel"
)

// Bucket is a named container for objects. Buckets do not own their objects;
// deletion requires the bucket to be empty.
type Bucket struct {
	ID      string
	Name    string
	OwnerID string
	Region  string

	StorageType StorageType
	// ChannelID is the backing channel on the external platform.
	ChannelID uint64

	EnableVersioning  bool
	EnablePublicRead  bool
	EnablePublicWrite bool

	CreatedAt time.Time
}
