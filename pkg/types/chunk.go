// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// ObjectChunk records where one bounded slice of an object's physical payload
// lives on the external channel: one attachment on one message.
//
// Chunks for an object are ordered by StartByte with no gaps and no overlap,
// covering exactly [0, StorageContentLength). BlobURL and ExpireAt are the
// only mutable fields; the link refresher rewrites them when the platform
// rotates attachment URLs.
type ObjectChunk struct {
	ObjectID string

	MessageID    uint64
	AttachmentID uint64
	BlobURL      string

	StartByte int64
	// EndByte is inclusive.
	EndByte int64
	Size    int64

	ExpireAt time.Time
}

// Overlaps reports whether the chunk intersects the inclusive byte range
// [start, end].
func (c *ObjectChunk) Overlaps(start, end int64) bool {
	return c.StartByte <= end && c.EndByte >= start
}

// ChunkMessage identifies a platform message that carries live chunks,
// used to restore link refresh schedules after a restart.
type ChunkMessage struct {
	ChannelID uint64
	MessageID uint64
}
