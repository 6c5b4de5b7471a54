// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// MultipartUpload is an in-progress staged upload. Parts are written to
// per-part temp files under UploadDir until the upload is completed or
// aborted, at which point rows, files and the directory are removed.
type MultipartUpload struct {
	ID       string
	BucketID string
	Key      string

	OwnerID              string
	OwnerDisplayName     string
	InitiatorID          string
	InitiatorDisplayName string

	ContentType string
	UploadDir   string

	// Encryption intent recorded at initiate time and applied once to the
	// assembled object; parts are never individually encrypted.
	UseEncryption       bool
	EncryptionAlgorithm string
	EncryptionKeyID     string
	EncryptionContext   string

	CreatedAt time.Time
	UpdatedAt time.Time
	IsAborted bool

	Parts []*MultipartPart
}

// MultipartPart is one staged part. Re-uploading the same part number
// replaces the row and its temp file (last write wins).
type MultipartPart struct {
	ID         string
	UploadID   string
	PartNumber int
	Size       int64
	ETag       string
	TempFile   string

	CreatedAt time.Time
	UpdatedAt time.Time
}
