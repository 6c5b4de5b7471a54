// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

// BucketTag is a key/value tag attached to a bucket.
type BucketTag struct {
	ID       string
	BucketID string
	Key      string
	Value    string
}

// ObjectTag is a key/value tag attached to one object version.
type ObjectTag struct {
	ID       string
	ObjectID string
	Key      string
	Value    string
}
