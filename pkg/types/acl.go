// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// User groups addressable by ACL grants.
const (
	GroupAllUsers           = "AllUsers"
	GroupAuthenticatedUsers = "AuthenticatedUsers"
)

// Permission is a single ACL permission bit.
type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
	PermissionReadACP
	PermissionWriteACP
	PermissionFullControl
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "READ"
	case PermissionWrite:
		return "WRITE"
	case PermissionReadACP:
		return "READ_ACP"
	case PermissionWriteACP:
		return "WRITE_ACP"
	case PermissionFullControl:
		return "FULL_CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Grant is the permission bit set carried by an ACL entry.
// FullControl satisfies every bit.
type Grant struct {
	PermitRead     bool
	PermitWrite    bool
	PermitReadACP  bool
	PermitWriteACP bool
	FullControl    bool
}

// Allows reports whether the grant satisfies the required permission.
func (g Grant) Allows(p Permission) bool {
	if g.FullControl {
		return true
	}
	switch p {
	case PermissionRead:
		return g.PermitRead
	case PermissionWrite:
		return g.PermitWrite
	case PermissionReadACP:
		return g.PermitReadACP
	case PermissionWriteACP:
		return g.PermitWriteACP
	case PermissionFullControl:
		return false
	}
	return false
}

// BucketACL grants a principal (user id or user group, exactly one set)
// permissions on a bucket.
type BucketACL struct {
	ID       string
	BucketID string

	UserID    string
	UserGroup string

	IssuedByUserID string
	Grant

	CreatedAt time.Time
}

// ObjectACL grants a principal permissions on one object version.
type ObjectACL struct {
	ID       string
	BucketID string
	ObjectID string

	UserID    string
	UserGroup string

	IssuedByUserID string
	Grant

	CreatedAt time.Time
}
