// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth authenticates request credentials and evaluates the fixed
// authorization precedence over bucket and object ACLs.
package auth

import (
	"context"
	"fmt"

	"github.com/atticfs/atticfs/pkg/s3api/s3types"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// State is the authentication outcome. The four states are mutually
// exclusive; each is observable on its own for audit purposes rather than
// collapsed into a single "not authenticated" bool.
type State int

const (
	// StateNoMaterial means the request carried no access key at all.
	StateNoMaterial State = iota
	// StateAccessKeyNotFound means an access key was supplied but no
	// credential row matches it.
	StateAccessKeyNotFound
	// StateUserNotFound means the credential exists but its owning user
	// row is gone.
	StateUserNotFound
	// StateAuthenticated means both credential and user resolved.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateNoMaterial:
		return "no_material_supplied"
	case StateAccessKeyNotFound:
		return "access_key_not_found"
	case StateUserNotFound:
		return "user_not_found"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Authentication is the resolved identity of a request. Credential and User
// are non-nil only when State is StateAuthenticated.
type Authentication struct {
	State      State
	Credential *types.Credential
	User       *types.User
}

// Authenticated reports whether a full credential and user resolved.
func (a *Authentication) Authenticated() bool {
	return a != nil && a.State == StateAuthenticated
}

// Anonymous is the authentication of a request without credentials.
var Anonymous = &Authentication{State: StateNoMaterial}

// Reason records which precedence step granted a request, or that none did.
// The first matching step wins and becomes the audit-visible reason.
type Reason string

const (
	ReasonBucketCreation   Reason = "bucket_creation"
	ReasonBucketPublic     Reason = "bucket_public_config"
	ReasonBucketAllUsers   Reason = "bucket_acl_all_users"
	ReasonObjectAllUsers   Reason = "object_acl_all_users"
	ReasonOwnerScope       Reason = "owner_scoped_listing"
	ReasonBucketOwnership  Reason = "bucket_ownership"
	ReasonObjectOwnership  Reason = "object_ownership"
	ReasonBucketAuthUsers  Reason = "bucket_acl_authenticated_users"
	ReasonObjectAuthUsers  Reason = "object_acl_authenticated_users"
	ReasonBucketUserGrant  Reason = "bucket_acl_user"
	ReasonObjectUserGrant  Reason = "object_acl_user"
	ReasonNotAuthorized    Reason = "not_authorized"
	ReasonUnknownOperation Reason = "unknown_operation"
)

// Decision is the outcome of authorization.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }

var denied = Decision{Reason: ReasonNotAuthorized}

// RequestContext carries everything Authorize needs, resolved up front so
// the evaluation itself performs no I/O. Bucket and Object are nil when the
// resource does not exist or the request does not target one.
type RequestContext struct {
	Type   s3types.RequestType
	Bucket *types.Bucket
	Object *types.Object

	BucketACLs []*types.BucketACL
	ObjectACLs []*types.ObjectACL
}

// Engine authenticates credentials against the store and authorizes
// requests against the precedence in Authorize.
type Engine struct {
	st store.Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{st: st}
}

// Authenticate resolves an access key to a credential and its owning user.
// An empty key, an unknown key, and a dangling credential each produce their
// own state; only store failures return an error.
func (e *Engine) Authenticate(ctx context.Context, accessKey string) (*Authentication, error) {
	if accessKey == "" {
		return Anonymous, nil
	}

	cred, err := e.st.GetCredentialByAccessKey(ctx, accessKey)
	if err != nil {
		if store.IsNotFound(err) {
			return &Authentication{State: StateAccessKeyNotFound}, nil
		}
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}

	user, err := e.st.GetUserByID(ctx, cred.UserID)
	if err != nil {
		if store.IsNotFound(err) {
			return &Authentication{State: StateUserNotFound, Credential: cred}, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return &Authentication{State: StateAuthenticated, Credential: cred, User: user}, nil
}

// BuildRequestContext loads the ACLs for the request's resolved resources.
func (e *Engine) BuildRequestContext(ctx context.Context, typ s3types.RequestType, bucket *types.Bucket, object *types.Object) (*RequestContext, error) {
	rc := &RequestContext{Type: typ, Bucket: bucket, Object: object}

	if bucket != nil {
		acls, err := e.st.ListBucketACLs(ctx, bucket.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load bucket acls: %w", err)
		}
		rc.BucketACLs = acls
	}
	if object != nil {
		acls, err := e.st.ListObjectACLs(ctx, object.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load object acls: %w", err)
		}
		rc.ObjectACLs = acls
	}
	return rc, nil
}

// Authorize evaluates the precedence of policy checks and stops at the
// first that grants. The order is load-bearing: bucket public config is
// checked before any ACL, AllUsers grants before ownership, ownership
// before AuthenticatedUsers and per-user grants. If no step grants, the
// request is denied.
func (e *Engine) Authorize(auth *Authentication, req *RequestContext) Decision {
	perm, ok := requiredPermission[req.Type]
	if !ok {
		return Decision{Reason: ReasonUnknownOperation}
	}
	category := requestCategory[req.Type]

	// A new bucket has no ACLs yet, so any authenticated principal may
	// create one.
	if req.Type == s3types.RequestTypeCreateBucket && req.Bucket == nil {
		if auth.Authenticated() {
			return allow(ReasonBucketCreation)
		}
		return denied
	}

	if req.Bucket != nil {
		if perm == types.PermissionRead && req.Bucket.EnablePublicRead {
			return allow(ReasonBucketPublic)
		}
		if perm == types.PermissionWrite && req.Bucket.EnablePublicWrite {
			return allow(ReasonBucketPublic)
		}
		if grantsBucketGroup(req.BucketACLs, types.GroupAllUsers, perm) {
			return allow(ReasonBucketAllUsers)
		}
	}
	if category == CategoryObject && grantsObjectGroup(req.ObjectACLs, types.GroupAllUsers, perm) {
		return allow(ReasonObjectAllUsers)
	}

	// Everything below needs a resolved credential and user.
	if !auth.Authenticated() {
		return denied
	}

	if category == CategoryService {
		// Listing is scoped to the caller's own buckets.
		return allow(ReasonOwnerScope)
	}

	if req.Bucket != nil && req.Bucket.OwnerID == auth.User.ID {
		return allow(ReasonBucketOwnership)
	}
	if category == CategoryObject && req.Object != nil && req.Object.OwnerID == auth.User.ID {
		return allow(ReasonObjectOwnership)
	}

	if req.Bucket != nil && grantsBucketGroup(req.BucketACLs, types.GroupAuthenticatedUsers, perm) {
		return allow(ReasonBucketAuthUsers)
	}
	if category == CategoryObject && grantsObjectGroup(req.ObjectACLs, types.GroupAuthenticatedUsers, perm) {
		return allow(ReasonObjectAuthUsers)
	}

	if req.Bucket != nil && grantsBucketUser(req.BucketACLs, auth.User.ID, perm) {
		return allow(ReasonBucketUserGrant)
	}
	if category == CategoryObject && grantsObjectUser(req.ObjectACLs, auth.User.ID, perm) {
		return allow(ReasonObjectUserGrant)
	}

	return denied
}

func grantsBucketGroup(acls []*types.BucketACL, group string, perm types.Permission) bool {
	for _, acl := range acls {
		if acl.UserGroup == group && acl.Allows(perm) {
			return true
		}
	}
	return false
}

func grantsBucketUser(acls []*types.BucketACL, userID string, perm types.Permission) bool {
	for _, acl := range acls {
		if acl.UserID != "" && acl.UserID == userID && acl.Allows(perm) {
			return true
		}
	}
	return false
}

func grantsObjectGroup(acls []*types.ObjectACL, group string, perm types.Permission) bool {
	for _, acl := range acls {
		if acl.UserGroup == group && acl.Allows(perm) {
			return true
		}
	}
	return false
}

func grantsObjectUser(acls []*types.ObjectACL, userID string, perm types.Permission) bool {
	for _, acl := range acls {
		if acl.UserID != "" && acl.UserID == userID && acl.Allows(perm) {
			return true
		}
	}
	return false
}
