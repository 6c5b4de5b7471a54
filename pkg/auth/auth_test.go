// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/s3api/s3types"
	"github.com/atticfs/atticfs/pkg/store/memory"
	"github.com/atticfs/atticfs/pkg/types"
)

func seededEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.AddUser(&types.User{ID: "u1", Name: "alice", Email: "alice@example.com"})
	st.AddCredential(&types.Credential{ID: "c1", UserID: "u1", AccessKey: "AKALICE", SecretKey: "s3cret"})
	// Credential whose user row is gone.
	st.AddCredential(&types.Credential{ID: "c2", UserID: "ghost", AccessKey: "AKGHOST", SecretKey: "s3cret"})
	return NewEngine(st), st
}

func authedAs(userID string) *Authentication {
	return &Authentication{
		State:      StateAuthenticated,
		Credential: &types.Credential{UserID: userID},
		User:       &types.User{ID: userID},
	}
}

func TestAuthenticateStates(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		accessKey string
		want      State
	}{
		{"no material", "", StateNoMaterial},
		{"unknown access key", "AKNOPE", StateAccessKeyNotFound},
		{"dangling credential", "AKGHOST", StateUserNotFound},
		{"full identity", "AKALICE", StateAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := e.Authenticate(ctx, tt.accessKey)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.State)
			if tt.want == StateAuthenticated {
				assert.Equal(t, "u1", a.User.ID)
				assert.Equal(t, "AKALICE", a.Credential.AccessKey)
			} else {
				assert.False(t, a.Authenticated())
			}
		})
	}
}

func TestPublicConfigCheckedBeforeACL(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	// An ACL entry for AllUsers that grants nothing.
	denyAll := []*types.BucketACL{{BucketID: "b1", UserGroup: types.GroupAllUsers}}

	req := &RequestContext{
		Type:       s3types.RequestTypeGetObject,
		Bucket:     &types.Bucket{ID: "b1", OwnerID: "u9", EnablePublicRead: true},
		BucketACLs: denyAll,
	}
	d := e.Authorize(Anonymous, req)
	assert.True(t, d.Allowed, "public read config wins over a denying ACL")
	assert.Equal(t, ReasonBucketPublic, d.Reason)

	// With the flag off the same ACL must not grant.
	req.Bucket.EnablePublicRead = false
	d = e.Authorize(Anonymous, req)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotAuthorized, d.Reason)
}

func TestPublicWriteGatesWriteClassOnly(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)
	bucket := &types.Bucket{ID: "b1", OwnerID: "u9", EnablePublicWrite: true}

	d := e.Authorize(Anonymous, &RequestContext{Type: s3types.RequestTypePutObject, Bucket: bucket})
	assert.True(t, d.Allowed)

	d = e.Authorize(Anonymous, &RequestContext{Type: s3types.RequestTypeGetObject, Bucket: bucket})
	assert.False(t, d.Allowed, "public write must not grant reads")

	d = e.Authorize(Anonymous, &RequestContext{Type: s3types.RequestTypePutBucketAcl, Bucket: bucket})
	assert.False(t, d.Allowed, "public flags never gate ACP operations")
}

func TestAllUsersGrantBeatsOwnership(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	req := &RequestContext{
		Type:   s3types.RequestTypeGetObject,
		Bucket: &types.Bucket{ID: "b1", OwnerID: "u1"},
		BucketACLs: []*types.BucketACL{
			{BucketID: "b1", UserGroup: types.GroupAllUsers, Grant: types.Grant{PermitRead: true}},
		},
	}

	// The owner is also granted, but the AllUsers step runs first and
	// becomes the audit reason.
	d := e.Authorize(authedAs("u1"), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketAllUsers, d.Reason)

	// Anonymous callers ride the same grant.
	d = e.Authorize(Anonymous, req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketAllUsers, d.Reason)
}

func TestObjectACLAllUsers(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	req := &RequestContext{
		Type:   s3types.RequestTypeGetObject,
		Bucket: &types.Bucket{ID: "b1", OwnerID: "u9"},
		Object: &types.Object{ID: "o1", OwnerID: "u9"},
		ObjectACLs: []*types.ObjectACL{
			{ObjectID: "o1", UserGroup: types.GroupAllUsers, Grant: types.Grant{PermitRead: true}},
		},
	}
	d := e.Authorize(Anonymous, req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonObjectAllUsers, d.Reason)
}

func TestUnauthenticatedShortCircuit(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	// AuthenticatedUsers and per-user grants exist, but the caller has no
	// resolved identity so evaluation stops before reaching them.
	req := &RequestContext{
		Type:   s3types.RequestTypeGetObject,
		Bucket: &types.Bucket{ID: "b1", OwnerID: "u1"},
		BucketACLs: []*types.BucketACL{
			{BucketID: "b1", UserGroup: types.GroupAuthenticatedUsers, Grant: types.Grant{PermitRead: true}},
			{BucketID: "b1", UserID: "u2", Grant: types.Grant{FullControl: true}},
		},
	}

	for _, a := range []*Authentication{
		Anonymous,
		{State: StateAccessKeyNotFound},
		{State: StateUserNotFound},
	} {
		d := e.Authorize(a, req)
		assert.False(t, d.Allowed, "state %s must not pass the credential gate", a.State)
		assert.Equal(t, ReasonNotAuthorized, d.Reason)
	}
}

func TestOwnershipGrants(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	bucket := &types.Bucket{ID: "b1", OwnerID: "u1"}

	// Bucket ownership permits everything, including ACP writes.
	d := e.Authorize(authedAs("u1"), &RequestContext{Type: s3types.RequestTypePutBucketAcl, Bucket: bucket})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketOwnership, d.Reason)

	// Object ownership permits object operations in someone else's bucket.
	d = e.Authorize(authedAs("u2"), &RequestContext{
		Type:   s3types.RequestTypeDeleteObject,
		Bucket: bucket,
		Object: &types.Object{ID: "o1", OwnerID: "u2"},
	})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonObjectOwnership, d.Reason)
}

func TestAuthenticatedUsersAndUserGrants(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)
	bucket := &types.Bucket{ID: "b1", OwnerID: "u9"}

	// Group grant for any authenticated caller.
	req := &RequestContext{
		Type:   s3types.RequestTypeListObjects,
		Bucket: bucket,
		BucketACLs: []*types.BucketACL{
			{BucketID: "b1", UserGroup: types.GroupAuthenticatedUsers, Grant: types.Grant{PermitRead: true}},
		},
	}
	d := e.Authorize(authedAs("u2"), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketAuthUsers, d.Reason)

	// Per-user grant matches only that user.
	req = &RequestContext{
		Type:   s3types.RequestTypePutObject,
		Bucket: bucket,
		BucketACLs: []*types.BucketACL{
			{BucketID: "b1", UserID: "u2", Grant: types.Grant{PermitWrite: true}},
		},
	}
	d = e.Authorize(authedAs("u2"), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketUserGrant, d.Reason)

	d = e.Authorize(authedAs("u3"), req)
	assert.False(t, d.Allowed)
}

func TestObjectUserGrant(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	req := &RequestContext{
		Type:   s3types.RequestTypeGetObjectAcl,
		Bucket: &types.Bucket{ID: "b1", OwnerID: "u9"},
		Object: &types.Object{ID: "o1", OwnerID: "u9"},
		ObjectACLs: []*types.ObjectACL{
			{ObjectID: "o1", UserID: "u2", Grant: types.Grant{PermitReadACP: true}},
		},
	}
	d := e.Authorize(authedAs("u2"), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonObjectUserGrant, d.Reason)
}

func TestFullControlSatisfiesEveryBit(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)
	bucket := &types.Bucket{ID: "b1", OwnerID: "u9"}
	acls := []*types.BucketACL{
		{BucketID: "b1", UserID: "u2", Grant: types.Grant{FullControl: true}},
	}

	for _, typ := range []s3types.RequestType{
		s3types.RequestTypeGetObject,
		s3types.RequestTypePutObject,
		s3types.RequestTypeGetBucketAcl,
		s3types.RequestTypePutBucketAcl,
	} {
		d := e.Authorize(authedAs("u2"), &RequestContext{Type: typ, Bucket: bucket, BucketACLs: acls})
		assert.True(t, d.Allowed, "%s", typ)
	}
}

func TestBucketCreation(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	d := e.Authorize(authedAs("u1"), &RequestContext{Type: s3types.RequestTypeCreateBucket})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonBucketCreation, d.Reason)

	d = e.Authorize(Anonymous, &RequestContext{Type: s3types.RequestTypeCreateBucket})
	assert.False(t, d.Allowed)
}

func TestListBucketsRequiresIdentity(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)

	d := e.Authorize(authedAs("u1"), &RequestContext{Type: s3types.RequestTypeListBuckets})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonOwnerScope, d.Reason)

	d = e.Authorize(&Authentication{State: StateAccessKeyNotFound}, &RequestContext{Type: s3types.RequestTypeListBuckets})
	assert.False(t, d.Allowed)
}

func TestUnknownRequestTypeDenied(t *testing.T) {
	t.Parallel()

	e, _ := seededEngine(t)
	d := e.Authorize(authedAs("u1"), &RequestContext{Type: s3types.RequestTypeUnknown})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownOperation, d.Reason)
}

func TestBuildRequestContextLoadsACLs(t *testing.T) {
	t.Parallel()

	e, st := seededEngine(t)
	ctx := context.Background()

	bucket := &types.Bucket{ID: "b1", Name: "docs", OwnerID: "u1"}
	require.NoError(t, st.CreateBucket(ctx, bucket))
	require.NoError(t, st.PutBucketACL(ctx, &types.BucketACL{
		ID: "a1", BucketID: "b1", UserGroup: types.GroupAllUsers,
		Grant: types.Grant{PermitRead: true},
	}))

	obj := &types.Object{ID: "o1", BucketID: "b1", Key: "k", Version: 1}
	require.NoError(t, st.CreateObject(ctx, obj))
	require.NoError(t, st.PutObjectACL(ctx, &types.ObjectACL{
		ID: "a2", BucketID: "b1", ObjectID: "o1", UserID: "u2",
		Grant: types.Grant{PermitRead: true},
	}))

	rc, err := e.BuildRequestContext(ctx, s3types.RequestTypeGetObject, bucket, obj)
	require.NoError(t, err)
	assert.Len(t, rc.BucketACLs, 1)
	assert.Len(t, rc.ObjectACLs, 1)
}

func TestRequestTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  s3types.RequestType
		cat  Category
		perm types.Permission
	}{
		{s3types.RequestTypeListBuckets, CategoryService, types.PermissionRead},
		{s3types.RequestTypeHeadBucket, CategoryBucket, types.PermissionRead},
		{s3types.RequestTypeListObjectVersions, CategoryBucket, types.PermissionRead},
		{s3types.RequestTypeDeleteBucket, CategoryBucket, types.PermissionWrite},
		{s3types.RequestTypePutBucketVersioning, CategoryBucket, types.PermissionWrite},
		{s3types.RequestTypeGetBucketAcl, CategoryBucket, types.PermissionReadACP},
		{s3types.RequestTypePutBucketAcl, CategoryBucket, types.PermissionWriteACP},
		{s3types.RequestTypeGetObject, CategoryObject, types.PermissionRead},
		{s3types.RequestTypeDeleteObjectTagging, CategoryObject, types.PermissionWrite},
		{s3types.RequestTypeUploadPart, CategoryObject, types.PermissionWrite},
		{s3types.RequestTypeListParts, CategoryObject, types.PermissionRead},
		{s3types.RequestTypeListMultipartUploads, CategoryBucket, types.PermissionRead},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			cat, ok := CategoryOf(tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.cat, cat)

			perm, ok := PermissionOf(tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.perm, perm)
		})
	}

	_, ok := CategoryOf(s3types.RequestTypeUnknown)
	assert.False(t, ok)
}
