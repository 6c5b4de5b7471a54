// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/atticfs/atticfs/pkg/s3api/s3types"
	"github.com/atticfs/atticfs/pkg/types"
)

// Category classifies a request by the resource its policy checks target.
type Category int

const (
	CategoryService Category = iota
	CategoryBucket
	CategoryObject
)

func (c Category) String() string {
	switch c {
	case CategoryService:
		return "service"
	case CategoryBucket:
		return "bucket"
	case CategoryObject:
		return "object"
	default:
		return "unknown"
	}
}

// requestCategory maps each request type to its policy category. Multipart
// sub-operations target a specific key, so they evaluate as object requests
// except ListMultipartUploads, which enumerates a bucket.
var requestCategory = map[s3types.RequestType]Category{
	s3types.RequestTypeListBuckets: CategoryService,

	s3types.RequestTypeCreateBucket:         CategoryBucket,
	s3types.RequestTypeDeleteBucket:         CategoryBucket,
	s3types.RequestTypeHeadBucket:           CategoryBucket,
	s3types.RequestTypeListObjects:          CategoryBucket,
	s3types.RequestTypeListObjectVersions:   CategoryBucket,
	s3types.RequestTypeGetBucketAcl:         CategoryBucket,
	s3types.RequestTypePutBucketAcl:         CategoryBucket,
	s3types.RequestTypeGetBucketTagging:     CategoryBucket,
	s3types.RequestTypePutBucketTagging:     CategoryBucket,
	s3types.RequestTypeDeleteBucketTagging:  CategoryBucket,
	s3types.RequestTypeGetBucketVersioning:  CategoryBucket,
	s3types.RequestTypePutBucketVersioning:  CategoryBucket,
	s3types.RequestTypeListMultipartUploads: CategoryBucket,

	s3types.RequestTypeGetObject:               CategoryObject,
	s3types.RequestTypeHeadObject:              CategoryObject,
	s3types.RequestTypePutObject:               CategoryObject,
	s3types.RequestTypeCopyObject:              CategoryObject,
	s3types.RequestTypeDeleteObject:            CategoryObject,
	s3types.RequestTypeDeleteObjects:           CategoryObject,
	s3types.RequestTypeGetObjectAcl:            CategoryObject,
	s3types.RequestTypePutObjectAcl:            CategoryObject,
	s3types.RequestTypeGetObjectTagging:        CategoryObject,
	s3types.RequestTypePutObjectTagging:        CategoryObject,
	s3types.RequestTypeDeleteObjectTagging:     CategoryObject,
	s3types.RequestTypeCreateMultipartUpload:   CategoryObject,
	s3types.RequestTypeUploadPart:              CategoryObject,
	s3types.RequestTypeCompleteMultipartUpload: CategoryObject,
	s3types.RequestTypeAbortMultipartUpload:    CategoryObject,
	s3types.RequestTypeListParts:               CategoryObject,
}

// requiredPermission maps each request type to the ACL permission bit it
// needs. Existence, read, and version-listing requests need read; mutations
// including tag and versioning writes need write; ACL reads and writes need
// the dedicated ACP bits.
var requiredPermission = map[s3types.RequestType]types.Permission{
	s3types.RequestTypeListBuckets: types.PermissionRead,

	s3types.RequestTypeHeadBucket:           types.PermissionRead,
	s3types.RequestTypeListObjects:          types.PermissionRead,
	s3types.RequestTypeListObjectVersions:   types.PermissionRead,
	s3types.RequestTypeGetBucketTagging:     types.PermissionRead,
	s3types.RequestTypeGetBucketVersioning:  types.PermissionRead,
	s3types.RequestTypeGetObject:            types.PermissionRead,
	s3types.RequestTypeHeadObject:           types.PermissionRead,
	s3types.RequestTypeGetObjectTagging:     types.PermissionRead,
	s3types.RequestTypeListParts:            types.PermissionRead,
	s3types.RequestTypeListMultipartUploads: types.PermissionRead,

	s3types.RequestTypeCreateBucket:            types.PermissionWrite,
	s3types.RequestTypeDeleteBucket:            types.PermissionWrite,
	s3types.RequestTypePutBucketTagging:        types.PermissionWrite,
	s3types.RequestTypeDeleteBucketTagging:     types.PermissionWrite,
	s3types.RequestTypePutBucketVersioning:     types.PermissionWrite,
	s3types.RequestTypePutObject:               types.PermissionWrite,
	s3types.RequestTypeCopyObject:              types.PermissionWrite,
	s3types.RequestTypeDeleteObject:            types.PermissionWrite,
	s3types.RequestTypeDeleteObjects:           types.PermissionWrite,
	s3types.RequestTypePutObjectTagging:        types.PermissionWrite,
	s3types.RequestTypeDeleteObjectTagging:     types.PermissionWrite,
	s3types.RequestTypeCreateMultipartUpload:   types.PermissionWrite,
	s3types.RequestTypeUploadPart:              types.PermissionWrite,
	s3types.RequestTypeCompleteMultipartUpload: types.PermissionWrite,
	s3types.RequestTypeAbortMultipartUpload:    types.PermissionWrite,

	s3types.RequestTypeGetBucketAcl: types.PermissionReadACP,
	s3types.RequestTypeGetObjectAcl: types.PermissionReadACP,

	s3types.RequestTypePutBucketAcl: types.PermissionWriteACP,
	s3types.RequestTypePutObjectAcl: types.PermissionWriteACP,
}

// CategoryOf returns the policy category for a request type.
func CategoryOf(t s3types.RequestType) (Category, bool) {
	c, ok := requestCategory[t]
	return c, ok
}

// PermissionOf returns the permission bit a request type needs.
func PermissionOf(t s3types.RequestType) (types.Permission, bool) {
	p, ok := requiredPermission[t]
	return p, ok
}
