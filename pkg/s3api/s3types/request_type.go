// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3types

// RequestType identifies one S3 operation as seen by the authorization
// engine. Lookup tables in the auth package map each request type to its
// authentication category and required permission bit.
type RequestType int

const (
	RequestTypeUnknown RequestType = iota

	// Service
	RequestTypeListBuckets

	// Bucket
	RequestTypeCreateBucket
	RequestTypeDeleteBucket
	RequestTypeHeadBucket
	RequestTypeListObjects
	RequestTypeListObjectVersions
	RequestTypeGetBucketAcl
	RequestTypePutBucketAcl
	RequestTypeGetBucketTagging
	RequestTypePutBucketTagging
	RequestTypeDeleteBucketTagging
	RequestTypeGetBucketVersioning
	RequestTypePutBucketVersioning

	// Object
	RequestTypeGetObject
	RequestTypeHeadObject
	RequestTypePutObject
	RequestTypeCopyObject
	RequestTypeDeleteObject
	RequestTypeDeleteObjects
	RequestTypeGetObjectAcl
	RequestTypePutObjectAcl
	RequestTypeGetObjectTagging
	RequestTypePutObjectTagging
	RequestTypeDeleteObjectTagging

	// Multipart
	RequestTypeCreateMultipartUpload
	RequestTypeUploadPart
	RequestTypeCompleteMultipartUpload
	RequestTypeAbortMultipartUpload
	RequestTypeListParts
	RequestTypeListMultipartUploads
)

var requestTypeNames = map[RequestType]string{
	RequestTypeListBuckets:             "ListBuckets",
	RequestTypeCreateBucket:            "CreateBucket",
	RequestTypeDeleteBucket:            "DeleteBucket",
	RequestTypeHeadBucket:              "HeadBucket",
	RequestTypeListObjects:             "ListObjects",
	RequestTypeListObjectVersions:      "ListObjectVersions",
	RequestTypeGetBucketAcl:            "GetBucketAcl",
	RequestTypePutBucketAcl:            "PutBucketAcl",
	RequestTypeGetBucketTagging:        "GetBucketTagging",
	RequestTypePutBucketTagging:        "PutBucketTagging",
	RequestTypeDeleteBucketTagging:     "DeleteBucketTagging",
	RequestTypeGetBucketVersioning:     "GetBucketVersioning",
	RequestTypePutBucketVersioning:     "PutBucketVersioning",
	RequestTypeGetObject:               "GetObject",
	RequestTypeHeadObject:              "HeadObject",
	RequestTypePutObject:               "PutObject",
	RequestTypeCopyObject:              "CopyObject",
	RequestTypeDeleteObject:            "DeleteObject",
	RequestTypeDeleteObjects:           "DeleteObjects",
	RequestTypeGetObjectAcl:            "GetObjectAcl",
	RequestTypePutObjectAcl:            "PutObjectAcl",
	RequestTypeGetObjectTagging:        "GetObjectTagging",
	RequestTypePutObjectTagging:        "PutObjectTagging",
	RequestTypeDeleteObjectTagging:     "DeleteObjectTagging",
	RequestTypeCreateMultipartUpload:   "CreateMultipartUpload",
	RequestTypeUploadPart:              "UploadPart",
	RequestTypeCompleteMultipartUpload: "CompleteMultipartUpload",
	RequestTypeAbortMultipartUpload:    "AbortMultipartUpload",
	RequestTypeListParts:               "ListParts",
	RequestTypeListMultipartUploads:    "ListMultipartUploads",
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}
