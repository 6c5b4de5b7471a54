// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3types

// Request and response headers understood by the gateway.
const (
	HeaderACL              = "x-amz-acl"
	HeaderGrantRead        = "x-amz-grant-read"
	HeaderGrantWrite       = "x-amz-grant-write"
	HeaderGrantReadACP     = "x-amz-grant-read-acp"
	HeaderGrantWriteACP    = "x-amz-grant-write-acp"
	HeaderGrantFullControl = "x-amz-grant-full-control"

	HeaderServerSideEncryption         = "x-amz-server-side-encryption"
	HeaderServerSideEncryptionKeyID    = "x-amz-server-side-encryption-aws-kms-key-id"
	HeaderServerSideEncryptionContext  = "x-amz-server-side-encryption-context"
	HeaderServerSideEncryptionCustomer = "x-amz-server-side-encryption-customer-algorithm"

	HeaderCopySource        = "x-amz-copy-source"
	HeaderCopySourceVersion = "x-amz-copy-source-version-id"
	HeaderVersionID         = "x-amz-version-id"
	HeaderDeleteMarker      = "x-amz-delete-marker"
	HeaderRequestID         = "x-amz-request-id"
)

// Canned ACL values accepted on bucket and object writes.
const (
	CannedACLPrivate         = "private"
	CannedACLPublicRead      = "public-read"
	CannedACLPublicReadWrite = "public-read-write"
	CannedACLAuthRead        = "authenticated-read"
)

// Server-side encryption algorithms. Only SSEAlgorithmAES256 is supported;
// the others are recognized so they can be rejected explicitly.
const (
	SSEAlgorithmAES256 = "AES256"
	SSEAlgorithmKMS    = "aws:kms"
)
