// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway bundles the services an S3 front end consumes and the
// glue between them: authorization for a request, and the hand-off from an
// assembled multipart upload into the object write path.
package gateway

import (
	"context"
	"fmt"

	"github.com/atticfs/atticfs/pkg/auth"
	"github.com/atticfs/atticfs/pkg/bucket"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/multipart"
	"github.com/atticfs/atticfs/pkg/object"
	"github.com/atticfs/atticfs/pkg/s3api/s3types"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// Gateway is the service surface of the gateway process.
type Gateway struct {
	Auth    *auth.Engine
	Buckets *bucket.Service
	Objects *object.Service
	Uploads *multipart.Coordinator

	st store.Store
}

// New assembles a Gateway over the given services.
func New(st store.Store, engine *auth.Engine, buckets *bucket.Service, objects *object.Service, uploads *multipart.Coordinator) *Gateway {
	return &Gateway{
		Auth:    engine,
		Buckets: buckets,
		Objects: objects,
		Uploads: uploads,
		st:      st,
	}
}

// Authorize authenticates the access key and evaluates the request against
// it. Every decision is logged with the matched reason.
func (g *Gateway) Authorize(ctx context.Context, accessKey string, typ s3types.RequestType, bkt *types.Bucket, obj *types.Object) (*auth.Authentication, auth.Decision, error) {
	ident, err := g.Auth.Authenticate(ctx, accessKey)
	if err != nil {
		return nil, auth.Decision{}, err
	}
	req, err := g.Auth.BuildRequestContext(ctx, typ, bkt, obj)
	if err != nil {
		return nil, auth.Decision{}, err
	}
	decision := g.Auth.Authorize(ident, req)

	evt := logger.Info()
	if !decision.Allowed {
		evt = logger.Warn()
	}
	evt.
		Str("request_type", typ.String()).
		Str("auth_state", ident.State.String()).
		Bool("allowed", decision.Allowed).
		Str("reason", string(decision.Reason)).
		Msg("authorization decision")

	return ident, decision, nil
}

// CompleteUpload finishes a multipart upload: the coordinator validates and
// assembles the parts, then the result is written through the normal object
// path so chunking, encryption and versioning all apply.
func (g *Gateway) CompleteUpload(ctx context.Context, uploadID string, parts []multipart.CompletedPart) (*types.Object, error) {
	var completed *types.Object
	persist := func(ctx context.Context, upload *types.MultipartUpload, path string, size int64) error {
		bkt, err := g.st.GetBucketByID(ctx, upload.BucketID)
		if err != nil {
			return fmt.Errorf("bucket %s: %w", upload.BucketID, err)
		}
		obj, err := g.Objects.Write(ctx, object.WriteRequest{
			Bucket:              bkt,
			Key:                 upload.Key,
			OwnerID:             upload.OwnerID,
			AuthorID:            upload.InitiatorID,
			ContentType:         upload.ContentType,
			Path:                path,
			Length:              size,
			Encrypt:             upload.UseEncryption,
			EncryptionAlgorithm: upload.EncryptionAlgorithm,
			EncryptionKeyID:     upload.EncryptionKeyID,
			EncryptionContext:   upload.EncryptionContext,
		})
		if err != nil {
			return err
		}
		completed = obj
		return nil
	}

	if err := g.Uploads.Complete(ctx, uploadID, parts, persist); err != nil {
		return nil, err
	}
	return completed, nil
}
