// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package multipart stages multipart uploads on local disk and assembles
// them into a single payload at completion.
package multipart

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atticfs/atticfs/pkg/envelope"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/s3api/s3err"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// maxPartNumber mirrors the S3 limit.
const maxPartNumber = 10000

// InitiateRequest carries the parameters recorded at initiate time.
// Encryption intent set here is applied once to the assembled object.
type InitiateRequest struct {
	BucketID string
	Key      string

	OwnerID              string
	OwnerDisplayName     string
	InitiatorID          string
	InitiatorDisplayName string

	ContentType string

	UseEncryption       bool
	EncryptionAlgorithm string
	EncryptionKeyID     string
	EncryptionContext   string
}

// CompletedPart is one entry of the caller's completion list. ETag is
// optional; when supplied it must match the stored part's ETag.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// PersistFunc hands the assembled payload to the object persistence path.
// The file at path is removed by the coordinator after persist returns.
type PersistFunc func(ctx context.Context, upload *types.MultipartUpload, path string, size int64) error

// Coordinator manages the multipart upload lifecycle: initiate, stage
// parts, complete or abort.
type Coordinator struct {
	st          store.Store
	stagingRoot string
}

// NewCoordinator creates a Coordinator staging under stagingRoot.
func NewCoordinator(st store.Store, stagingRoot string) *Coordinator {
	return &Coordinator{st: st, stagingRoot: stagingRoot}
}

// Initiate creates the upload row and its staging directory.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*types.MultipartUpload, error) {
	if req.UseEncryption && req.EncryptionAlgorithm != "" && req.EncryptionAlgorithm != envelope.Algorithm {
		return nil, s3err.ErrNotImplemented
	}
	id := uuid.NewString()
	dir := filepath.Join(c.stagingRoot, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	now := time.Now()
	upload := &types.MultipartUpload{
		ID:                   id,
		BucketID:             req.BucketID,
		Key:                  req.Key,
		OwnerID:              req.OwnerID,
		OwnerDisplayName:     req.OwnerDisplayName,
		InitiatorID:          req.InitiatorID,
		InitiatorDisplayName: req.InitiatorDisplayName,
		ContentType:          req.ContentType,
		UploadDir:            dir,
		UseEncryption:        req.UseEncryption,
		EncryptionAlgorithm:  req.EncryptionAlgorithm,
		EncryptionKeyID:      req.EncryptionKeyID,
		EncryptionContext:    req.EncryptionContext,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := c.st.CreateMultipartUpload(ctx, upload); err != nil {
		os.Remove(dir)
		return nil, err
	}
	return upload, nil
}

// UploadPart streams body to a fresh temp file and records the part. Parts
// may arrive in any order and any number of times; re-uploading a part
// number replaces the previous row and removes its temp file.
func (c *Coordinator) UploadPart(ctx context.Context, uploadID string, partNumber int, body io.Reader) (*types.MultipartPart, error) {
	if partNumber < 1 || partNumber > maxPartNumber {
		return nil, s3err.ErrInvalidArgument
	}

	upload, err := c.getLive(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	var previous string
	for _, p := range upload.Parts {
		if p.PartNumber == partNumber {
			previous = p.TempFile
		}
	}

	// Unique name per write so concurrent re-uploads of the same part
	// never collide on one file.
	path := filepath.Join(upload.UploadDir, fmt.Sprintf("part-%05d-%s", partNumber, uuid.NewString()))
	size, etag, err := c.stagePart(path, body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	part := &types.MultipartPart{
		ID:         uuid.NewString(),
		UploadID:   uploadID,
		PartNumber: partNumber,
		Size:       size,
		ETag:       etag,
		TempFile:   path,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.st.UpsertMultipartPart(ctx, part); err != nil {
		os.Remove(path)
		return nil, err
	}

	upload.UpdatedAt = now
	if err := c.st.UpdateMultipartUpload(ctx, upload); err != nil {
		return nil, err
	}

	if previous != "" && previous != path {
		if err := os.Remove(previous); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", previous).Msg("multipart: failed to remove replaced part file")
		}
	}
	return part, nil
}

func (c *Coordinator) stagePart(path string, body io.Reader) (_ int64, _ string, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create part file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	h := md5.New()
	size, err := io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to write part file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// ListParts returns the upload's stored parts sorted by part number.
func (c *Coordinator) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	upload, err := c.getLive(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	parts := make([]*types.MultipartPart, len(upload.Parts))
	copy(parts, upload.Parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

// Complete validates the requested part list, concatenates the stored parts
// into one spooled file, hands it to persist, then tears the upload down.
// Cleanup steps are each best-effort; a failed removal is logged and does
// not undo the completion.
func (c *Coordinator) Complete(ctx context.Context, uploadID string, requested []CompletedPart, persist PersistFunc) error {
	upload, err := c.getLive(ctx, uploadID)
	if err != nil {
		return err
	}

	if err := validateParts(upload.Parts, requested); err != nil {
		return err
	}

	spool := filepath.Join(upload.UploadDir, "assembled-"+uuid.NewString())
	size, err := c.assemble(spool, upload.Parts)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(spool); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", spool).Msg("multipart: failed to remove assembled file")
		}
	}()

	if err := persist(ctx, upload, spool, size); err != nil {
		return err
	}

	c.teardown(ctx, upload)
	return nil
}

// Abort discards the upload: same teardown as Complete without an object.
func (c *Coordinator) Abort(ctx context.Context, uploadID string) error {
	upload, err := c.getLive(ctx, uploadID)
	if err != nil {
		return err
	}
	c.teardown(ctx, upload)
	return nil
}

func (c *Coordinator) getLive(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	upload, err := c.st.GetMultipartUpload(ctx, uploadID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, s3err.ErrNoSuchUpload
		}
		return nil, err
	}
	if upload.IsAborted {
		return nil, s3err.ErrNoSuchUpload
	}
	return upload, nil
}

// validateParts enforces the completion rules in a fixed order: a non-empty
// list, positive and unique part numbers, a contiguous 1..N sequence, a
// count matching the stored parts, and per-part ETag agreement.
func validateParts(stored []*types.MultipartPart, requested []CompletedPart) error {
	if len(requested) == 0 {
		return s3err.ErrInvalidRequest
	}

	seen := make(map[int]struct{}, len(requested))
	for _, p := range requested {
		if p.PartNumber <= 0 {
			return s3err.ErrInvalidPart
		}
		if _, ok := seen[p.PartNumber]; ok {
			return s3err.ErrInvalidPart
		}
		seen[p.PartNumber] = struct{}{}
	}

	// With duplicates ruled out, the list is valid only if it reads exactly
	// 1..N in order; any gap or reordering trips here.
	for i, p := range requested {
		if p.PartNumber != i+1 {
			return s3err.ErrInvalidPartOrder
		}
	}

	if len(requested) != len(stored) {
		return s3err.ErrInvalidPart
	}

	byNumber := make(map[int]*types.MultipartPart, len(stored))
	for _, p := range stored {
		byNumber[p.PartNumber] = p
	}
	for _, p := range requested {
		sp, ok := byNumber[p.PartNumber]
		if !ok {
			return s3err.ErrInvalidPart
		}
		if p.ETag != "" && normalizeETag(p.ETag) != normalizeETag(sp.ETag) {
			return s3err.ErrInvalidPart
		}
	}
	return nil
}

func (c *Coordinator) assemble(spool string, parts []*types.MultipartPart) (_ int64, err error) {
	sorted := make([]*types.MultipartPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	out, err := os.OpenFile(spool, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create assembled file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(spool)
		}
	}()

	var total int64
	for _, p := range sorted {
		n, err := appendPart(out, p.TempFile)
		if err != nil {
			return 0, fmt.Errorf("failed to append part %d: %w", p.PartNumber, err)
		}
		total += n
	}
	if err = out.Sync(); err != nil {
		return 0, err
	}
	return total, nil
}

func appendPart(out io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(out, f)
}

// teardown removes part files, rows and the staging directory, in that
// order, each step independently best-effort.
func (c *Coordinator) teardown(ctx context.Context, upload *types.MultipartUpload) {
	for _, p := range upload.Parts {
		if err := os.Remove(p.TempFile); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", p.TempFile).Msg("multipart: failed to remove part file")
		}
	}
	if err := c.st.DeleteMultipartUpload(ctx, upload.ID); err != nil {
		logger.Warn().Err(err).Str("upload_id", upload.ID).Msg("multipart: failed to delete upload rows")
	}
	if err := os.RemoveAll(upload.UploadDir); err != nil {
		logger.Warn().Err(err).Str("dir", upload.UploadDir).Msg("multipart: failed to remove staging dir")
	}
}

// normalizeETag strips surrounding quotes and case-folds the hex digest.
func normalizeETag(etag string) string {
	return strings.ToLower(strings.Trim(etag, `"`))
}
