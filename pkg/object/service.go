// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package object orchestrates versioned object reads, writes and deletes
// over the chunked storage engine and the metadata store.
package object

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/atticfs/atticfs/pkg/envelope"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/s3api/s3err"
	"github.com/atticfs/atticfs/pkg/storage"
	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

// DeleteMarkerError reports that the resolved version is a delete marker:
// the key reads as absent, but the response must distinguish "deleted" from
// "never existed".
type DeleteMarkerError struct {
	Version int64
}

func (e *DeleteMarkerError) Error() string {
	return fmt.Sprintf("version %d is a delete marker", e.Version)
}

// Service implements versioned object persistence. Writes upload chunks
// first and persist the row after, so a failed upload never leaves a row
// pointing at missing data.
type Service struct {
	st         store.Store
	uploader   *storage.Uploader
	downloader *storage.Downloader
	deleter    *storage.Deleter
	refresher  *storage.Refresher
	enc        *envelope.Encryptor
	tempDir    string
}

// NewService wires the object service. enc may be nil when at-rest
// encryption is not configured; encrypted writes then fail.
func NewService(st store.Store, up *storage.Uploader, down *storage.Downloader, del *storage.Deleter, ref *storage.Refresher, enc *envelope.Encryptor, tempDir string) *Service {
	return &Service{
		st:         st,
		uploader:   up,
		downloader: down,
		deleter:    del,
		refresher:  ref,
		enc:        enc,
		tempDir:    tempDir,
	}
}

// WriteRequest describes one object write. Path is the spooled payload on
// local disk; the caller owns the file.
type WriteRequest struct {
	Bucket *types.Bucket
	Key    string

	OwnerID  string
	AuthorID string

	ContentType string
	Path        string
	Length      int64

	Encrypt bool
	// EncryptionAlgorithm empty means the default; anything other than the
	// envelope algorithm is rejected as unimplemented.
	EncryptionAlgorithm string
	EncryptionKeyID     string
	EncryptionContext   string
}

// Write persists a new version of (bucket, key). On a non-versioned bucket
// the new row is persisted first and the previous version's footprint is
// then removed, so the key never has two live chunk sets. On a versioned
// bucket the previous version simply stops being latest.
func (s *Service) Write(ctx context.Context, req WriteRequest) (*types.Object, error) {
	if req.Encrypt && req.EncryptionAlgorithm != "" && req.EncryptionAlgorithm != envelope.Algorithm {
		return nil, s3err.ErrNotImplemented
	}
	version := int64(1)
	prev, err := s.st.GetLatestObject(ctx, req.Bucket.ID, req.Key)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	if prev != nil {
		version = prev.Version + 1
	}

	isFolder := types.IsFolderKey(req.Key, req.Length)

	payloadPath := req.Path
	storageLength := req.Length
	now := time.Now()
	obj := &types.Object{
		ID:          uuid.NewString(),
		BucketID:    req.Bucket.ID,
		Key:         req.Key,
		OwnerID:     req.OwnerID,
		AuthorID:    req.AuthorID,
		ContentType: req.ContentType,
		Version:     version,
		IsFolder:    isFolder,
		CreatedAt:   now,
		UpdatedAt:   now,
		AccessedAt:  now,
	}

	if req.Encrypt && !isFolder {
		if s.enc == nil {
			return nil, fmt.Errorf("encryption requested but no key wrapper is configured")
		}
		res, err := s.enc.Encrypt(ctx, req.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}
		defer os.Remove(res.Path)

		payloadPath = res.Path
		storageLength = res.Length
		obj.IsEncrypted = true
		obj.EncryptionAlgorithm = envelope.Algorithm
		obj.EncryptionKeyID = req.EncryptionKeyID
		obj.EncryptionContext = req.EncryptionContext
		obj.WrappedDataKey = res.WrappedKey
		obj.EncryptionMetadata = res.Metadata
		obj.MD5 = res.MD5Hex
	} else {
		sum, err := fileMD5(req.Path)
		if err != nil {
			return nil, err
		}
		obj.MD5 = sum
	}
	obj.ETag = obj.MD5
	obj.ContentLength = req.Length
	obj.StorageContentLength = storageLength

	chunks, err := s.uploader.Upload(ctx, payloadPath, req.Key, req.Bucket.ChannelID, storageLength)
	if err != nil {
		return nil, fmt.Errorf("failed to upload chunks: %w", err)
	}
	obj.Chunks = chunks

	if err := s.st.CreateObject(ctx, obj); err != nil {
		// The row never existed; retire the uploaded chunks.
		s.retireChunks(ctx, req.Bucket.ChannelID, chunks)
		return nil, err
	}
	metrics.IngressBytes.Add(float64(req.Length))
	metrics.ObjectCount.Inc()

	for _, mid := range storage.DistinctMessageIDs(chunks) {
		s.refresher.Register(req.Bucket.ChannelID, mid)
	}

	if prev != nil && !req.Bucket.EnableVersioning {
		// The new row is already persisted; a failed retire must not fail
		// the write. The stale footprint stays until a later delete.
		if err := s.retireVersion(ctx, req.Bucket.ChannelID, prev); err != nil {
			logger.Error().Err(err).
				Str("object_id", prev.ID).
				Str("key", prev.Key).
				Msg("object: failed to retire previous version")
		}
	}
	return obj, nil
}

// ByteRange is an inclusive byte range over the plaintext.
type ByteRange struct {
	Start int64
	End   int64
}

// ReadRequest describes one object read. Version 0 resolves the latest
// non-marker semantics; an explicit version is served even on versioned
// buckets. A nil Range reads the whole payload.
type ReadRequest struct {
	Bucket  *types.Bucket
	Key     string
	Version int64
	Range   *ByteRange
}

// Head resolves the object row without fetching any payload.
func (s *Service) Head(ctx context.Context, req ReadRequest) (*types.Object, error) {
	return s.resolve(ctx, req)
}

// Read resolves the requested version, fetches and reassembles its payload,
// decrypts when the version is encrypted, and writes the requested plaintext
// range to w.
func (s *Service) Read(ctx context.Context, req ReadRequest, w io.Writer) (*types.Object, error) {
	obj, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	start, end := int64(0), obj.ContentLength-1
	if req.Range != nil {
		start, end = req.Range.Start, req.Range.End
		if start < 0 || end >= obj.ContentLength || start > end {
			return nil, s3err.ErrInvalidRange
		}
	}

	if obj.IsFolder || obj.ContentLength == 0 {
		s.touch(ctx, obj.ID)
		return obj, nil
	}

	chunks, err := s.st.GetObjectChunks(ctx, obj.ID)
	if err != nil {
		return nil, err
	}

	if obj.IsEncrypted {
		err = s.readEncrypted(ctx, obj, chunks, start, end, w)
	} else {
		err = s.downloader.Fetch(ctx, chunks, start, end, w)
	}
	if err != nil {
		return nil, err
	}
	metrics.EgressBytes.Add(float64(end - start + 1))

	s.touch(ctx, obj.ID)
	return obj, nil
}

// readEncrypted spools the ciphertext to a temp file, decrypts it and
// copies the requested plaintext range out.
func (s *Service) readEncrypted(ctx context.Context, obj *types.Object, chunks []*types.ObjectChunk, start, end int64, w io.Writer) error {
	if s.enc == nil {
		return fmt.Errorf("object %s is encrypted but no key wrapper is configured", obj.ID)
	}

	spool, err := os.CreateTemp(s.tempDir, "read-*.enc")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if err := s.downloader.Fetch(ctx, chunks, 0, obj.StorageContentLength-1, spool); err != nil {
		return err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return err
	}

	plain, err := s.enc.Decrypt(ctx, spool, obj.WrappedDataKey, obj.EncryptionMetadata)
	if err != nil {
		return fmt.Errorf("failed to decrypt payload: %w", err)
	}
	if start > 0 {
		if _, err := io.CopyN(io.Discard, plain, start); err != nil {
			return err
		}
	}
	_, err = io.CopyN(w, plain, end-start+1)
	return err
}

func (s *Service) resolve(ctx context.Context, req ReadRequest) (*types.Object, error) {
	if req.Version > 0 {
		obj, err := s.st.GetObjectVersion(ctx, req.Bucket.ID, req.Key, req.Version)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, s3err.ErrNoSuchVersion
			}
			return nil, err
		}
		if obj.DeleteMarker {
			return nil, &DeleteMarkerError{Version: obj.Version}
		}
		return obj, nil
	}

	obj, err := s.st.GetLatestObject(ctx, req.Bucket.ID, req.Key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, s3err.ErrNoSuchKey
		}
		return nil, err
	}
	if obj.DeleteMarker {
		return nil, &DeleteMarkerError{Version: obj.Version}
	}
	return obj, nil
}

// DeleteResult reports what a Delete produced.
type DeleteResult struct {
	// DeleteMarker is true when a marker version was written instead of
	// removing data.
	DeleteMarker bool
	Version      int64
}

// Delete removes (bucket, key). On a versioned bucket this writes a delete
// marker and keeps every version's chunks, which a later write can shadow;
// on a non-versioned bucket the latest version is removed for good.
// Deleting an absent key succeeds without effect.
func (s *Service) Delete(ctx context.Context, bucket *types.Bucket, key, authorID string) (*DeleteResult, error) {
	latest, err := s.st.GetLatestObject(ctx, bucket.ID, key)
	if err != nil {
		if store.IsNotFound(err) {
			return &DeleteResult{}, nil
		}
		return nil, err
	}

	if bucket.EnableVersioning {
		if latest.DeleteMarker {
			return &DeleteResult{DeleteMarker: true, Version: latest.Version}, nil
		}
		now := time.Now()
		marker := &types.Object{
			ID:           uuid.NewString(),
			BucketID:     bucket.ID,
			Key:          key,
			OwnerID:      latest.OwnerID,
			AuthorID:     authorID,
			Version:      latest.Version + 1,
			DeleteMarker: true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.st.CreateObject(ctx, marker); err != nil {
			return nil, err
		}
		return &DeleteResult{DeleteMarker: true, Version: marker.Version}, nil
	}

	if err := s.retireVersion(ctx, bucket.ChannelID, latest); err != nil {
		return nil, err
	}
	return &DeleteResult{Version: latest.Version}, nil
}

// DeleteVersion removes one explicit version regardless of the bucket's
// versioning state. Removing a delete marker resurfaces the key.
func (s *Service) DeleteVersion(ctx context.Context, bucket *types.Bucket, key string, version int64) error {
	obj, err := s.st.GetObjectVersion(ctx, bucket.ID, key, version)
	if err != nil {
		if store.IsNotFound(err) {
			return s3err.ErrNoSuchVersion
		}
		return err
	}
	return s.retireVersion(ctx, bucket.ChannelID, obj)
}

// retireVersion removes a version's rows first, then hands the platform
// message deletes to the task queue. The request path never waits on the
// platform.
func (s *Service) retireVersion(ctx context.Context, channelID uint64, obj *types.Object) error {
	chunks, err := s.st.GetObjectChunks(ctx, obj.ID)
	if err != nil {
		return err
	}

	if err := s.st.DeleteObjectACLs(ctx, obj.ID); err != nil {
		return err
	}
	if err := s.st.DeleteObjectTags(ctx, obj.ID); err != nil {
		return err
	}
	if err := s.st.DeleteObject(ctx, obj.ID); err != nil {
		return err
	}
	if !obj.DeleteMarker {
		metrics.ObjectCount.Dec()
	}

	s.retireChunks(ctx, channelID, chunks)
	return nil
}

func (s *Service) retireChunks(ctx context.Context, channelID uint64, chunks []*types.ObjectChunk) {
	mids := storage.DistinctMessageIDs(chunks)
	for _, mid := range mids {
		s.refresher.Unregister(mid)
	}
	if err := s.deleter.EnqueueMessageDelete(ctx, channelID, mids); err != nil {
		logger.Error().Err(err).Msg("object: failed to enqueue message delete")
	}
}

// CopyRequest describes a same-service copy.
type CopyRequest struct {
	SourceBucket  *types.Bucket
	SourceKey     string
	SourceVersion int64

	DestBucket *types.Bucket
	DestKey    string

	OwnerID  string
	AuthorID string

	Encrypt           bool
	EncryptionKeyID   string
	EncryptionContext string
}

// Copy reads the source version decrypted and writes it through the normal
// persist path. Ciphertext is never copied as-is: copying into an
// encrypting destination re-encrypts under a fresh data key.
func (s *Service) Copy(ctx context.Context, req CopyRequest) (*types.Object, error) {
	spool, err := os.CreateTemp(s.tempDir, "copy-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	src, err := s.Read(ctx, ReadRequest{
		Bucket:  req.SourceBucket,
		Key:     req.SourceKey,
		Version: req.SourceVersion,
	}, spool)
	if err != nil {
		return nil, err
	}
	if err := spool.Sync(); err != nil {
		return nil, err
	}

	return s.Write(ctx, WriteRequest{
		Bucket:            req.DestBucket,
		Key:               req.DestKey,
		OwnerID:           req.OwnerID,
		AuthorID:          req.AuthorID,
		ContentType:       src.ContentType,
		Path:              spool.Name(),
		Length:            src.ContentLength,
		Encrypt:           req.Encrypt,
		EncryptionKeyID:   req.EncryptionKeyID,
		EncryptionContext: req.EncryptionContext,
	})
}

// List returns the latest non-marker version of every key under prefix.
func (s *Service) List(ctx context.Context, bucket *types.Bucket, prefix string, limit int) ([]*types.Object, error) {
	return s.st.ListLatestObjects(ctx, bucket.ID, prefix, limit)
}

// ListVersions returns every version of one key, newest first, including
// delete markers.
func (s *Service) ListVersions(ctx context.Context, bucket *types.Bucket, key string) ([]*types.Object, error) {
	return s.st.ListObjectVersions(ctx, bucket.ID, key)
}

// PutACL validates and stores one grant on an object version. A grant names
// exactly one principal: a user id or one of the known groups.
func (s *Service) PutACL(ctx context.Context, acl *types.ObjectACL) error {
	if (acl.UserID == "") == (acl.UserGroup == "") {
		return s3err.ErrMalformedACL
	}
	if acl.UserGroup != "" && acl.UserGroup != types.GroupAllUsers && acl.UserGroup != types.GroupAuthenticatedUsers {
		return s3err.ErrMalformedACL
	}
	if acl.ID == "" {
		acl.ID = uuid.NewString()
	}
	acl.CreatedAt = time.Now()
	return s.st.PutObjectACL(ctx, acl)
}

// ListACLs returns the grants on one object version.
func (s *Service) ListACLs(ctx context.Context, objectID string) ([]*types.ObjectACL, error) {
	return s.st.ListObjectACLs(ctx, objectID)
}

// ReplaceTags swaps the tag set on one object version.
func (s *Service) ReplaceTags(ctx context.Context, obj *types.Object, tags map[string]string) error {
	if err := s.st.DeleteObjectTags(ctx, obj.ID); err != nil {
		return err
	}
	for k, v := range tags {
		if err := s.st.PutObjectTag(ctx, &types.ObjectTag{
			ID:       uuid.NewString(),
			ObjectID: obj.ID,
			Key:      k,
			Value:    v,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Tags returns the tag set on one object version.
func (s *Service) Tags(ctx context.Context, objectID string) (map[string]string, error) {
	rows, err := s.st.ListObjectTags(ctx, objectID)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(rows))
	for _, t := range rows {
		tags[t.Key] = t.Value
	}
	return tags, nil
}

// DeleteTags removes every tag on one object version.
func (s *Service) DeleteTags(ctx context.Context, objectID string) error {
	return s.st.DeleteObjectTags(ctx, objectID)
}

func (s *Service) touch(ctx context.Context, objectID string) {
	if err := s.st.TouchObjectAccess(ctx, objectID, time.Now()); err != nil {
		logger.Debug().Err(err).Str("object_id", objectID).Msg("object: failed to record access time")
	}
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SpoolBody copies a request body to a unique temp file under dir and
// returns its path and length. The caller owns the file.
func SpoolBody(dir string, body io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	if err := f.Sync(); err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), n, nil
}
