// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/s3api/s3err"
	"github.com/atticfs/atticfs/pkg/store/memory"
	"github.com/atticfs/atticfs/pkg/types"
)

func newCoordinator(t *testing.T) (*Coordinator, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewCoordinator(st, t.TempDir()), st
}

func initiate(t *testing.T, c *Coordinator) *types.MultipartUpload {
	t.Helper()
	upload, err := c.Initiate(context.Background(), InitiateRequest{
		BucketID: "b1",
		Key:      "videos/clip.mp4",
		OwnerID:  "u1",
	})
	require.NoError(t, err)
	return upload
}

func TestInitiateCreatesStagingDir(t *testing.T) {
	t.Parallel()

	c, st := newCoordinator(t)
	upload := initiate(t, c)

	info, err := os.Stat(upload.UploadDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	stored, err := st.GetMultipartUpload(context.Background(), upload.ID)
	require.NoError(t, err)
	assert.Equal(t, "videos/clip.mp4", stored.Key)
}

func TestInitiateRejectsUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	_, err := c.Initiate(context.Background(), InitiateRequest{
		BucketID:            "b1",
		Key:                 "secret.bin",
		UseEncryption:       true,
		EncryptionAlgorithm: "aws:kms",
	})
	require.ErrorIs(t, err, s3err.ErrNotImplemented)

	// The supported algorithm name and the empty default both pass.
	for _, alg := range []string{"", "AES256"} {
		_, err := c.Initiate(context.Background(), InitiateRequest{
			BucketID:            "b1",
			Key:                 "secret.bin",
			UseEncryption:       true,
			EncryptionAlgorithm: alg,
		})
		require.NoError(t, err)
	}
}

func TestUploadPartStagesAndComputesETag(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)

	body := []byte("part one body")
	part, err := c.UploadPart(context.Background(), upload.ID, 1, bytes.NewReader(body))
	require.NoError(t, err)

	sum := md5.Sum(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), part.ETag)
	assert.Equal(t, int64(len(body)), part.Size)

	staged, err := os.ReadFile(part.TempFile)
	require.NoError(t, err)
	assert.Equal(t, body, staged)
}

func TestUploadPartReplaceIsLastWriteWins(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	first, err := c.UploadPart(ctx, upload.ID, 1, strings.NewReader("old content"))
	require.NoError(t, err)
	second, err := c.UploadPart(ctx, upload.ID, 1, strings.NewReader("new content"))
	require.NoError(t, err)

	parts, err := c.ListParts(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1, "re-upload must replace, not append")
	assert.Equal(t, second.ETag, parts[0].ETag)

	_, err = os.Stat(first.TempFile)
	assert.True(t, os.IsNotExist(err), "replaced temp file is removed")
}

func TestUploadPartValidation(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	_, err := c.UploadPart(ctx, upload.ID, 0, strings.NewReader("x"))
	assert.ErrorIs(t, err, s3err.ErrInvalidArgument)

	_, err = c.UploadPart(ctx, upload.ID, maxPartNumber+1, strings.NewReader("x"))
	assert.ErrorIs(t, err, s3err.ErrInvalidArgument)

	_, err = c.UploadPart(ctx, "no-such-upload", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, s3err.ErrNoSuchUpload)
}

func TestListPartsSortedByNumber(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		_, err := c.UploadPart(ctx, upload.ID, n, strings.NewReader(fmt.Sprintf("part %d", n)))
		require.NoError(t, err)
	}

	parts, err := c.ListParts(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, i+1, p.PartNumber)
	}
}

func TestCompleteAssemblesInPartOrder(t *testing.T) {
	t.Parallel()

	c, st := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	// Uploaded out of order; assembly must follow part numbers.
	contents := map[int]string{1: "alpha-", 2: "bravo-", 3: "charlie"}
	var requested []CompletedPart
	for _, n := range []int{2, 3, 1} {
		p, err := c.UploadPart(ctx, upload.ID, n, strings.NewReader(contents[n]))
		require.NoError(t, err)
		requested = append(requested, CompletedPart{PartNumber: n, ETag: `"` + strings.ToUpper(p.ETag) + `"`})
	}
	// The completion list itself arrives in part-number order.
	requested = []CompletedPart{requested[2], requested[0], requested[1]}

	var got []byte
	err := c.Complete(ctx, upload.ID, requested, func(_ context.Context, u *types.MultipartUpload, path string, size int64) error {
		assert.Equal(t, upload.ID, u.ID)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), size)
		got = data
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha-bravo-charlie", string(got))

	// Upload rows and staging dir are gone.
	_, err = st.GetMultipartUpload(ctx, upload.ID)
	require.Error(t, err)
	_, err = os.Stat(upload.UploadDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCompleteValidationOrder(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	var stored []*types.MultipartPart
	for n := 1; n <= 2; n++ {
		p, err := c.UploadPart(ctx, upload.ID, n, strings.NewReader(fmt.Sprintf("part %d", n)))
		require.NoError(t, err)
		stored = append(stored, p)
	}

	noPersist := func(context.Context, *types.MultipartUpload, string, int64) error {
		t.Fatal("persist must not run for invalid lists")
		return nil
	}

	tests := []struct {
		name      string
		requested []CompletedPart
		want      s3err.ErrorCode
	}{
		{"empty list", nil, s3err.ErrInvalidRequest},
		{"non-positive number", []CompletedPart{{PartNumber: 0}}, s3err.ErrInvalidPart},
		{"duplicate number", []CompletedPart{{PartNumber: 1}, {PartNumber: 1}, {PartNumber: 2}}, s3err.ErrInvalidPart},
		{"out of order", []CompletedPart{{PartNumber: 2}, {PartNumber: 1}}, s3err.ErrInvalidPartOrder},
		{"gap", []CompletedPart{{PartNumber: 1}, {PartNumber: 3}}, s3err.ErrInvalidPartOrder},
		{"count mismatch", []CompletedPart{{PartNumber: 1}}, s3err.ErrInvalidPart},
		{"etag mismatch", []CompletedPart{
			{PartNumber: 1, ETag: stored[0].ETag},
			{PartNumber: 2, ETag: "deadbeefdeadbeefdeadbeefdeadbeef"},
		}, s3err.ErrInvalidPart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Complete(ctx, upload.ID, tt.requested, noPersist)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompleteETagNormalization(t *testing.T) {
	t.Parallel()

	c, _ := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	p, err := c.UploadPart(ctx, upload.ID, 1, strings.NewReader("payload"))
	require.NoError(t, err)

	// Quoted uppercase ETag still matches the stored lowercase hex.
	err = c.Complete(ctx, upload.ID, []CompletedPart{
		{PartNumber: 1, ETag: `"` + strings.ToUpper(p.ETag) + `"`},
	}, func(context.Context, *types.MultipartUpload, string, int64) error { return nil })
	assert.NoError(t, err)
}

func TestCompletePersistFailureKeepsUpload(t *testing.T) {
	t.Parallel()

	c, st := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	_, err := c.UploadPart(ctx, upload.ID, 1, strings.NewReader("payload"))
	require.NoError(t, err)

	err = c.Complete(ctx, upload.ID, []CompletedPart{{PartNumber: 1}},
		func(context.Context, *types.MultipartUpload, string, int64) error {
			return fmt.Errorf("channel unavailable")
		})
	require.Error(t, err)

	// The upload survives a failed persist and can be retried.
	stored, err := st.GetMultipartUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Parts, 1)
}

func TestAbortTearsDown(t *testing.T) {
	t.Parallel()

	c, st := newCoordinator(t)
	upload := initiate(t, c)
	ctx := context.Background()

	p, err := c.UploadPart(ctx, upload.ID, 1, strings.NewReader("payload"))
	require.NoError(t, err)

	require.NoError(t, c.Abort(ctx, upload.ID))

	_, err = st.GetMultipartUpload(ctx, upload.ID)
	require.Error(t, err)
	_, err = os.Stat(p.TempFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(upload.UploadDir)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, c.Abort(ctx, upload.ID), s3err.ErrNoSuchUpload)
}
