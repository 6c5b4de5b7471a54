// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

const uploadColumns = `id, bucket_id, object_key, owner_id, owner_display_name,
	initiator_id, initiator_display_name, content_type, upload_dir, use_encryption,
	encryption_algorithm, encryption_key_id, encryption_context, created_at, updated_at, is_aborted`

func (s *Store) CreateMultipartUpload(ctx context.Context, u *types.MultipartUpload) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO multipart_uploads (`+uploadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.BucketID, u.Key, u.OwnerID, u.OwnerDisplayName,
		u.InitiatorID, u.InitiatorDisplayName, u.ContentType, u.UploadDir, u.UseEncryption,
		u.EncryptionAlgorithm, u.EncryptionKeyID, u.EncryptionContext,
		u.CreatedAt, u.UpdatedAt, u.IsAborted)
	return err
}

func (s *Store) GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	var u types.MultipartUpload
	err := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM multipart_uploads WHERE id = $1`, uploadID).
		Scan(&u.ID, &u.BucketID, &u.Key, &u.OwnerID, &u.OwnerDisplayName,
			&u.InitiatorID, &u.InitiatorDisplayName, &u.ContentType, &u.UploadDir,
			&u.UseEncryption, &u.EncryptionAlgorithm, &u.EncryptionKeyID, &u.EncryptionContext,
			&u.CreatedAt, &u.UpdatedAt, &u.IsAborted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, upload_id, part_number, size, etag, temp_file, created_at, updated_at
		 FROM multipart_parts WHERE upload_id = $1 ORDER BY part_number`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p types.MultipartPart
		if err := rows.Scan(&p.ID, &p.UploadID, &p.PartNumber, &p.Size, &p.ETag,
			&p.TempFile, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		u.Parts = append(u.Parts, &p)
	}
	return &u, rows.Err()
}

func (s *Store) UpdateMultipartUpload(ctx context.Context, u *types.MultipartUpload) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE multipart_uploads SET updated_at = $2, is_aborted = $3 WHERE id = $1`,
		u.ID, u.UpdatedAt, u.IsAborted)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrUploadNotFound)
}

// UpsertMultipartPart replaces the row for (upload, part number); re-uploads
// of the same part number are last write wins.
func (s *Store) UpsertMultipartPart(ctx context.Context, p *types.MultipartPart) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO multipart_parts (id, upload_id, part_number, size, etag, temp_file, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (upload_id, part_number) DO UPDATE SET
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			temp_file = EXCLUDED.temp_file,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.UploadID, p.PartNumber, p.Size, p.ETag, p.TempFile, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) DeleteMultipartUpload(ctx context.Context, uploadID string) error {
	// Parts cascade.
	res, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE id = $1`, uploadID)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrUploadNotFound)
}
