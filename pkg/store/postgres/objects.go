// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

const objectColumns = `id, bucket_id, object_key, owner_id, author_id, content_type,
	content_length, storage_content_length, version, etag, md5, is_folder, delete_marker,
	is_encrypted, encryption_algorithm, encryption_key_id, wrapped_data_key,
	encryption_metadata, encryption_context, created_at, updated_at, accessed_at`

func scanObject(row interface{ Scan(...any) error }) (*types.Object, error) {
	var o types.Object
	err := row.Scan(&o.ID, &o.BucketID, &o.Key, &o.OwnerID, &o.AuthorID, &o.ContentType,
		&o.ContentLength, &o.StorageContentLength, &o.Version, &o.ETag, &o.MD5, &o.IsFolder,
		&o.DeleteMarker, &o.IsEncrypted, &o.EncryptionAlgorithm, &o.EncryptionKeyID,
		&o.WrappedDataKey, &o.EncryptionMetadata, &o.EncryptionContext,
		&o.CreatedAt, &o.UpdatedAt, &o.AccessedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateObject inserts the object row and its chunks in one transaction.
func (s *Store) CreateObject(ctx context.Context, obj *types.Object) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO objects (`+objectColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				 $17, $18, $19, $20, $21, $22)`,
			obj.ID, obj.BucketID, obj.Key, obj.OwnerID, obj.AuthorID, obj.ContentType,
			obj.ContentLength, obj.StorageContentLength, obj.Version, obj.ETag, obj.MD5,
			obj.IsFolder, obj.DeleteMarker, obj.IsEncrypted, obj.EncryptionAlgorithm,
			obj.EncryptionKeyID, obj.WrappedDataKey, obj.EncryptionMetadata,
			obj.EncryptionContext, obj.CreatedAt, obj.UpdatedAt, obj.AccessedAt)
		if err != nil {
			return err
		}
		for _, c := range obj.Chunks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO object_chunks (object_id, message_id, attachment_id, blob_url,
					start_byte, end_byte, size, expire_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				obj.ID, int64(c.MessageID), int64(c.AttachmentID), c.BlobURL,
				c.StartByte, c.EndByte, c.Size, c.ExpireAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetObjectByID(ctx context.Context, id string) (*types.Object, error) {
	obj, err := scanObject(s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.attachChunks(ctx, obj)
}

func (s *Store) GetLatestObject(ctx context.Context, bucketID, key string) (*types.Object, error) {
	obj, err := scanObject(s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE bucket_id = $1 AND object_key = $2
		 ORDER BY version DESC LIMIT 1`, bucketID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.attachChunks(ctx, obj)
}

func (s *Store) GetObjectVersion(ctx context.Context, bucketID, key string, version int64) (*types.Object, error) {
	obj, err := scanObject(s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE bucket_id = $1 AND object_key = $2 AND version = $3`, bucketID, key, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.attachChunks(ctx, obj)
}

func (s *Store) ListObjectVersions(ctx context.Context, bucketID, key string) ([]*types.Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE bucket_id = $1 AND object_key = $2 ORDER BY version DESC`, bucketID, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListLatestObjects(ctx context.Context, bucketID, prefix string, limit int) ([]*types.Object, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects o
		 WHERE o.bucket_id = $1
		   AND o.object_key LIKE $2 || '%'
		   AND o.delete_marker = FALSE
		   AND o.version = (
			SELECT MAX(version) FROM objects
			WHERE bucket_id = o.bucket_id AND object_key = o.object_key
		   )
		 ORDER BY o.object_key LIMIT $3`, bucketID, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) DeleteObject(ctx context.Context, objectID string) error {
	// Chunks, ACLs and tags cascade.
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = $1`, objectID)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrObjectNotFound)
}

func (s *Store) TouchObjectAccess(ctx context.Context, objectID string, accessedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET accessed_at = $2 WHERE id = $1`, objectID, accessedAt)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrObjectNotFound)
}

func (s *Store) GetObjectChunks(ctx context.Context, objectID string) ([]*types.ObjectChunk, error) {
	return s.queryChunks(ctx,
		`SELECT object_id, message_id, attachment_id, blob_url, start_byte, end_byte, size, expire_at
		 FROM object_chunks WHERE object_id = $1 ORDER BY start_byte`, objectID)
}

func (s *Store) ListChunksByMessage(ctx context.Context, messageID uint64) ([]*types.ObjectChunk, error) {
	return s.queryChunks(ctx,
		`SELECT object_id, message_id, attachment_id, blob_url, start_byte, end_byte, size, expire_at
		 FROM object_chunks WHERE message_id = $1 ORDER BY start_byte`, int64(messageID))
}

func (s *Store) queryChunks(ctx context.Context, query string, arg any) ([]*types.ObjectChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ObjectChunk
	for rows.Next() {
		var (
			c                   types.ObjectChunk
			msgID, attachmentID int64
		)
		if err := rows.Scan(&c.ObjectID, &msgID, &attachmentID, &c.BlobURL,
			&c.StartByte, &c.EndByte, &c.Size, &c.ExpireAt); err != nil {
			return nil, err
		}
		c.MessageID = uint64(msgID)
		c.AttachmentID = uint64(attachmentID)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateChunkLink(ctx context.Context, objectID string, attachmentID uint64, blobURL string, expireAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE object_chunks SET blob_url = $3, expire_at = $4
		 WHERE object_id = $1 AND attachment_id = $2`,
		objectID, int64(attachmentID), blobURL, expireAt)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrObjectNotFound)
}

func (s *Store) ListLiveChunkMessages(ctx context.Context) ([]types.ChunkMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT b.channel_id, c.message_id
		 FROM object_chunks c
		 JOIN objects o ON o.id = c.object_id
		 JOIN buckets b ON b.id = o.bucket_id
		 ORDER BY c.message_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ChunkMessage
	for rows.Next() {
		var channelID, messageID int64
		if err := rows.Scan(&channelID, &messageID); err != nil {
			return nil, err
		}
		out = append(out, types.ChunkMessage{
			ChannelID: uint64(channelID),
			MessageID: uint64(messageID),
		})
	}
	return out, rows.Err()
}

func (s *Store) attachChunks(ctx context.Context, obj *types.Object) (*types.Object, error) {
	chunks, err := s.GetObjectChunks(ctx, obj.ID)
	if err != nil {
		return nil, err
	}
	obj.Chunks = chunks
	return obj, nil
}
