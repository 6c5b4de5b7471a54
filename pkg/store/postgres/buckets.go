// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

const bucketColumns = `id, name, owner_id, region, storage_type, channel_id,
	enable_versioning, enable_public_read, enable_public_write, created_at`

func scanBucket(row interface{ Scan(...any) error }) (*types.Bucket, error) {
	var (
		b         types.Bucket
		channelID int64
	)
	err := row.Scan(&b.ID, &b.Name, &b.OwnerID, &b.Region, &b.StorageType, &channelID,
		&b.EnableVersioning, &b.EnablePublicRead, &b.EnablePublicWrite, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.ChannelID = uint64(channelID)
	return &b, nil
}

func (s *Store) CreateBucket(ctx context.Context, bucket *types.Bucket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (`+bucketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		bucket.ID, bucket.Name, bucket.OwnerID, bucket.Region, bucket.StorageType,
		int64(bucket.ChannelID), bucket.EnableVersioning, bucket.EnablePublicRead,
		bucket.EnablePublicWrite, bucket.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "unique") {
		return store.ErrBucketExists
	}
	return err
}

func (s *Store) GetBucketByName(ctx context.Context, name string) (*types.Bucket, error) {
	b, err := scanBucket(s.db.QueryRowContext(ctx,
		`SELECT `+bucketColumns+` FROM buckets WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBucketNotFound
	}
	return b, err
}

func (s *Store) GetBucketByID(ctx context.Context, id string) (*types.Bucket, error) {
	b, err := scanBucket(s.db.QueryRowContext(ctx,
		`SELECT `+bucketColumns+` FROM buckets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBucketNotFound
	}
	return b, err
}

func (s *Store) ListBucketsByOwner(ctx context.Context, ownerID string) ([]*types.Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bucketColumns+` FROM buckets WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBucket(ctx context.Context, bucket *types.Bucket) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buckets SET enable_versioning = $2, enable_public_read = $3,
		 enable_public_write = $4 WHERE id = $1`,
		bucket.ID, bucket.EnableVersioning, bucket.EnablePublicRead, bucket.EnablePublicWrite)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrBucketNotFound)
}

func (s *Store) DeleteBucket(ctx context.Context, bucketID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE id = $1`, bucketID)
	if err != nil {
		return err
	}
	return requireRow(res, store.ErrBucketNotFound)
}

func (s *Store) CountLiveObjects(ctx context.Context, bucketID string) (int64, error) {
	// A key is live when its highest version is not a delete marker.
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects o
		 WHERE o.bucket_id = $1
		   AND o.delete_marker = FALSE
		   AND o.version = (
			SELECT MAX(version) FROM objects
			WHERE bucket_id = o.bucket_id AND object_key = o.object_key
		   )`, bucketID).Scan(&n)
	return n, err
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
