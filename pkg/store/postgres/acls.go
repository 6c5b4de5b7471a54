// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"

	"github.com/atticfs/atticfs/pkg/types"
)

func (s *Store) ListBucketACLs(ctx context.Context, bucketID string) ([]*types.BucketACL, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bucket_id, user_id, user_group, issued_by,
			permit_read, permit_write, permit_read_acp, permit_write_acp, full_control, created_at
		 FROM bucket_acls WHERE bucket_id = $1`, bucketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.BucketACL
	for rows.Next() {
		var a types.BucketACL
		if err := rows.Scan(&a.ID, &a.BucketID, &a.UserID, &a.UserGroup, &a.IssuedByUserID,
			&a.PermitRead, &a.PermitWrite, &a.PermitReadACP, &a.PermitWriteACP, &a.FullControl,
			&a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) PutBucketACL(ctx context.Context, acl *types.BucketACL) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bucket_acls (id, bucket_id, user_id, user_group, issued_by,
			permit_read, permit_write, permit_read_acp, permit_write_acp, full_control, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acl.ID, acl.BucketID, acl.UserID, acl.UserGroup, acl.IssuedByUserID,
		acl.PermitRead, acl.PermitWrite, acl.PermitReadACP, acl.PermitWriteACP, acl.FullControl,
		acl.CreatedAt)
	return err
}

func (s *Store) DeleteBucketACLs(ctx context.Context, bucketID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bucket_acls WHERE bucket_id = $1`, bucketID)
	return err
}

func (s *Store) ListBucketTags(ctx context.Context, bucketID string) ([]*types.BucketTag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bucket_id, key, value FROM bucket_tags WHERE bucket_id = $1`, bucketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.BucketTag
	for rows.Next() {
		var t types.BucketTag
		if err := rows.Scan(&t.ID, &t.BucketID, &t.Key, &t.Value); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) PutBucketTag(ctx context.Context, tag *types.BucketTag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bucket_tags (id, bucket_id, key, value) VALUES ($1, $2, $3, $4)`,
		tag.ID, tag.BucketID, tag.Key, tag.Value)
	return err
}

func (s *Store) DeleteBucketTags(ctx context.Context, bucketID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bucket_tags WHERE bucket_id = $1`, bucketID)
	return err
}

func (s *Store) ListObjectACLs(ctx context.Context, objectID string) ([]*types.ObjectACL, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bucket_id, object_id, user_id, user_group, issued_by,
			permit_read, permit_write, permit_read_acp, permit_write_acp, full_control, created_at
		 FROM object_acls WHERE object_id = $1`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ObjectACL
	for rows.Next() {
		var a types.ObjectACL
		if err := rows.Scan(&a.ID, &a.BucketID, &a.ObjectID, &a.UserID, &a.UserGroup, &a.IssuedByUserID,
			&a.PermitRead, &a.PermitWrite, &a.PermitReadACP, &a.PermitWriteACP, &a.FullControl,
			&a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) PutObjectACL(ctx context.Context, acl *types.ObjectACL) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO object_acls (id, bucket_id, object_id, user_id, user_group, issued_by,
			permit_read, permit_write, permit_read_acp, permit_write_acp, full_control, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		acl.ID, acl.BucketID, acl.ObjectID, acl.UserID, acl.UserGroup, acl.IssuedByUserID,
		acl.PermitRead, acl.PermitWrite, acl.PermitReadACP, acl.PermitWriteACP, acl.FullControl,
		acl.CreatedAt)
	return err
}

func (s *Store) DeleteObjectACLs(ctx context.Context, objectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM object_acls WHERE object_id = $1`, objectID)
	return err
}

func (s *Store) ListObjectTags(ctx context.Context, objectID string) ([]*types.ObjectTag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, object_id, key, value FROM object_tags WHERE object_id = $1`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ObjectTag
	for rows.Next() {
		var t types.ObjectTag
		if err := rows.Scan(&t.ID, &t.ObjectID, &t.Key, &t.Value); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) PutObjectTag(ctx context.Context, tag *types.ObjectTag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO object_tags (id, object_id, key, value) VALUES ($1, $2, $3, $4)`,
		tag.ID, tag.ObjectID, tag.Key, tag.Value)
	return err
}

func (s *Store) DeleteObjectTags(ctx context.Context, objectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM object_tags WHERE object_id = $1`, objectID)
	return err
}
