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

func (s *Store) GetCredentialByAccessKey(ctx context.Context, accessKey string) (*types.Credential, error) {
	var c types.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, access_key, secret_key, is_base64, created_at
		 FROM credentials WHERE access_key = $1`, accessKey).
		Scan(&c.ID, &c.UserID, &c.Description, &c.AccessKey, &c.SecretKey, &c.IsBase64, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, created_at FROM users WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
