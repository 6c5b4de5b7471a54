// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"

	"github.com/atticfs/atticfs/pkg/logger"
)

// migrations run in order; each entry is applied at most once, tracked in
// schema_migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS credentials (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		description TEXT NOT NULL DEFAULT '',
		access_key  TEXT NOT NULL UNIQUE,
		secret_key  TEXT NOT NULL,
		is_base64   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS buckets (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL UNIQUE,
		owner_id            TEXT NOT NULL,
		region              TEXT NOT NULL DEFAULT '',
		storage_type        TEXT NOT NULL,
		channel_id          BIGINT NOT NULL,
		enable_versioning   BOOLEAN NOT NULL DEFAULT FALSE,
		enable_public_read  BOOLEAN NOT NULL DEFAULT FALSE,
		enable_public_write BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS bucket_acls (
		id               TEXT PRIMARY KEY,
		bucket_id        TEXT NOT NULL REFERENCES buckets(id) ON DELETE CASCADE,
		user_id          TEXT NOT NULL DEFAULT '',
		user_group       TEXT NOT NULL DEFAULT '',
		issued_by        TEXT NOT NULL DEFAULT '',
		permit_read      BOOLEAN NOT NULL DEFAULT FALSE,
		permit_write     BOOLEAN NOT NULL DEFAULT FALSE,
		permit_read_acp  BOOLEAN NOT NULL DEFAULT FALSE,
		permit_write_acp BOOLEAN NOT NULL DEFAULT FALSE,
		full_control     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS bucket_tags (
		id        TEXT PRIMARY KEY,
		bucket_id TEXT NOT NULL REFERENCES buckets(id) ON DELETE CASCADE,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS objects (
		id                     TEXT PRIMARY KEY,
		bucket_id              TEXT NOT NULL,
		object_key             TEXT NOT NULL,
		owner_id               TEXT NOT NULL DEFAULT '',
		author_id              TEXT NOT NULL DEFAULT '',
		content_type           TEXT NOT NULL DEFAULT '',
		content_length         BIGINT NOT NULL DEFAULT 0,
		storage_content_length BIGINT NOT NULL DEFAULT 0,
		version                BIGINT NOT NULL,
		etag                   TEXT NOT NULL DEFAULT '',
		md5                    TEXT NOT NULL DEFAULT '',
		is_folder              BOOLEAN NOT NULL DEFAULT FALSE,
		delete_marker          BOOLEAN NOT NULL DEFAULT FALSE,
		is_encrypted           BOOLEAN NOT NULL DEFAULT FALSE,
		encryption_algorithm   TEXT NOT NULL DEFAULT '',
		encryption_key_id      TEXT NOT NULL DEFAULT '',
		wrapped_data_key       BYTEA,
		encryption_metadata    TEXT NOT NULL DEFAULT '',
		encryption_context     TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		accessed_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (bucket_id, object_key, version)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_objects_bucket_key ON objects (bucket_id, object_key)`,

	`CREATE TABLE IF NOT EXISTS object_chunks (
		object_id     TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
		message_id    BIGINT NOT NULL,
		attachment_id BIGINT NOT NULL,
		blob_url      TEXT NOT NULL,
		start_byte    BIGINT NOT NULL,
		end_byte      BIGINT NOT NULL,
		size          BIGINT NOT NULL,
		expire_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (object_id, start_byte)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_object_chunks_message ON object_chunks (message_id)`,

	`CREATE TABLE IF NOT EXISTS object_acls (
		id               TEXT PRIMARY KEY,
		bucket_id        TEXT NOT NULL,
		object_id        TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
		user_id          TEXT NOT NULL DEFAULT '',
		user_group       TEXT NOT NULL DEFAULT '',
		issued_by        TEXT NOT NULL DEFAULT '',
		permit_read      BOOLEAN NOT NULL DEFAULT FALSE,
		permit_write     BOOLEAN NOT NULL DEFAULT FALSE,
		permit_read_acp  BOOLEAN NOT NULL DEFAULT FALSE,
		permit_write_acp BOOLEAN NOT NULL DEFAULT FALSE,
		full_control     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS object_tags (
		id        TEXT PRIMARY KEY,
		object_id TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS multipart_uploads (
		id                     TEXT PRIMARY KEY,
		bucket_id              TEXT NOT NULL,
		object_key             TEXT NOT NULL,
		owner_id               TEXT NOT NULL DEFAULT '',
		owner_display_name     TEXT NOT NULL DEFAULT '',
		initiator_id           TEXT NOT NULL DEFAULT '',
		initiator_display_name TEXT NOT NULL DEFAULT '',
		content_type           TEXT NOT NULL DEFAULT '',
		upload_dir             TEXT NOT NULL,
		use_encryption         BOOLEAN NOT NULL DEFAULT FALSE,
		encryption_algorithm   TEXT NOT NULL DEFAULT '',
		encryption_key_id      TEXT NOT NULL DEFAULT '',
		encryption_context     TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_aborted             BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS multipart_parts (
		id          TEXT PRIMARY KEY,
		upload_id   TEXT NOT NULL REFERENCES multipart_uploads(id) ON DELETE CASCADE,
		part_number INTEGER NOT NULL,
		size        BIGINT NOT NULL DEFAULT 0,
		etag        TEXT NOT NULL DEFAULT '',
		temp_file   TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (upload_id, part_number)
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		logger.Info().Int("version", version).Msg("store: applied migration")
	}
	return nil
}
