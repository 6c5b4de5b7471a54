// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the gateway configuration, its defaults and
// validation. Values are populated by the cmd layer from flags, config
// file and environment via viper precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/atticfs/atticfs/pkg/chunk"
)

// Database configures the relational store.
type Database struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Channel configures the attachment platform client.
type Channel struct {
	Token   string
	GuildID uint64
	BaseURL string

	// RequestsPerSecond and Burst bound outbound platform calls.
	RequestsPerSecond float64
	Burst             int
}

// Redis configures the metadata cache.
type Redis struct {
	Addr string
	TTL  time.Duration
}

// Storage configures local staging and chunking.
type Storage struct {
	TempDir   string
	ChunkSize int64
}

// Encryption selects the key-protection backend. The master key is read
// from the environment, never from config files; Vault settings are used
// when VaultAddress is set.
type Encryption struct {
	VaultAddress   string
	VaultToken     string
	VaultNamespace string
	VaultMountPath string
	VaultKeyName   string
}

// Config is the full gateway configuration.
type Config struct {
	ListenAddr string

	Database   Database
	Channel    Channel
	Redis      Redis
	Storage    Storage
	Encryption Encryption
}

// Default returns the configuration baseline.
func Default() *Config {
	return &Config{
		ListenAddr: ":8333",
		Database: Database{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Channel: Channel{
			RequestsPerSecond: 45,
			Burst:             5,
		},
		Redis: Redis{
			TTL: time.Minute,
		},
		Storage: Storage{
			TempDir:   filepath.Join(os.TempDir(), "atticfs"),
			ChunkSize: chunk.DefaultSize,
		},
	}
}

// Validate checks the fields serve cannot run without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Channel.Token == "" {
		return fmt.Errorf("channel token is required")
	}
	if c.Channel.GuildID == 0 {
		return fmt.Errorf("channel guild id is required")
	}
	if c.Storage.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	return nil
}

// ParseSize converts a humanized byte size ("10MiB", "512KB") to bytes.
// An empty string keeps the given fallback.
func ParseSize(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}
