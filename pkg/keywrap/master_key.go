// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// MasterKeyEnv is the environment variable holding the base64-encoded
// 32-byte process master key.
const MasterKeyEnv = "ATTICFS_MASTER_KEY"

// MasterKey is the local Wrapper implementation: AES-256-GCM under a single
// process-wide key, nonce prepended to the wrapped output.
type MasterKey struct {
	key []byte
}

// NewMasterKey creates a master key from raw bytes.
func NewMasterKey(key []byte) (*MasterKey, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &MasterKey{key: key}, nil
}

// MasterKeyFromEnv loads the master key from MasterKeyEnv.
func MasterKeyFromEnv() (*MasterKey, error) {
	keyStr := os.Getenv(MasterKeyEnv)
	if keyStr == "" {
		return nil, fmt.Errorf("%s is not set", MasterKeyEnv)
	}
	key, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: must be base64 encoded: %w", MasterKeyEnv, err)
	}
	return NewMasterKey(key)
}

// GenerateMasterKey generates a new random 32-byte master key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Wrap encrypts the key using AES-256-GCM.
func (m *MasterKey) Wrap(_ context.Context, key []byte) ([]byte, error) {
	aesGCM, err := m.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Prepend nonce to ciphertext
	return aesGCM.Seal(nonce, nonce, key, nil), nil
}

// Unwrap decrypts a wrapped key.
func (m *MasterKey) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	aesGCM, err := m.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, fmt.Errorf("wrapped key too short")
	}

	nonce, encrypted := wrapped[:nonceSize], wrapped[nonceSize:]
	key, err := aesGCM.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return key, nil
}

func (m *MasterKey) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

var _ Wrapper = (*MasterKey)(nil)
