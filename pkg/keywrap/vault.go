// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures the Vault Transit wrapper.
type VaultConfig struct {
	Address   string
	Token     string
	MountPath string
	KeyName   string
	Namespace string
}

// VaultWrapper wraps data keys with HashiCorp Vault's Transit secrets
// engine, keeping the wrapping key out of the process entirely.
type VaultWrapper struct {
	client    *vault.Client
	mountPath string
	keyName   string
}

// NewVaultWrapper creates a Transit-backed wrapper and verifies the
// connection.
func NewVaultWrapper(cfg VaultConfig) (*VaultWrapper, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "transit"
	}
	if cfg.KeyName == "" {
		return nil, fmt.Errorf("vault key name is required")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to Vault: %w", err)
	}

	return &VaultWrapper{
		client:    client,
		mountPath: cfg.MountPath,
		keyName:   cfg.KeyName,
	}, nil
}

func (w *VaultWrapper) transitPath(op string) string {
	return fmt.Sprintf("%s/%s/%s", w.mountPath, op, w.keyName)
}

// Wrap encrypts the key using Vault Transit. The returned value is Vault's
// own ciphertext format (vault:v1:base64...).
func (w *VaultWrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	secret, err := w.client.Logical().WriteWithContext(ctx, w.transitPath("encrypt"), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit encrypt: invalid response")
	}
	return []byte(ciphertext), nil
}

// Unwrap decrypts a wrapped key using Vault Transit.
func (w *VaultWrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	secret, err := w.client.Logical().WriteWithContext(ctx, w.transitPath("decrypt"), map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: invalid response")
	}

	key, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}
	return key, nil
}

var _ Wrapper = (*VaultWrapper)(nil)
