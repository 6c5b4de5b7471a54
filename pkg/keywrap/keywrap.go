// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package keywrap protects per-object data keys at rest. Object payload
// encryption generates a random data key per version; the raw key is handed
// to a Wrapper before anything touches the database, and only the wrapped
// form is persisted.
package keywrap

import "context"

// Wrapper wraps and unwraps raw symmetric keys with a deployment-scoped
// secret.
type Wrapper interface {
	Wrap(ctx context.Context, key []byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}
