// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// User is an account known to the gateway.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Credential is an access key pair owned by a user.
type Credential struct {
	ID          string
	UserID      string
	Description string
	AccessKey   string
	SecretKey   string
	IsBase64    bool
	CreatedAt   time.Time
}
