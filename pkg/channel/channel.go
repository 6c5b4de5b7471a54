// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel abstracts the external chat-platform attachment service
// used as blob storage. One channel backs one bucket; one message carries up
// to MaxFilesPerMessage attachments, each holding one payload chunk.
package channel

import (
	"context"
	"io"
)

// MaxFilesPerMessage is the platform's per-message attachment cap.
const MaxFilesPerMessage = 10

// File is one named byte stream to attach to a message.
type File struct {
	Name   string
	Reader io.Reader
	Size   int64
}

// Attachment is one uploaded file as reported back by the platform. URLs are
// ephemeral; the platform rotates them and the stored copy must be refreshed
// before it expires.
type Attachment struct {
	ID       uint64
	Filename string
	URL      string
	Size     int64
}

// Message is one platform message. Attachments are returned in submission
// order; the uploader relies on this when a filename-encoded index is
// missing.
type Message struct {
	ID          uint64
	Attachments []Attachment
}

// Channel is the platform capability surface the storage engine needs.
type Channel interface {
	// SendFiles posts one message carrying the given files to a channel.
	SendFiles(ctx context.Context, channelID uint64, files []File) (*Message, error)

	// GetMessage re-fetches a message to re-enumerate its current
	// attachment URLs.
	GetMessage(ctx context.Context, channelID, messageID uint64) (*Message, error)

	// DeleteMessages removes messages by id.
	DeleteMessages(ctx context.Context, channelID uint64, messageIDs []uint64) error

	// CreateChannel creates a channel and returns its id.
	CreateChannel(ctx context.Context, name string) (uint64, error)

	// DeleteChannel removes a channel.
	DeleteChannel(ctx context.Context, channelID uint64) error
}
