// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package channeltest provides an in-memory Channel backed by a local HTTP
// server, so storage tests can exercise real ranged fetches without the
// external platform.
package channeltest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atticfs/atticfs/pkg/channel"
)

type storedAttachment struct {
	id       uint64
	filename string
	data     []byte
}

type storedMessage struct {
	id          uint64
	channelID   uint64
	attachments []*storedAttachment
}

// Fake implements channel.Channel in memory. Attachment URLs point at an
// embedded httptest server that honors Range requests, and carry a revision
// counter so URL rotation can be simulated with RotateURLs.
type Fake struct {
	mu       sync.Mutex
	server   *httptest.Server
	nextID   uint64
	rev      int
	channels map[uint64]string
	messages map[uint64]*storedMessage

	// SendErr, when set, fails the next SendFiles call once.
	SendErr error
}

// New starts a Fake and registers its shutdown with t.
func New(t *testing.T) *Fake {
	t.Helper()
	f := &Fake{
		nextID:   1000,
		channels: make(map[uint64]string),
		messages: make(map[uint64]*storedMessage),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveAttachment))
	t.Cleanup(f.server.Close)
	return f
}

func (f *Fake) serveAttachment(w http.ResponseWriter, r *http.Request) {
	// Path: /attachments/{id}/{rev}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}
	attID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	var data []byte
	rev := strconv.Itoa(f.rev)
	for _, m := range f.messages {
		for _, a := range m.attachments {
			if a.id == attID {
				data = a.data
			}
		}
	}
	f.mu.Unlock()

	if data == nil || parts[2] != rev {
		// Stale URL or deleted attachment.
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, "chunk", time.Time{}, bytes.NewReader(data))
}

func (f *Fake) url(attID uint64) string {
	return fmt.Sprintf("%s/attachments/%d/%d", f.server.URL, attID, f.rev)
}

func (f *Fake) allocID() uint64 {
	f.nextID++
	return f.nextID
}

// SendFiles stores the files as one message and returns attachments in
// submission order.
func (f *Fake) SendFiles(_ context.Context, channelID uint64, files []channel.File) (*channel.Message, error) {
	if len(files) > channel.MaxFilesPerMessage {
		return nil, fmt.Errorf("too many files: %d", len(files))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		err := f.SendErr
		f.SendErr = nil
		return nil, err
	}

	msg := &storedMessage{id: f.allocID(), channelID: channelID}
	out := &channel.Message{ID: msg.id}
	for _, file := range files {
		data, err := io.ReadAll(file.Reader)
		if err != nil {
			return nil, err
		}
		att := &storedAttachment{id: f.allocID(), filename: file.Name, data: data}
		msg.attachments = append(msg.attachments, att)
		out.Attachments = append(out.Attachments, channel.Attachment{
			ID:       att.id,
			Filename: att.filename,
			URL:      f.url(att.id),
			Size:     int64(len(data)),
		})
	}
	f.messages[msg.id] = msg
	return out, nil
}

// GetMessage returns the message with URLs at the current revision.
func (f *Fake) GetMessage(_ context.Context, _ uint64, messageID uint64) (*channel.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d not found", messageID)
	}
	out := &channel.Message{ID: msg.id}
	for _, a := range msg.attachments {
		out.Attachments = append(out.Attachments, channel.Attachment{
			ID:       a.id,
			Filename: a.filename,
			URL:      f.url(a.id),
			Size:     int64(len(a.data)),
		})
	}
	return out, nil
}

// DeleteMessages drops messages and their attachment payloads.
func (f *Fake) DeleteMessages(_ context.Context, _ uint64, messageIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range messageIDs {
		delete(f.messages, id)
	}
	return nil
}

// CreateChannel allocates a channel id.
func (f *Fake) CreateChannel(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.allocID()
	f.channels[id] = name
	return id, nil
}

// DeleteChannel removes the channel.
func (f *Fake) DeleteChannel(_ context.Context, channelID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("channel %d not found", channelID)
	}
	delete(f.channels, channelID)
	return nil
}

// RotateURLs invalidates every previously issued attachment URL, as the
// platform does when links expire.
func (f *Fake) RotateURLs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
}

// RemoveAttachment drops one attachment from a stored message, simulating an
// attachment that vanished platform-side.
func (f *Fake) RemoveAttachment(messageID, attachmentID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[messageID]
	if !ok {
		return
	}
	kept := msg.attachments[:0]
	for _, a := range msg.attachments {
		if a.id != attachmentID {
			kept = append(kept, a)
		}
	}
	msg.attachments = kept
}

// MessageCount reports how many messages are currently stored.
func (f *Fake) MessageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// ChannelCount reports how many channels currently exist.
func (f *Fake) ChannelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// AttachmentData returns the stored bytes for an attachment id.
func (f *Fake) AttachmentData(attachmentID uint64) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.messages {
		for _, a := range m.attachments {
			if a.id == attachmentID {
				return a.data
			}
		}
	}
	return nil
}

var _ channel.Channel = (*Fake)(nil)
