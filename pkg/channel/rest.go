// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/atticfs/atticfs/pkg/logger"
)

const (
	defaultBaseURL = "https://discord.com/api/v10"
	// Uploads of 10 MiB chunks over slow links need a generous budget;
	// retries are bounded separately by the caller.
	defaultTimeout = 5 * time.Minute
)

// RESTConfig configures the platform REST client.
type RESTConfig struct {
	// Token is the bot token.
	Token string
	// GuildID is the guild bucket channels are created under.
	GuildID uint64
	// BaseURL overrides the platform API root, used by tests.
	BaseURL string
	// Timeout is the per-call HTTP client timeout.
	Timeout time.Duration
}

// RESTChannel talks to the platform's HTTP API.
type RESTChannel struct {
	cfg    RESTConfig
	client *http.Client
}

// NewREST creates a REST client for the attachment platform.
func NewREST(cfg RESTConfig) (*RESTChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &RESTChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// snowflake is the platform's string-encoded uint64 id.
type snowflake uint64

func (s *snowflake) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid snowflake %q: %w", raw, err)
	}
	*s = snowflake(v)
	return nil
}

type wireAttachment struct {
	ID       snowflake `json:"id"`
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
}

type wireMessage struct {
	ID          snowflake        `json:"id"`
	Attachments []wireAttachment `json:"attachments"`
}

func (m *wireMessage) toMessage() *Message {
	msg := &Message{ID: uint64(m.ID)}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID:       uint64(a.ID),
			Filename: a.Filename,
			URL:      a.URL,
			Size:     a.Size,
		})
	}
	return msg
}

// SendFiles posts one multipart message with the given files attached.
func (c *RESTChannel) SendFiles(ctx context.Context, channelID uint64, files []File) (*Message, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to send")
	}
	if len(files) > MaxFilesPerMessage {
		return nil, fmt.Errorf("too many files: %d > %d", len(files), MaxFilesPerMessage)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, f := range files {
		part, err := mw.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("failed to stage file %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/channels/%d/messages", c.cfg.BaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg wireMessage
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return msg.toMessage(), nil
}

// GetMessage fetches a message by id.
func (c *RESTChannel) GetMessage(ctx context.Context, channelID, messageID uint64) (*Message, error) {
	url := fmt.Sprintf("%s/channels/%d/messages/%d", c.cfg.BaseURL, channelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var msg wireMessage
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return msg.toMessage(), nil
}

// DeleteMessages removes messages. Two or more ids use the bulk endpoint.
func (c *RESTChannel) DeleteMessages(ctx context.Context, channelID uint64, messageIDs []uint64) error {
	switch len(messageIDs) {
	case 0:
		return nil
	case 1:
		url := fmt.Sprintf("%s/channels/%d/messages/%d", c.cfg.BaseURL, channelID, messageIDs[0])
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		return c.do(req, nil)
	default:
		ids := make([]string, 0, len(messageIDs))
		for _, id := range messageIDs {
			ids = append(ids, strconv.FormatUint(id, 10))
		}
		payload, err := json.Marshal(map[string][]string{"messages": ids})
		if err != nil {
			return err
		}
		url := fmt.Sprintf("%s/channels/%d/messages/bulk-delete", c.cfg.BaseURL, channelID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, nil)
	}
}

// CreateChannel creates a text channel under the configured guild.
func (c *RESTChannel) CreateChannel(ctx context.Context, name string) (uint64, error) {
	payload, err := json.Marshal(map[string]any{"name": name, "type": 0})
	if err != nil {
		return 0, err
	}
	url := fmt.Sprintf("%s/guilds/%d/channels", c.cfg.BaseURL, c.cfg.GuildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var created struct {
		ID snowflake `json:"id"`
	}
	if err := c.do(req, &created); err != nil {
		return 0, err
	}
	return uint64(created.ID), nil
}

// DeleteChannel removes a channel.
func (c *RESTChannel) DeleteChannel(ctx context.Context, channelID uint64) error {
	url := fmt.Sprintf("%s/channels/%d", c.cfg.BaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Ping verifies the API is reachable and the token is accepted.
func (c *RESTChannel) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/users/@me", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *RESTChannel) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Debug().
			Int("status", resp.StatusCode).
			Str("url", req.URL.Path).
			Msg("platform request failed")
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform returned status %d", e.Status)
}

var _ Channel = (*RESTChannel)(nil)
