// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskqueue runs background work the request path must not wait on:
// bulk-deleting platform messages after an object version is removed, and
// refreshing attachment links before they expire.
//
// The in-memory queue is at-least-once within the process lifetime only; a
// crash between commit and dispatch orphans the queued work. For chunk
// deletes that means stale attachments on the platform, which is an accepted
// tradeoff.
package taskqueue

import (
	"encoding/json"
	"time"
)

// Default configuration values
const (
	DefaultPollInterval = time.Second
	DefaultConcurrency  = 3
	DefaultMaxRetries   = 3
)

// TaskType routes a task to its handler.
type TaskType string

const (
	// TaskTypeChunkDelete bulk-deletes the platform messages that carried a
	// deleted object version's chunks.
	TaskTypeChunkDelete TaskType = "chunk_delete"
	// TaskTypeLinkRefresh re-fetches one platform message and rewrites the
	// stored attachment URLs before they expire.
	TaskTypeLinkRefresh TaskType = "link_refresh"
)

// ChunkDeletePayload names the messages to remove from a bucket's channel.
type ChunkDeletePayload struct {
	ChannelID  uint64   `json:"channelId"`
	MessageIDs []uint64 `json:"messageIds"`
}

// LinkRefreshPayload names one message whose attachment URLs need refreshing.
type LinkRefreshPayload struct {
	ChannelID uint64 `json:"channelId"`
	MessageID uint64 `json:"messageId"`
}

// TaskStatus is the current state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusRunning    TaskStatus = "running"
	StatusCompleted  TaskStatus = "completed"
	StatusDeadLetter TaskStatus = "dead_letter"
	StatusCancelled  TaskStatus = "cancelled"
)

// Task is one unit of background work.
type Task struct {
	ID     string     `json:"id"`
	Type   TaskType   `json:"type"`
	Status TaskStatus `json:"status"`

	// Payload is JSON-encoded task-specific data.
	Payload json.RawMessage `json:"payload"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	RetryAfter time.Time `json:"retry_after,omitempty"`

	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	WorkerID  string    `json:"worker_id,omitempty"`
}

// QueueStats provides queue counters.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	DeadLetter int64 `json:"dead_letter"`

	ByType map[TaskType]int64 `json:"by_type"`
}

// MarshalPayload marshals a payload struct to JSON.
func MarshalPayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// UnmarshalPayload unmarshals a JSON payload.
func UnmarshalPayload[T any](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
