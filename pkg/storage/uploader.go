// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage is the chunked storage engine: it splits object payloads
// into bounded chunks, uploads them as batched message attachments, tracks
// their ephemeral URLs, reassembles byte ranges on read, refreshes expiring
// links, and retires attachments when versions are deleted.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atticfs/atticfs/pkg/channel"
	"github.com/atticfs/atticfs/pkg/chunk"
	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/types"
)

// ChunkTTL is how long an attachment URL is trusted after upload or refresh.
// The platform rotates URLs roughly daily; the 5 minute margin under 24h
// keeps a refreshed link from ever outliving its source.
const ChunkTTL = 23*time.Hour + 55*time.Minute

// Uploader posts object payloads to a bucket's channel.
type Uploader struct {
	ch        channel.Channel
	chunkSize int64
}

// NewUploader creates an Uploader over the given channel client.
func NewUploader(ch channel.Channel) *Uploader {
	return NewUploaderWithChunkSize(ch, chunk.DefaultSize)
}

// NewUploaderWithChunkSize creates an Uploader with an explicit chunk size.
func NewUploaderWithChunkSize(ch channel.Channel, size int64) *Uploader {
	return &Uploader{ch: ch, chunkSize: size}
}

// Upload partitions the file at path into chunks, posts them in batches of
// at most channel.MaxFilesPerMessage attachments per message, and returns
// the chunk records to persist. length is the physical (post-encryption)
// payload length. A zero length yields no chunks and no platform calls.
//
// Returned attachments are matched back to chunks by the index encoded in
// each filename; the platform's documented submission-order guarantee is the
// fallback when a filename does not parse.
func (u *Uploader) Upload(ctx context.Context, path, key string, channelID uint64, length int64) ([]*types.ObjectChunk, error) {
	spans := chunk.PlanSize(length, u.chunkSize)
	if len(spans) == 0 {
		return nil, nil
	}

	var records []*types.ObjectChunk
	for start := 0; start < len(spans); start += channel.MaxFilesPerMessage {
		stop := start + channel.MaxFilesPerMessage
		if stop > len(spans) {
			stop = len(spans)
		}
		batch := spans[start:stop]

		batchRecords, err := u.sendBatch(ctx, path, key, channelID, batch)
		if err != nil {
			return nil, err
		}
		records = append(records, batchRecords...)
	}
	return records, nil
}

func (u *Uploader) sendBatch(ctx context.Context, path, key string, channelID uint64, batch []chunk.Span) (_ []*types.ObjectChunk, err error) {
	files := make([]channel.File, 0, len(batch))
	streams := make([]*chunk.RangeStream, 0, len(batch))
	defer func() {
		for _, rs := range streams {
			rs.Close()
		}
	}()

	for _, span := range batch {
		rs, err := chunk.OpenRange(path, span.Offset, span.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to open chunk %d: %w", span.Index, err)
		}
		streams = append(streams, rs)
		files = append(files, channel.File{
			Name:   chunkFilename(key, span.Index),
			Reader: rs,
			Size:   span.Size,
		})
	}

	metrics.ChannelRate.Record()
	metrics.ChannelRequests.WithLabelValues("send").Inc()
	msg, err := u.ch.SendFiles(ctx, channelID, files)
	if err != nil {
		return nil, fmt.Errorf("failed to send chunk batch: %w", err)
	}
	if len(msg.Attachments) != len(batch) {
		return nil, fmt.Errorf("platform returned %d attachments for %d chunks", len(msg.Attachments), len(batch))
	}

	expireAt := time.Now().Add(ChunkTTL)
	records := make([]*types.ObjectChunk, len(batch))
	for pos, att := range msg.Attachments {
		span, ok := spanForAttachment(batch, att.Filename, pos)
		if !ok {
			return nil, fmt.Errorf("attachment %q does not map to any chunk", att.Filename)
		}
		if records[span.Index-batch[0].Index] != nil {
			return nil, fmt.Errorf("attachment %q maps to an already claimed chunk", att.Filename)
		}
		records[span.Index-batch[0].Index] = &types.ObjectChunk{
			MessageID:    msg.ID,
			AttachmentID: att.ID,
			BlobURL:      att.URL,
			StartByte:    span.Offset,
			EndByte:      span.End(),
			Size:         span.Size,
			ExpireAt:     expireAt,
		}
	}
	return records, nil
}

// chunkFilename encodes the chunk index into the attachment name so the
// upload response can be matched without relying on ordering.
func chunkFilename(key string, index int) string {
	safe := strings.ReplaceAll(key, "/", "_")
	return fmt.Sprintf("%s.part%d", safe, index)
}

// spanForAttachment locates the span an attachment belongs to: by the
// filename-encoded index when it parses, else by position in the batch.
func spanForAttachment(batch []chunk.Span, filename string, pos int) (chunk.Span, bool) {
	if i := strings.LastIndex(filename, ".part"); i >= 0 {
		if idx, err := strconv.Atoi(filename[i+len(".part"):]); err == nil {
			for _, span := range batch {
				if span.Index == idx {
					return span, true
				}
			}
			logger.Warn().
				Str("filename", filename).
				Int("index", idx).
				Msg("storage: attachment index outside batch, falling back to position")
		}
	}
	if pos < len(batch) {
		return batch[pos], true
	}
	return chunk.Span{}, false
}
