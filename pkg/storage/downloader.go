// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atticfs/atticfs/pkg/logger"
	"github.com/atticfs/atticfs/pkg/metrics"
	"github.com/atticfs/atticfs/pkg/types"
)

const (
	// maxFetchRetries bounds tail latency on a degraded platform: 3 extra
	// attempts after the first.
	maxFetchRetries = 3
	// fetchTimeout is the per-request client timeout, independent of the
	// retry loop.
	fetchTimeout = 5 * time.Minute
)

// fetchBackoff is the delay before retry attempt n (1-based), plus jitter.
var fetchBackoff = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}

// Downloader reconstructs byte ranges from chunk attachments via ranged
// HTTP requests.
type Downloader struct {
	client *http.Client

	// sleep is replaced in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDownloader creates a Downloader with the default HTTP client.
func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: fetchTimeout},
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch writes the bytes of [start, end] (inclusive) to w by fetching every
// overlapping chunk's intersecting sub-range. Chunks are fetched
// concurrently but written to w in strict chunk order.
func (d *Downloader) Fetch(ctx context.Context, chunks []*types.ObjectChunk, start, end int64, w io.Writer) error {
	if start > end {
		return fmt.Errorf("invalid range %d-%d", start, end)
	}

	var selected []*types.ObjectChunk
	for _, c := range chunks {
		if c.Overlaps(start, end) {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("no chunks cover range %d-%d", start, end)
	}

	// Per-chunk buffers; a retry replaces the whole buffer so a failed
	// mid-copy never leaves duplicated bytes.
	buffers := make([][]byte, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range selected {
		g.Go(func() error {
			// Intersect the request with the chunk, in chunk-local bytes.
			localStart := max64(start, c.StartByte) - c.StartByte
			localEnd := min64(end, c.EndByte) - c.StartByte

			data, err := d.fetchChunkRange(gctx, c, localStart, localEnd)
			if err != nil {
				return err
			}
			buffers[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, buf := range buffers {
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// fetchChunkRange fetches [localStart, localEnd] of one chunk, retrying
// transient failures with backoff.
func (d *Downloader) fetchChunkRange(ctx context.Context, c *types.ObjectChunk, localStart, localEnd int64) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		if attempt > 0 {
			delay := fetchBackoff[attempt-1] + time.Duration(50+rand.Intn(200))*time.Millisecond
			if err := d.sleep(ctx, delay); err != nil {
				return nil, err
			}
			logger.Debug().
				Uint64("attachment_id", c.AttachmentID).
				Int("attempt", attempt).
				Msg("storage: retrying chunk fetch")
		}

		data, err := d.fetchOnce(ctx, c.BlobURL, c.Size, localStart, localEnd)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, fmt.Errorf("chunk fetch failed: %w", err)
		}
	}
	return nil, fmt.Errorf("chunk fetch failed after %d retries: %w", maxFetchRetries, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string, size, localStart, localEnd int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", localStart, localEnd))

	metrics.ChannelRate.Record()
	metrics.ChannelRequests.WithLabelValues("fetch").Inc()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode}
	}

	// A 200 body starts at chunk offset 0 regardless of the Range header.
	// Only a full-chunk request may accept it.
	if resp.StatusCode == http.StatusOK && (localStart != 0 || localEnd != size-1) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("range %d-%d answered with the full body", localStart, localEnd)
	}

	want := localEnd - localStart + 1
	data, err := io.ReadAll(io.LimitReader(resp.Body, want))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != want {
		return nil, fmt.Errorf("short chunk body: got %d bytes, want %d", len(data), want)
	}
	return data, nil
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// isTransient classifies failures worth retrying: network errors, timeouts,
// 5xx responses and 429. Other 4xx responses fail immediately.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	// URL errors from the HTTP client wrap transport failures.
	var ue *url.Error
	return errors.As(err, &ue)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
