// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/types"
)

// chunkServer serves per-chunk payloads with Range support and optional
// injected failures.
type chunkServer struct {
	mu          sync.Mutex
	payloads    map[string][]byte
	failures    map[string]int // remaining failures per chunk name
	failWith    int
	ignoreRange bool // answer 200 with the full payload
	server      *httptest.Server
}

func newChunkServer(t *testing.T) *chunkServer {
	t.Helper()
	cs := &chunkServer{
		payloads: make(map[string][]byte),
		failures: make(map[string]int),
		failWith: http.StatusServiceUnavailable,
	}
	cs.server = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *chunkServer) handle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	cs.mu.Lock()
	data, ok := cs.payloads[name]
	if cs.failures[name] > 0 {
		cs.failures[name]--
		status := cs.failWith
		cs.mu.Unlock()
		w.WriteHeader(status)
		return
	}
	ignoreRange := cs.ignoreRange
	cs.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if ignoreRange {
		w.Write(data)
		return
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

// addChunks splits data into size-byte chunks and returns their records.
func (cs *chunkServer) addChunks(data []byte, size int64) []*types.ObjectChunk {
	var chunks []*types.ObjectChunk
	for off := int64(0); off < int64(len(data)); off += size {
		end := off + size
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		name := "c" + strconv.Itoa(len(chunks))
		cs.mu.Lock()
		cs.payloads[name] = data[off:end]
		cs.mu.Unlock()
		chunks = append(chunks, &types.ObjectChunk{
			BlobURL:   cs.server.URL + "/" + name,
			StartByte: off,
			EndByte:   end - 1,
			Size:      end - off,
		})
	}
	return chunks
}

func newTestDownloader() *Downloader {
	d := NewDownloader()
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func TestFetchReassemblesFullRange(t *testing.T) {
	t.Parallel()

	data := make([]byte, 300)
	_, err := rand.Read(data)
	require.NoError(t, err)

	cs := newChunkServer(t)
	chunks := cs.addChunks(data, 100)

	var out bytes.Buffer
	require.NoError(t, newTestDownloader().Fetch(context.Background(), chunks, 0, 299, &out))
	assert.Equal(t, data, out.Bytes())
}

func TestFetchSubRangeAcrossChunkBoundary(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdefghij") // two chunks of 10
	cs := newChunkServer(t)
	chunks := cs.addChunks(data, 10)

	var out bytes.Buffer
	require.NoError(t, newTestDownloader().Fetch(context.Background(), chunks, 7, 13, &out))
	assert.Equal(t, "789abcd", out.String())
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	data := make([]byte, 300)
	_, err := rand.Read(data)
	require.NoError(t, err)

	cs := newChunkServer(t)
	chunks := cs.addChunks(data, 100)

	// Second chunk fails once with 503 before succeeding.
	cs.mu.Lock()
	cs.failures["c1"] = 1
	cs.mu.Unlock()

	var out bytes.Buffer
	require.NoError(t, newTestDownloader().Fetch(context.Background(), chunks, 0, 299, &out))
	assert.Equal(t, data, out.Bytes(), "retried chunk must not duplicate bytes")
}

func TestFetchRetries429(t *testing.T) {
	t.Parallel()

	data := []byte("hello world chunk data here")
	cs := newChunkServer(t)
	cs.failWith = http.StatusTooManyRequests
	chunks := cs.addChunks(data, 100)

	cs.mu.Lock()
	cs.failures["c0"] = 2
	cs.mu.Unlock()

	var out bytes.Buffer
	require.NoError(t, newTestDownloader().Fetch(context.Background(), chunks, 0, int64(len(data)-1), &out))
	assert.Equal(t, data, out.Bytes())
}

func TestFetchFailsFastOnClientError(t *testing.T) {
	t.Parallel()

	cs := newChunkServer(t)
	chunks := []*types.ObjectChunk{{
		BlobURL:   cs.server.URL + "/missing",
		StartByte: 0,
		EndByte:   9,
		Size:      10,
	}}

	start := time.Now()
	err := newTestDownloader().Fetch(context.Background(), chunks, 0, 9, &bytes.Buffer{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "404 must not be retried")
}

func TestFetchGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	data := []byte("payload")
	cs := newChunkServer(t)
	chunks := cs.addChunks(data, 100)

	cs.mu.Lock()
	cs.failures["c0"] = 10
	cs.mu.Unlock()

	err := newTestDownloader().Fetch(context.Background(), chunks, 0, 6, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("after %d retries", maxFetchRetries))
}

func TestFetchRejectsIgnoredRangeHeader(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdefghij")
	cs := newChunkServer(t)
	cs.ignoreRange = true
	chunks := cs.addChunks(data, 20)

	// A whole-chunk request may be answered with a plain 200.
	var out bytes.Buffer
	require.NoError(t, newTestDownloader().Fetch(context.Background(), chunks, 0, 19, &out))
	assert.Equal(t, data, out.Bytes())

	// A sub-range answered from offset 0 would hand back the wrong bytes.
	err := newTestDownloader().Fetch(context.Background(), chunks, 5, 12, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full body")
}

func TestFetchRejectsUncoveredRange(t *testing.T) {
	t.Parallel()

	chunks := []*types.ObjectChunk{{StartByte: 0, EndByte: 9, Size: 10}}
	err := newTestDownloader().Fetch(context.Background(), chunks, 50, 60, &bytes.Buffer{})
	assert.Error(t, err)
}
