// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atticfs/atticfs/pkg/store/memory"
)

func TestCheckAggregatesDependencies(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := memory.New()

	c := NewChecker(
		st.Ping,
		func(context.Context) error { return nil },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)

	status := c.Check(context.Background())
	assert.True(t, status.Database)
	assert.True(t, status.Channel)
	assert.True(t, status.Cache)
	assert.True(t, status.Healthy())

	mr.Close()
	status = c.Check(context.Background())
	assert.True(t, status.Database)
	assert.False(t, status.Cache)
	assert.False(t, status.Healthy())
}

func TestNilCheckReportsHealthy(t *testing.T) {
	t.Parallel()

	c := NewChecker(nil, nil, nil)
	assert.True(t, c.Check(context.Background()).Healthy())
}

func TestCheckTimesOutHungDependency(t *testing.T) {
	t.Parallel()

	c := NewChecker(nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	start := time.Now()
	status := c.Check(context.Background())
	assert.False(t, status.Channel)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestHandlerStatusCodes(t *testing.T) {
	t.Parallel()

	healthy := NewChecker(nil, nil, nil)
	rec := httptest.NewRecorder()
	healthy.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy())

	broken := NewChecker(func(context.Context) error { return fmt.Errorf("db down") }, nil, nil)
	rec = httptest.NewRecorder()
	broken.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
