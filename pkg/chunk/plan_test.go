// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		length    int64
		size      int64
		wantSizes []int64
	}{
		{name: "empty", length: 0, size: 10, wantSizes: nil},
		{name: "smaller than chunk", length: 7, size: 10, wantSizes: []int64{7}},
		{name: "exactly one chunk", length: 10, size: 10, wantSizes: []int64{10}},
		{name: "one byte over", length: 11, size: 10, wantSizes: []int64{10, 1}},
		{name: "multiple full chunks", length: 30, size: 10, wantSizes: []int64{10, 10, 10}},
		{name: "short tail", length: 25, size: 10, wantSizes: []int64{10, 10, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spans := PlanSize(tt.length, tt.size)
			require.Len(t, spans, len(tt.wantSizes))

			var offset, total int64
			for i, s := range spans {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, offset, s.Offset, "spans must be contiguous")
				assert.Equal(t, tt.wantSizes[i], s.Size)
				assert.LessOrEqual(t, s.Size, tt.size)
				offset += s.Size
				total += s.Size
			}
			assert.Equal(t, tt.length, total, "spans must sum to the input length")
		})
	}
}

func TestPlanDefaultSize(t *testing.T) {
	t.Parallel()

	spans := Plan(DefaultSize*2 + 5)
	require.Len(t, spans, 3)
	assert.Equal(t, DefaultSize, spans[0].Size)
	assert.Equal(t, DefaultSize, spans[1].Size)
	assert.Equal(t, int64(5), spans[2].Size)
	assert.Equal(t, DefaultSize*2+4, spans[2].End())
}

func TestSpanEnd(t *testing.T) {
	t.Parallel()

	s := Span{Index: 1, Offset: 100, Size: 50}
	assert.Equal(t, int64(149), s.End())
}
