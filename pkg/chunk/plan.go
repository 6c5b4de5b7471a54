// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk partitions object payloads into bounded slices and provides
// bounded read views over local files for streaming uploads.
package chunk

// DefaultSize is the fixed chunk size. It matches the attachment size cap of
// the external platform.
const DefaultSize int64 = 10 << 20 // 10 MiB

// Span is one planned slice of an object's payload.
type Span struct {
	Index  int
	Offset int64
	Size   int64
}

// End returns the inclusive last byte of the span.
func (s Span) End() int64 {
	return s.Offset + s.Size - 1
}

// Plan partitions length bytes into DefaultSize spans.
func Plan(length int64) []Span {
	return PlanSize(length, DefaultSize)
}

// PlanSize partitions length bytes into spans of at most size bytes. Spans
// are contiguous, non-overlapping and cover exactly [0, length); the last
// span may be short. A zero length yields no spans.
func PlanSize(length, size int64) []Span {
	if length <= 0 || size <= 0 {
		return nil
	}
	n := (length + size - 1) / size
	spans := make([]Span, 0, n)
	for offset := int64(0); offset < length; offset += size {
		remaining := length - offset
		if remaining > size {
			remaining = size
		}
		spans = append(spans, Span{
			Index:  len(spans),
			Offset: offset,
			Size:   remaining,
		})
	}
	return spans
}
