// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"fmt"
	"io"
	"os"
)

// RangeStream is a read-only, seekable view over [offset, offset+size) of a
// local file. It lets one chunk's bytes feed an upload without loading the
// whole object into memory. Closing the stream closes the underlying file.
type RangeStream struct {
	f       *os.File
	section *io.SectionReader
}

// OpenRange opens path and returns a bounded view over size bytes starting
// at offset.
func OpenRange(path string, offset, size int64) (*RangeStream, error) {
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf("invalid range offset=%d size=%d", offset, size)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &RangeStream{
		f:       f,
		section: io.NewSectionReader(f, offset, size),
	}, nil
}

// Read implements io.Reader, never reading past the bound.
func (r *RangeStream) Read(p []byte) (int, error) {
	return r.section.Read(p)
}

// Seek implements io.Seeker relative to the start of the bounded view.
func (r *RangeStream) Seek(offset int64, whence int) (int64, error) {
	return r.section.Seek(offset, whence)
}

// Len returns the total size of the bounded view.
func (r *RangeStream) Len() int64 {
	return r.section.Size()
}

// Close closes the underlying file.
func (r *RangeStream) Close() error {
	return r.f.Close()
}
