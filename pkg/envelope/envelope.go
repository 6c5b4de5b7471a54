// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope implements at-rest envelope encryption of object
// payloads. Each object version gets one random 256-bit data key; the
// payload is encrypted chunk by chunk with AES-256-GCM so that reads can
// seek to any chunk without decrypting the whole object. The data key is
// wrapped by a keywrap.Wrapper before it leaves this package.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/atticfs/atticfs/pkg/chunk"
	"github.com/atticfs/atticfs/pkg/keywrap"
)

// Algorithm is the only supported at-rest algorithm name.
const Algorithm = "AES256"

const (
	dataKeySize = 32
	nonceSize   = 12
	tagSize     = 16
)

// ChunkMeta records how one plaintext chunk maps into the ciphertext file.
// Nonce and Tag are base64; the tag is stored here rather than in the
// ciphertext stream, so ciphertext offsets mirror plaintext offsets.
type ChunkMeta struct {
	Index            int    `json:"index"`
	PlaintextOffset  int64  `json:"plaintextOffset"`
	PlaintextLength  int64  `json:"plaintextLength"`
	CiphertextOffset int64  `json:"ciphertextOffset"`
	CiphertextLength int64  `json:"ciphertextLength"`
	Nonce            string `json:"nonce"`
	Tag              string `json:"tag"`
}

// Result is the output of one Encrypt call.
type Result struct {
	// Path is the ciphertext temp file. The caller owns it.
	Path string
	// WrappedKey is the protected data key; the raw key is never returned.
	WrappedKey []byte
	// Metadata is the JSON-encoded []ChunkMeta table.
	Metadata string
	// MD5Hex is the hex MD5 of the plaintext.
	MD5Hex string
	// Length is the ciphertext file length.
	Length int64
}

// Encryptor encrypts and decrypts object payloads.
type Encryptor struct {
	wrapper   keywrap.Wrapper
	chunkSize int64
}

// New returns an Encryptor using the storage chunk size.
func New(wrapper keywrap.Wrapper) *Encryptor {
	return NewWithChunkSize(wrapper, chunk.DefaultSize)
}

// NewWithChunkSize returns an Encryptor with an explicit chunk size.
func NewWithChunkSize(wrapper keywrap.Wrapper, size int64) *Encryptor {
	return &Encryptor{wrapper: wrapper, chunkSize: size}
}

// Encrypt encrypts the file at path into a new temp file beside it. The
// plaintext MD5 is accumulated while streaming so no second pass is needed.
// On any failure the partially written ciphertext file is removed.
func (e *Encryptor) Encrypt(ctx context.Context, path string) (_ *Result, err error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plaintext: %w", err)
	}
	defer src.Close()

	dstPath := filepath.Join(filepath.Dir(path), uuid.NewString()+".enc")
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create ciphertext file: %w", err)
	}
	defer func() {
		dst.Close()
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	dataKey := make([]byte, dataKeySize)
	if _, err = io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	aead, err := newAEAD(dataKey)
	if err != nil {
		return nil, err
	}

	var (
		metas  []ChunkMeta
		offset int64
		md5sum = md5.New()
		buf    = make([]byte, e.chunkSize)
	)
	for {
		n, readErr := io.ReadFull(src, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("failed to read plaintext: %w", readErr)
		}

		plain := buf[:n]
		md5sum.Write(plain)

		nonce := make([]byte, nonceSize)
		if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}

		sealed := aead.Seal(nil, nonce, plain, nil)
		body, tag := sealed[:n], sealed[n:]
		if _, err = dst.Write(body); err != nil {
			return nil, fmt.Errorf("failed to write ciphertext: %w", err)
		}

		metas = append(metas, ChunkMeta{
			Index:            len(metas),
			PlaintextOffset:  offset,
			PlaintextLength:  int64(n),
			CiphertextOffset: offset,
			CiphertextLength: int64(n),
			Nonce:            base64.StdEncoding.EncodeToString(nonce),
			Tag:              base64.StdEncoding.EncodeToString(tag),
		})
		offset += int64(n)

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	wrapped, err := e.wrapper.Wrap(ctx, dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	metaJSON, err := json.Marshal(metas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk metadata: %w", err)
	}
	if err = dst.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ciphertext file: %w", err)
	}

	return &Result{
		Path:       dstPath,
		WrappedKey: wrapped,
		Metadata:   string(metaJSON),
		MD5Hex:     hex.EncodeToString(md5sum.Sum(nil)),
		Length:     offset,
	}, nil
}

// Decrypt returns a reader producing the plaintext of an encrypted payload.
// Chunks are processed in index order but located by explicit seeks, so the
// source only needs to be an io.ReadSeeker. An authentication failure on any
// chunk is fatal; no partial plaintext is ever produced past it.
func (e *Encryptor) Decrypt(ctx context.Context, src io.ReadSeeker, wrappedKey []byte, metadata string) (io.Reader, error) {
	dataKey, err := e.wrapper.Unwrap(ctx, wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	aead, err := newAEAD(dataKey)
	if err != nil {
		return nil, err
	}

	var metas []ChunkMeta
	if err := json.Unmarshal([]byte(metadata), &metas); err != nil {
		return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
	}

	return &decryptReader{src: src, aead: aead, metas: metas}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// decryptReader decrypts one chunk at a time, on demand.
type decryptReader struct {
	src   io.ReadSeeker
	aead  cipher.AEAD
	metas []ChunkMeta

	next int
	buf  []byte
}

func (r *decryptReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= len(r.metas) {
			return 0, io.EOF
		}
		if err := r.decryptNext(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *decryptReader) decryptNext() error {
	meta := r.metas[r.next]

	if _, err := r.src.Seek(meta.CiphertextOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk %d: %w", meta.Index, err)
	}
	body := make([]byte, meta.CiphertextLength, meta.CiphertextLength+tagSize)
	if _, err := io.ReadFull(r.src, body); err != nil {
		return fmt.Errorf("failed to read chunk %d: %w", meta.Index, err)
	}

	nonce, err := base64.StdEncoding.DecodeString(meta.Nonce)
	if err != nil {
		return fmt.Errorf("chunk %d: invalid nonce: %w", meta.Index, err)
	}
	tag, err := base64.StdEncoding.DecodeString(meta.Tag)
	if err != nil {
		return fmt.Errorf("chunk %d: invalid tag: %w", meta.Index, err)
	}

	plain, err := r.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return fmt.Errorf("chunk %d: authentication failed: %w", meta.Index, err)
	}

	r.buf = plain
	r.next++
	return nil
}
