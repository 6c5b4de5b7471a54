// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides a mutex-guarded in-memory Store for tests and
// single-process development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atticfs/atticfs/pkg/store"
	"github.com/atticfs/atticfs/pkg/types"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything in maps. Returned entities are copies; callers
// never share memory with the store.
type Store struct {
	mu sync.Mutex

	credentials map[string]*types.Credential // by access key
	users       map[string]*types.User       // by id

	buckets    map[string]*types.Bucket // by id
	bucketACLs map[string][]*types.BucketACL
	bucketTags map[string][]*types.BucketTag

	objects    map[string]*types.Object // by id
	chunks     map[string][]*types.ObjectChunk
	objectACLs map[string][]*types.ObjectACL
	objectTags map[string][]*types.ObjectTag

	uploads map[string]*types.MultipartUpload
	parts   map[string]map[int]*types.MultipartPart // uploadID → partNumber
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		credentials: make(map[string]*types.Credential),
		users:       make(map[string]*types.User),
		buckets:     make(map[string]*types.Bucket),
		bucketACLs:  make(map[string][]*types.BucketACL),
		bucketTags:  make(map[string][]*types.BucketTag),
		objects:     make(map[string]*types.Object),
		chunks:      make(map[string][]*types.ObjectChunk),
		objectACLs:  make(map[string][]*types.ObjectACL),
		objectTags:  make(map[string][]*types.ObjectTag),
		uploads:     make(map[string]*types.MultipartUpload),
		parts:       make(map[string]map[int]*types.MultipartPart),
	}
}

// AddUser seeds a user, for tests.
func (s *Store) AddUser(u *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// AddCredential seeds a credential, for tests.
func (s *Store) AddCredential(c *types.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.credentials[c.AccessKey] = &cp
}

func (s *Store) GetCredentialByAccessKey(_ context.Context, accessKey string) (*types.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[accessKey]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *Store) CreateBucket(_ context.Context, bucket *types.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		if b.Name == bucket.Name {
			return store.ErrBucketExists
		}
	}
	cp := *bucket
	s.buckets[bucket.ID] = &cp
	return nil
}

func (s *Store) GetBucketByName(_ context.Context, name string) (*types.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrBucketNotFound
}

func (s *Store) GetBucketByID(_ context.Context, id string) (*types.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return nil, store.ErrBucketNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) ListBucketsByOwner(_ context.Context, ownerID string) ([]*types.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Bucket
	for _, b := range s.buckets {
		if b.OwnerID == ownerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateBucket(_ context.Context, bucket *types.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket.ID]; !ok {
		return store.ErrBucketNotFound
	}
	cp := *bucket
	s.buckets[bucket.ID] = &cp
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, bucketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucketID]; !ok {
		return store.ErrBucketNotFound
	}
	delete(s.buckets, bucketID)
	delete(s.bucketACLs, bucketID)
	delete(s.bucketTags, bucketID)
	return nil
}

func (s *Store) CountLiveObjects(_ context.Context, bucketID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A key is live when its highest version is not a delete marker.
	latest := make(map[string]*types.Object)
	for _, o := range s.objects {
		if o.BucketID != bucketID {
			continue
		}
		cur, ok := latest[o.Key]
		if !ok || o.Version > cur.Version {
			latest[o.Key] = o
		}
	}
	var n int64
	for _, o := range latest {
		if !o.DeleteMarker {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListBucketACLs(_ context.Context, bucketID string) ([]*types.BucketACL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.BucketACL, 0, len(s.bucketACLs[bucketID]))
	for _, a := range s.bucketACLs[bucketID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PutBucketACL(_ context.Context, acl *types.BucketACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acl
	s.bucketACLs[acl.BucketID] = append(s.bucketACLs[acl.BucketID], &cp)
	return nil
}

func (s *Store) DeleteBucketACLs(_ context.Context, bucketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bucketACLs, bucketID)
	return nil
}

func (s *Store) ListBucketTags(_ context.Context, bucketID string) ([]*types.BucketTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.BucketTag, 0, len(s.bucketTags[bucketID]))
	for _, t := range s.bucketTags[bucketID] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PutBucketTag(_ context.Context, tag *types.BucketTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tag
	s.bucketTags[tag.BucketID] = append(s.bucketTags[tag.BucketID], &cp)
	return nil
}

func (s *Store) DeleteBucketTags(_ context.Context, bucketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bucketTags, bucketID)
	return nil
}

func (s *Store) CreateObject(_ context.Context, obj *types.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *obj
	cp.Chunks = nil
	s.objects[obj.ID] = &cp

	chunks := make([]*types.ObjectChunk, 0, len(obj.Chunks))
	for _, c := range obj.Chunks {
		ccp := *c
		ccp.ObjectID = obj.ID
		chunks = append(chunks, &ccp)
	}
	s.chunks[obj.ID] = chunks
	return nil
}

func (s *Store) GetObjectByID(_ context.Context, id string) (*types.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, store.ErrObjectNotFound
	}
	return s.copyObjectLocked(o), nil
}

func (s *Store) GetLatestObject(_ context.Context, bucketID, key string) (*types.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *types.Object
	for _, o := range s.objects {
		if o.BucketID != bucketID || o.Key != key {
			continue
		}
		if best == nil || o.Version > best.Version {
			best = o
		}
	}
	if best == nil {
		return nil, store.ErrObjectNotFound
	}
	return s.copyObjectLocked(best), nil
}

func (s *Store) GetObjectVersion(_ context.Context, bucketID, key string, version int64) (*types.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.BucketID == bucketID && o.Key == key && o.Version == version {
			return s.copyObjectLocked(o), nil
		}
	}
	return nil, store.ErrObjectNotFound
}

func (s *Store) ListObjectVersions(_ context.Context, bucketID, key string) ([]*types.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Object
	for _, o := range s.objects {
		if o.BucketID == bucketID && o.Key == key {
			out = append(out, s.copyObjectLocked(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *Store) ListLatestObjects(_ context.Context, bucketID, prefix string, limit int) ([]*types.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]*types.Object)
	for _, o := range s.objects {
		if o.BucketID != bucketID || !strings.HasPrefix(o.Key, prefix) {
			continue
		}
		cur, ok := latest[o.Key]
		if !ok || o.Version > cur.Version {
			latest[o.Key] = o
		}
	}

	var out []*types.Object
	for _, o := range latest {
		if o.DeleteMarker {
			continue
		}
		out = append(out, s.copyObjectLocked(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteObject(_ context.Context, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[objectID]; !ok {
		return store.ErrObjectNotFound
	}
	delete(s.objects, objectID)
	delete(s.chunks, objectID)
	return nil
}

func (s *Store) TouchObjectAccess(_ context.Context, objectID string, accessedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[objectID]
	if !ok {
		return store.ErrObjectNotFound
	}
	o.AccessedAt = accessedAt
	return nil
}

func (s *Store) ListObjectACLs(_ context.Context, objectID string) ([]*types.ObjectACL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.ObjectACL, 0, len(s.objectACLs[objectID]))
	for _, a := range s.objectACLs[objectID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PutObjectACL(_ context.Context, acl *types.ObjectACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acl
	s.objectACLs[acl.ObjectID] = append(s.objectACLs[acl.ObjectID], &cp)
	return nil
}

func (s *Store) DeleteObjectACLs(_ context.Context, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objectACLs, objectID)
	return nil
}

func (s *Store) ListObjectTags(_ context.Context, objectID string) ([]*types.ObjectTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.ObjectTag, 0, len(s.objectTags[objectID]))
	for _, t := range s.objectTags[objectID] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PutObjectTag(_ context.Context, tag *types.ObjectTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tag
	s.objectTags[tag.ObjectID] = append(s.objectTags[tag.ObjectID], &cp)
	return nil
}

func (s *Store) DeleteObjectTags(_ context.Context, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objectTags, objectID)
	return nil
}

func (s *Store) GetObjectChunks(_ context.Context, objectID string) ([]*types.ObjectChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyChunksLocked(objectID), nil
}

func (s *Store) ListChunksByMessage(_ context.Context, messageID uint64) ([]*types.ObjectChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ObjectChunk
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if c.MessageID == messageID {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartByte < out[j].StartByte })
	return out, nil
}

func (s *Store) ListLiveChunkMessages(_ context.Context) ([]types.ChunkMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uint64]struct{})
	var out []types.ChunkMessage
	for objectID, chunks := range s.chunks {
		obj, ok := s.objects[objectID]
		if !ok {
			continue
		}
		bkt, ok := s.buckets[obj.BucketID]
		if !ok {
			continue
		}
		for _, c := range chunks {
			if _, dup := seen[c.MessageID]; dup {
				continue
			}
			seen[c.MessageID] = struct{}{}
			out = append(out, types.ChunkMessage{ChannelID: bkt.ChannelID, MessageID: c.MessageID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}

func (s *Store) UpdateChunkLink(_ context.Context, objectID string, attachmentID uint64, blobURL string, expireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks[objectID] {
		if c.AttachmentID == attachmentID {
			c.BlobURL = blobURL
			c.ExpireAt = expireAt
			return nil
		}
	}
	return store.ErrObjectNotFound
}

func (s *Store) CreateMultipartUpload(_ context.Context, upload *types.MultipartUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *upload
	cp.Parts = nil
	s.uploads[upload.ID] = &cp
	s.parts[upload.ID] = make(map[int]*types.MultipartPart)
	return nil
}

func (s *Store) GetMultipartUpload(_ context.Context, uploadID string) (*types.MultipartUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return nil, store.ErrUploadNotFound
	}
	cp := *u
	for _, p := range s.parts[uploadID] {
		pcp := *p
		cp.Parts = append(cp.Parts, &pcp)
	}
	sort.Slice(cp.Parts, func(i, j int) bool { return cp.Parts[i].PartNumber < cp.Parts[j].PartNumber })
	return &cp, nil
}

func (s *Store) UpdateMultipartUpload(_ context.Context, upload *types.MultipartUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[upload.ID]; !ok {
		return store.ErrUploadNotFound
	}
	cp := *upload
	cp.Parts = nil
	s.uploads[upload.ID] = &cp
	return nil
}

func (s *Store) UpsertMultipartPart(_ context.Context, part *types.MultipartPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNumber, ok := s.parts[part.UploadID]
	if !ok {
		return store.ErrUploadNotFound
	}
	cp := *part
	byNumber[part.PartNumber] = &cp
	return nil
}

func (s *Store) DeleteMultipartUpload(_ context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return store.ErrUploadNotFound
	}
	delete(s.uploads, uploadID)
	delete(s.parts, uploadID)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) copyObjectLocked(o *types.Object) *types.Object {
	cp := *o
	cp.Chunks = s.copyChunksLocked(o.ID)
	return &cp
}

func (s *Store) copyChunksLocked(objectID string) []*types.ObjectChunk {
	chunks := s.chunks[objectID]
	out := make([]*types.ObjectChunk, 0, len(chunks))
	for _, c := range chunks {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartByte < out[j].StartByte })
	return out
}
