package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	blobs     map[string]memoryBlob
	now       func() time.Time
	putErr    error
	deleteErr error
}

type memoryBlob struct {
	data     []byte
	name     string
	modified time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob), now: time.Now}
}

// SetClock overrides the modification time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailPuts makes every Put return err until reset with nil.
func (s *MemoryStore) FailPuts(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

// FailDeletes makes every Delete return err until reset with nil.
func (s *MemoryStore) FailDeletes(err error) {
	s.mu.Lock()
	s.deleteErr = err
	s.mu.Unlock()
}

// Put stores a blob.
func (s *MemoryStore) Put(ctx context.Context, blobID, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	putErr := s.putErr
	s.mu.RUnlock()
	if putErr != nil {
		return putErr
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, size+1))
	if err != nil {
		return fmt.Errorf("read blob %s: %w", blobID, err)
	}
	if n != size {
		return fmt.Errorf("blob %s: expected %d bytes, got %d", blobID, size, n)
	}

	s.mu.Lock()
	s.blobs[blobID] = memoryBlob{data: buf.Bytes(), name: name, modified: s.now()}
	s.mu.Unlock()
	return nil
}

// Delete removes a blob.
func (s *MemoryStore) Delete(ctx context.Context, blobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.blobs, blobID)
	return nil
}

// Walk visits blobs in id order.
func (s *MemoryStore) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	s.mu.RLock()
	infos := make([]BlobInfo, 0, len(s.blobs))
	for id, b := range s.blobs {
		infos = append(infos, BlobInfo{ID: id, Size: int64(len(b.data)), LastModified: b.modified})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Get returns a copy of a stored blob.
func (s *MemoryStore) Get(blobID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[blobID]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
