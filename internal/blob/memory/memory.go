// Package memory is an in-process BlobStore for tests and development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"moneybook/internal/blob"
	"moneybook/internal/ports"
)

type object struct {
	data        []byte
	contentType string
}

// Store keeps blobs in a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

var _ ports.BlobStore = (*Store)(nil)

func New(baseURL string) *Store {
	return &Store{objects: make(map[string]object), baseURL: baseURL}
}

func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if key == "" {
		return blob.ErrInvalidKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", key, err)
	}
	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) URL(key string) string {
	return s.baseURL + "/storage/images/" + key
}

// Has reports whether key is stored.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
