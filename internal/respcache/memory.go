package respcache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps buckets in process memory. It is safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]*memoryBucket)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		b = &memoryBucket{items: make(map[string]*Response)}
		s.buckets[name] = b
	}
	return b, nil
}

func (s *MemoryStorage) Buckets(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[name]
	delete(s.buckets, name)
	return ok, nil
}

type memoryBucket struct {
	mu    sync.RWMutex
	items map[string]*Response
}

func (b *memoryBucket) Match(_ context.Context, key string) (*Response, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (b *memoryBucket) Put(_ context.Context, key string, resp *Response) error {
	cp := *resp
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = &cp
	return nil
}

func (b *memoryBucket) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[key]
	delete(b.items, key)
	return ok, nil
}

func (b *memoryBucket) Keys(context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.items))
	for k := range b.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
