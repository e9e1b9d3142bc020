package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory implements Store in process memory. Contents do not survive a
// restart, which makes it suitable for tests and for deployments that
// accept a cold cache after every start.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memoryBucket)}
}

// Bucket opens the named bucket, creating it if absent.
func (m *Memory) Bucket(name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("cache: bucket name is required")
	}

	m.mu.RLock()
	bucket, ok := m.buckets[name]
	m.mu.RUnlock()
	if ok {
		return bucket, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok = m.buckets[name]; !ok {
		bucket = &memoryBucket{entries: make(map[string]*Entry)}
		m.buckets[name] = bucket
	}
	return bucket, nil
}

// BucketNames lists all existing bucket names in stable order.
func (m *Memory) BucketNames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteBucket removes the named bucket. A handle obtained earlier
// keeps working against the orphaned contents until it is dropped.
func (m *Memory) DeleteBucket(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, name)
	return nil
}

// Close is a no-op for in-memory, but required by the interface.
func (m *Memory) Close() error {
	return nil
}

type memoryBucket struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (b *memoryBucket) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

func (b *memoryBucket) Put(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("cache: entry is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry.Clone()
	return nil
}
