package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Storage.Get for missing keys.
var ErrNotFound = errors.New("cache: key not found")

// Storage is a namespaced key-value store. Keys passed in and returned are
// relative to the namespace the backend was created with.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStorage keeps records in a map. Several MemoryStorage values may
// share one backing map through Namespace.
type MemoryStorage struct {
	prefix string
	store  *memoryStore
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty store scoped to namespace.
func NewMemoryStorage(namespace string) *MemoryStorage {
	return &MemoryStorage{
		prefix: namespacePrefix(namespace),
		store:  &memoryStore{data: make(map[string][]byte)},
	}
}

// Namespace returns a view of the same backing map scoped to namespace.
func (m *MemoryStorage) Namespace(namespace string) *MemoryStorage {
	return &MemoryStorage{prefix: namespacePrefix(namespace), store: m.store}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	v, ok := m.store.data[m.prefix+key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.mu.Lock()
	m.store.data[m.prefix+key] = append([]byte(nil), value...)
	m.store.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.mu.Lock()
	delete(m.store.data, m.prefix+key)
	m.store.mu.Unlock()
	return nil
}

// Keys returns the namespace's keys in lexical order.
func (m *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var keys []string
	for k := range m.store.data {
		if rest, ok := strings.CutPrefix(k, m.prefix); ok {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func namespacePrefix(ns string) string {
	if ns == "" {
		return ""
	}
	return ns + ":"
}
