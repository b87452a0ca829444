package kvstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryBackend is a process-local backend. Each Store created from it
// behaves like a separate tab over the same storage.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	views map[*memoryStore]struct{}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string][]byte),
		views: make(map[*memoryStore]struct{}),
	}
}

// NewStore attaches a new Store instance to the backend.
func (b *MemoryBackend) NewStore(log logrus.FieldLogger) Store {
	s := &memoryStore{
		log:     log.WithField("component", "kvstore-memory"),
		backend: b,
	}

	b.mu.Lock()
	b.views[s] = struct{}{}
	b.mu.Unlock()

	return s
}

// others returns every attached view except self.
func (b *MemoryBackend) others(self *memoryStore) []*memoryStore {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*memoryStore, 0, len(b.views))

	for v := range b.views {
		if v != self {
			out = append(out, v)
		}
	}

	return out
}

// Compile-time interface check.
var _ Store = (*memoryStore)(nil)

type memoryStore struct {
	log      logrus.FieldLogger
	backend  *MemoryBackend
	watchers watchers
}

func (s *memoryStore) Start(_ context.Context) error {
	return nil
}

func (s *memoryStore) Stop() error {
	s.backend.mu.Lock()
	delete(s.backend.views, s)
	s.backend.mu.Unlock()

	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	v, ok := s.backend.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	return bytes.Clone(v), nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	s.backend.mu.Lock()
	s.backend.data[key] = bytes.Clone(value)
	s.backend.mu.Unlock()

	s.broadcast(Change{Key: key, Value: bytes.Clone(value)})

	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.backend.mu.Lock()
	_, existed := s.backend.data[key]
	delete(s.backend.data, key)
	s.backend.mu.Unlock()

	if existed {
		s.broadcast(Change{Key: key, Deleted: true})
	}

	return nil
}

func (s *memoryStore) Watch(fn func(Change)) func() {
	return s.watchers.add(fn)
}

func (s *memoryStore) broadcast(c Change) {
	for _, v := range s.backend.others(s) {
		v.watchers.emit(c)
	}
}
