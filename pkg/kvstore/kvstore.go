// Package kvstore provides the string-keyed JSON storage that completed runs
// are persisted to. Several Store instances may share one backend; each
// instance is told about writes made by the others, never about its own.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Change describes a write made by another instance sharing the backend.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store is a key-value store with change notification.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Watch registers fn for changes made by other instances. The
	// returned function unregisters it.
	Watch(fn func(Change)) func()
}

// New creates the Store selected by cfg.Driver.
func New(log logrus.FieldLogger, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryBackend().NewStore(log), nil
	case "file":
		return NewFileStore(log, cfg.File.Dir), nil
	case "sqlite", "postgres":
		return NewSQLStore(log, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// watchers is the callback registry shared by the Store implementations.
type watchers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (w *watchers) add(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[int]func(Change), 1)
	}

	id := w.next
	w.next++
	w.fns[id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()

			delete(w.fns, id)
		})
	}
}

// emit calls every registered watcher in registration order. Watchers run
// without the registry lock held.
func (w *watchers) emit(c Change) {
	w.mu.Lock()

	ids := make([]int, 0, len(w.fns))
	for id := range w.fns {
		ids = append(ids, id)
	}

	fns := make([]func(Change), 0, len(ids))

	slices.Sort(ids)

	for _, id := range ids {
		fns = append(fns, w.fns[id])
	}

	w.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
