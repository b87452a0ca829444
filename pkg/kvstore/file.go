package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethpandaops/iconbench/pkg/fsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const fileSuffix = ".json"

// Compile-time interface check.
var _ Store = (*fileStore)(nil)

// fileStore keeps one file per key in a directory. Writes go through a
// temp file and rename so readers never see partial values. Changes made
// by other processes are picked up with fsnotify.
type fileStore struct {
	log      logrus.FieldLogger
	dir      string
	watchers watchers

	mu    sync.Mutex
	known map[string][]byte

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileStore creates a Store rooted at dir.
func NewFileStore(log logrus.FieldLogger, dir string) Store {
	return &fileStore{
		log:   log.WithField("component", "kvstore-file"),
		dir:   dir,
		known: make(map[string][]byte),
		done:  make(chan struct{}),
	}
}

// Start creates the directory, snapshots its contents and starts watching
// it for changes.
func (s *fileStore) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading storage dir: %w", err)
	}

	s.mu.Lock()

	for _, e := range entries {
		key, ok := keyFromFile(e.Name())
		if !ok || e.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}

		s.known[key] = data
	}

	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()

		return fmt.Errorf("watching storage dir: %w", err)
	}

	s.watcher = watcher

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.watch(ctx)
	}()

	s.log.WithField("dir", s.dir).Debug("File storage started")

	return nil
}

// Stop stops the watcher goroutine.
func (s *fileStore) Stop() error {
	if s.watcher == nil {
		return nil
	}

	close(s.done)

	err := s.watcher.Close()

	s.wg.Wait()
	s.watcher = nil

	return err
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	return data, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte) error {
	// Record the value before it becomes visible so our own event is
	// recognised and dropped.
	s.mu.Lock()
	prev, hadPrev := s.known[key]
	s.known[key] = bytes.Clone(value)
	s.mu.Unlock()

	if err := fsutil.WriteFileAtomic(s.path(key), value, 0o644, nil); err != nil {
		s.mu.Lock()
		if hadPrev {
			s.known[key] = prev
		} else {
			delete(s.known, key)
		}
		s.mu.Unlock()

		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.known, key)
	s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}

func (s *fileStore) Watch(fn func(Change)) func() {
	return s.watchers.add(fn)
}

func (s *fileStore) watch(ctx context.Context) {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			s.log.WithError(err).Warn("File storage watcher error")
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent compares the file behind event with the last value this
// instance wrote or saw and emits a Change when they differ.
func (s *fileStore) handleEvent(event fsnotify.Event) {
	key, ok := keyFromFile(filepath.Base(event.Name))
	if !ok {
		return
	}

	data, err := os.ReadFile(event.Name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).WithField("key", key).Debug("Failed to read changed key")

		return
	}

	missing := err != nil

	s.mu.Lock()

	prev, had := s.known[key]

	switch {
	case missing && !had:
		s.mu.Unlock()

		return
	case missing:
		delete(s.known, key)
	case had && bytes.Equal(prev, data):
		s.mu.Unlock()

		return
	default:
		s.known[key] = data
	}

	s.mu.Unlock()

	s.watchers.emit(Change{Key: key, Value: data, Deleted: missing})
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileSuffix)
}

func keyFromFile(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}

	key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}

	return key, true
}
