package kvstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// recorder collects Change events delivered to a watcher.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, c)
}

func (r *recorder) snapshot() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Change(nil), r.changes...)
}

func (r *recorder) has(key string, deleted bool) bool {
	for _, c := range r.snapshot() {
		if c.Key == key && c.Deleted == deleted {
			return true
		}
	}

	return false
}

func startStore(t *testing.T, s Store) Store {
	t.Helper()

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

// storeFactories build two Store instances sharing one backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) (Store, Store) {
	t.Helper()

	return map[string]func(t *testing.T) (Store, Store){
		"memory": func(t *testing.T) (Store, Store) {
			b := NewMemoryBackend()

			return startStore(t, b.NewStore(testLogger())), startStore(t, b.NewStore(testLogger()))
		},
		"file": func(t *testing.T) (Store, Store) {
			dir := t.TempDir()

			return startStore(t, NewFileStore(testLogger(), dir)),
				startStore(t, NewFileStore(testLogger(), dir))
		},
		"sqlite": func(t *testing.T) (Store, Store) {
			cfg := &config.StorageConfig{
				Driver:       "sqlite",
				SQLite:       config.SQLiteStorageConfig{Path: filepath.Join(t.TempDir(), "kv.db")},
				PollInterval: 20 * time.Millisecond,
			}

			return startStore(t, NewSQLStore(testLogger(), cfg)),
				startStore(t, NewSQLStore(testLogger(), cfg))
		},
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "iconbench.latest.css", []byte(`{"a":1}`)))

			got, err := s.Get(ctx, "iconbench.latest.css")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, s.Set(ctx, "iconbench.latest.css", []byte(`{"a":2}`)))

			got, err = s.Get(ctx, "iconbench.latest.css")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			require.NoError(t, s.Delete(ctx, "iconbench.latest.css"))

			_, err = s.Get(ctx, "iconbench.latest.css")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestStore_SharedBackendVisibility(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			a, b := factory(t)
			ctx := context.Background()

			require.NoError(t, a.Set(ctx, "k", []byte(`"v"`)))

			got, err := b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `"v"`, string(got))
		})
	}
}

func TestStore_WatchSeesOtherInstancesOnly(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			a, b := factory(t)
			ctx := context.Background()

			var fromA, fromB recorder

			a.Watch(fromA.record)
			b.Watch(fromB.record)

			require.NoError(t, a.Set(ctx, "iconbench.completedRuns", []byte(`[1]`)))

			assert.Eventually(t, func() bool {
				return fromB.has("iconbench.completedRuns", false)
			}, 2*time.Second, 10*time.Millisecond)

			for _, c := range fromB.snapshot() {
				if c.Key == "iconbench.completedRuns" && !c.Deleted {
					assert.Equal(t, `[1]`, string(c.Value))
				}
			}

			require.NoError(t, b.Delete(ctx, "iconbench.completedRuns"))

			assert.Eventually(t, func() bool {
				return fromA.has("iconbench.completedRuns", true)
			}, 2*time.Second, 10*time.Millisecond)

			assert.False(t, fromA.has("iconbench.completedRuns", false), "a must not see its own write")
			assert.False(t, fromB.has("iconbench.completedRuns", true), "b must not see its own delete")
		})
	}
}

func TestStore_Unwatch(t *testing.T) {
	b := NewMemoryBackend()
	a := startStore(t, b.NewStore(testLogger()))
	other := startStore(t, b.NewStore(testLogger()))

	var rec recorder

	unwatch := other.Watch(rec.record)
	unwatch()
	unwatch()

	require.NoError(t, a.Set(context.Background(), "k", []byte("1")))
	assert.Empty(t, rec.snapshot())
}

func TestMemoryStore_StoppedViewIsDetached(t *testing.T) {
	b := NewMemoryBackend()
	a := startStore(t, b.NewStore(testLogger()))
	other := b.NewStore(testLogger())
	require.NoError(t, other.Start(context.Background()))

	var rec recorder

	other.Watch(rec.record)
	require.NoError(t, other.Stop())

	require.NoError(t, a.Set(context.Background(), "k", []byte("1")))
	assert.Empty(t, rec.snapshot())
}

func TestSQLStore_InMemory(t *testing.T) {
	cfg := &config.StorageConfig{
		Driver:       "sqlite",
		SQLite:       config.SQLiteStorageConfig{Path: ":memory:"},
		PollInterval: time.Hour,
	}

	s := startStore(t, NewSQLStore(testLogger(), cfg))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("1")))
	require.NoError(t, s.Set(ctx, "k", []byte("2")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}

func TestNew_Drivers(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Driver: "memory"}},
		{name: "file", cfg: config.StorageConfig{Driver: "file", File: config.FileStorageConfig{Dir: t.TempDir()}}},
		{name: "sqlite", cfg: config.StorageConfig{Driver: "sqlite"}},
		{name: "unknown", cfg: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(testLogger(), &tt.cfg)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}
