package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{
			name: "default prefix",
			file: "iconbench-export-2026-01-02.json",
			want: "iconbench/exports/iconbench-export-2026-01-02.json",
		},
		{
			name:   "custom prefix",
			prefix: "team/benchmarks",
			file:   "export.json",
			want:   "team/benchmarks/export.json",
		},
		{
			name:   "trailing slash stripped",
			prefix: "my-prefix/",
			file:   "export.json",
			want:   "my-prefix/export.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolveKey(tt.file))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "exports/records.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "exports/README",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "markdown file",
			path:       "exports/summary.md",
			wantPrefix: "text/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	log, _ := test.NewNullLogger()

	_, err := NewS3Uploader(log, &config.S3UploadConfig{Enabled: true})
	require.Error(t, err)
}

// fakeS3 answers path-style PutObject and GetObject requests.
type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		f.puts[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
				`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))

			return
		}

		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Uploader_RoundTrip(t *testing.T) {
	fake := &fakeS3{
		puts:    make(map[string]string),
		objects: map[string]string{"/bench/exports/old.json": `{"records":[]}`},
	}

	srv := httptest.NewServer(fake)
	defer srv.Close()

	log, _ := test.NewNullLogger()

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		Enabled:         true,
		EndpointURL:     srv.URL,
		Bucket:          "bench",
		Prefix:          "exports",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, u.Preflight(ctx))

	path := filepath.Join(t.TempDir(), "new.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"records":[]}`), 0o600))

	key, err := u.UploadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "exports/new.json", key)

	fake.mu.Lock()
	assert.Contains(t, fake.puts, "/bench/exports/.iconbench-write-test")
	assert.True(t, strings.HasPrefix(fake.puts["/bench/exports/new.json"], "application/json"))
	fake.mu.Unlock()

	data, err := u.Download(ctx, "old.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[]}`, string(data))

	_, err = u.Download(ctx, "exports/gone.json")
	require.ErrorIs(t, err, ErrObjectNotFound)
}
