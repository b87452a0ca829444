// Package upload copies export files to remote object storage.
package upload

import "context"

// Uploader moves export files to and from remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadFile uploads the file at localPath under the configured prefix
	// and returns the object key.
	UploadFile(ctx context.Context, localPath string) (string, error)

	// Download returns the contents of key. A missing key returns
	// ErrObjectNotFound.
	Download(ctx context.Context, key string) ([]byte, error)
}
