package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPrefix is the key prefix used when none is configured.
	DefaultPrefix = "iconbench/exports"

	defaultRegion = "us-east-1"
	writeTestName = ".iconbench-write-test"
)

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates an uploader for the bucket in cfg. Endpoint and
// path-style options allow S3-compatible stores such as MinIO.
func NewS3Uploader(log logrus.FieldLogger, cfg *config.S3UploadConfig) (Uploader, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: s3.New(s3.Options{}, clientOptions(cfg)),
	}, nil
}

func clientOptions(cfg *config.S3UploadConfig) func(*s3.Options) {
	return func(o *s3.Options) {
		o.Region = cfg.Region
		if o.Region == "" {
			o.Region = defaultRegion
		}

		o.UsePathStyle = cfg.ForcePathStyle

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	}
}

// Preflight checks the bucket is writable before a long run depends on it.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	stamp := "iconbench write test: " + time.Now().UTC().Format(time.RFC3339)

	if err := u.put(ctx, writeTestName, strings.NewReader(stamp), "text/plain"); err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

// UploadFile stores localPath under the configured prefix and returns the
// object key.
func (u *s3Uploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := u.put(ctx, name, f, detectContentType(localPath)); err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}

	key := u.resolveKey(name)

	u.log.WithFields(logrus.Fields{
		"bucket": u.cfg.Bucket,
		"key":    key,
	}).Info("Export uploaded")

	return key, nil
}

func (u *s3Uploader) put(ctx context.Context, name string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.resolveKey(name)),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	_, err := u.client.PutObject(ctx, input)

	return err
}

// Download returns the contents of key. A bare file name is looked up
// under the configured prefix.
func (u *s3Uploader) Download(ctx context.Context, key string) ([]byte, error) {
	if !strings.Contains(key, "/") {
		key = u.resolveKey(key)
	}

	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	})

	switch {
	case isS3NotFound(err):
		return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, u.cfg.Bucket, key)
	case err != nil:
		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

func (u *s3Uploader) resolveKey(name string) string {
	prefix := strings.TrimRight(u.cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return prefix + "/" + name
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}

	var nsk *s3types.NoSuchKey

	// S3-compatible stores do not always return the typed error.
	return errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey")
}

// detectContentType maps the file extension to a MIME type, falling back
// to application/octet-stream.
func detectContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
