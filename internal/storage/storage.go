// Package storage mirrors run artifacts to an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vast/internal/logging"
)

// ObjectStore is the subset of an object storage client the mirror needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	PutFile(ctx context.Context, key, localPath, contentType string) error
}

// Config holds MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinioStore writes objects with minio-go.
type MinioStore struct {
	client *miniogo.Client
	bucket string
}

// NewMinioStore builds a client. No network calls are made until use.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PutFile uploads a local file.
func (s *MinioStore) PutFile(ctx context.Context, key, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Mirror uploads run artifacts under <prefix>/<runID>/.
type Mirror struct {
	store  ObjectStore
	prefix string
	logger *slog.Logger
}

// NewMirror wraps an object store.
func NewMirror(store ObjectStore, prefix string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Mirror{store: store, prefix: strings.Trim(prefix, "/ "), logger: logger}
}

// ObjectKey returns the key for a file relative to the run directory.
func (m *Mirror) ObjectKey(runID, rel string) string {
	rel = filepath.ToSlash(rel)
	if m.prefix == "" {
		return path.Join(runID, rel)
	}
	return path.Join(m.prefix, runID, rel)
}

// Upload mirrors files, given relative to runDir, in sorted order and
// returns the object keys written.
func (m *Mirror) Upload(ctx context.Context, runID, runDir string, files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := m.store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	keys := make([]string, 0, len(sorted))
	for _, rel := range sorted {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		local := filepath.Join(runDir, rel)
		if _, err := os.Stat(local); err != nil {
			return keys, fmt.Errorf("mirror %s: %w", rel, err)
		}
		key := m.ObjectKey(runID, rel)
		if err := m.store.PutFile(ctx, key, local, contentType(rel)); err != nil {
			return keys, err
		}
		m.logger.Debug("artifact mirrored", logging.String("key", key))
		keys = append(keys, key)
	}
	m.logger.Info("artifacts mirrored",
		logging.String(logging.FieldEventType, "artifacts_mirrored"),
		logging.Int("object_count", len(keys)),
	)
	return keys, nil
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".srt":
		return "application/x-subrip"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
