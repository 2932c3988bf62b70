// Package cloud implements storage.Backend on PostgreSQL for metadata and an
// S3-compatible object store for fragment data.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/storage"
)

// Config holds the connection settings for both halves of the backend.
type Config struct {
	DSN string

	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool

	// Compress lz4-compresses blobs before upload.
	Compress bool
	// EncryptionKey seals blobs before upload when set. The salt is kept in
	// the bucket next to the data.
	EncryptionKey string
}

func (c Config) validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, errors.New("postgres dsn is required"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("s3 endpoint is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required"))
	}
	return errors.Join(errs...)
}

// Backend stores metadata rows in Postgres and data objects in S3.
type Backend struct {
	meta  *metadataStore
	blobs *blobStore
	log   logrus.FieldLogger
}

// Open runs migrations, connects to both stores and makes sure the bucket
// exists.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Backend, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("cloud config: %w", err)
	}

	meta, err := openMetadataStore(ctx, cfg.DSN, log)
	if err != nil {
		return nil, storage.Unavailable("open postgres", err)
	}
	blobs, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		meta.close()
		return nil, storage.Unavailable("open s3", err)
	}
	log.WithFields(logrus.Fields{"endpoint": cfg.Endpoint, "bucket": cfg.Bucket}).Info("cloud backend ready")
	return &Backend{meta: meta, blobs: blobs, log: log}, nil
}

// unavailable reports a failed call. A canceled or expired context is
// returned as is, matching the other backends.
func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return storage.Unavailable(op, err)
}

func (b *Backend) WriteFragmentMetadata(ctx context.Context, meta storage.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.meta.upsert(ctx, meta)
}

func (b *Backend) ReadFragmentMetadata(ctx context.Context, ownerID, id string) (storage.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storage.Metadata{}, err
	}
	return b.meta.get(ctx, ownerID, id)
}

func (b *Backend) WriteFragmentData(ctx context.Context, ownerID, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.blobs.put(ctx, ownerID, id, data)
}

func (b *Backend) ReadFragmentData(ctx context.Context, ownerID, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.blobs.get(ctx, ownerID, id)
}

func (b *Backend) ListFragmentIDs(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.meta.listIDs(ctx, ownerID)
}

func (b *Backend) ListFragments(ctx context.Context, ownerID string) ([]storage.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.meta.list(ctx, ownerID)
}

// DeleteFragment removes the object first so a failure never leaves data
// without a metadata row pointing at it.
func (b *Backend) DeleteFragment(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.blobs.remove(ctx, ownerID, id); err != nil {
		return err
	}
	return b.meta.remove(ctx, ownerID, id)
}

// Close releases the connection pool. The S3 client holds no resources.
func (b *Backend) Close() error {
	b.meta.close()
	return nil
}
