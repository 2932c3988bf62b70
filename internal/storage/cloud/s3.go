package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/encryptor"
	"github.com/jaywantadh/fragments/internal/storage"
)

// saltObject holds the scrypt salt for sealed blobs. It has no "/" so it can
// never collide with an objectKey.
const saltObject = "fragments.salt"

type blobStore struct {
	cl     *minio.Client
	bucket string
	codec  storage.Codec
	log    logrus.FieldLogger
}

func openBlobStore(ctx context.Context, cfg Config, log logrus.FieldLogger) (*blobStore, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}
	s := &blobStore{cl: cl, bucket: cfg.Bucket, codec: storage.Codec{Compress: cfg.Compress}, log: log}
	if err := s.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	if cfg.EncryptionKey != "" {
		salt, err := s.loadSalt(ctx)
		if err != nil {
			return nil, fmt.Errorf("load salt: %w", err)
		}
		enc, err := encryptor.NewEncryptor(cfg.EncryptionKey, salt)
		if err != nil {
			return nil, err
		}
		s.codec.Encryptor = enc
	}
	return s, nil
}

// loadSalt reads the bucket's salt object, creating it on first use.
func (s *blobStore) loadSalt(ctx context.Context) ([]byte, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, saltObject, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	salt, err := io.ReadAll(obj)
	if err == nil {
		if len(salt) != encryptor.SaltSize {
			return nil, fmt.Errorf("salt object has %d bytes, want %d", len(salt), encryptor.SaltSize)
		}
		return salt, nil
	}
	if !isNoSuchKey(err) {
		return nil, err
	}

	salt, err = encryptor.NewSalt()
	if err != nil {
		return nil, err
	}
	_, err = s.cl.PutObject(ctx, s.bucket, saltObject, bytes.NewReader(salt), int64(len(salt)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return nil, err
	}
	s.log.WithField("bucket", s.bucket).Info("created encryption salt")
	return salt, nil
}

func (s *blobStore) ensureBucket(ctx context.Context, region string) error {
	ok, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	s.log.WithField("bucket", s.bucket).Info("created bucket")
	return nil
}

// objectKey maps (owner, id) to "<owner>/<id>" with both parts escaped.
func objectKey(ownerID, id string) string {
	return url.PathEscape(ownerID) + "/" + url.PathEscape(id)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func (s *blobStore) put(ctx context.Context, ownerID, id string, data []byte) error {
	blob, err := s.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	_, err = s.cl.PutObject(ctx, s.bucket, objectKey(ownerID, id), bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return unavailable(ctx, "write data", err)
	}
	return nil
}

func (s *blobStore) get(ctx context.Context, ownerID, id string) ([]byte, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, objectKey(ownerID, id), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.NotFound("data", ownerID, id)
		}
		return nil, unavailable(ctx, "read data", err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read.
	blob, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.NotFound("data", ownerID, id)
		}
		return nil, unavailable(ctx, "read data", err)
	}
	data, err := s.codec.Decode(blob)
	if err != nil {
		return nil, storage.Corrupt("decode data", err)
	}
	return data, nil
}

// remove succeeds for missing objects; S3 delete is idempotent.
func (s *blobStore) remove(ctx context.Context, ownerID, id string) error {
	err := s.cl.RemoveObject(ctx, s.bucket, objectKey(ownerID, id), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return unavailable(ctx, "delete data", err)
	}
	return nil
}
