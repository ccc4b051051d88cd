package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/parquetsql/parquetsql/internal/storage"
)

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	// Prefix is prepended to every key, so s3://bucket/a.csv reads Prefix/a.csv.
	Prefix       string
	VerifyBucket bool
}

// backend is the slice of an S3 client the store needs.
type backend interface {
	stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	bucketExists(ctx context.Context, bucket string) (bool, error)
}

// Store serves s3:// paths for one bucket from any S3 compatible endpoint.
type Store struct {
	backend backend
	bucket  string
	prefix  string
}

var _ storage.ObjectStore = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	host, secure, err := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	store, err := newStore(cfg.Bucket, cfg.Prefix, minioBackend{client: client})
	if err != nil {
		return nil, err
	}
	if cfg.VerifyBucket {
		if err := store.checkBucket(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket, prefix string, b backend) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	prefix = strings.Trim(path.Clean("/"+strings.TrimSpace(prefix)), "/")
	return &Store{backend: b, bucket: bucket, prefix: prefix}, nil
}

func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.backend.stat(ctx, s.bucket, objectKey)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("stat", objectKey, err)
	}
	info.Key = key
	return info, nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.backend.open(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, s.wrap("download", objectKey, err)
	}
	return body, nil
}

func (s *Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.backend.put(ctx, s.bucket, objectKey, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("upload", objectKey, err)
	}
	info.Key = key
	return info, nil
}

func (s *Store) checkBucket(ctx context.Context) error {
	ok, err := s.backend.bucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// objectKey maps a bucket relative key to the stored key under the prefix.
func (s *Store) objectKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	cleaned := path.Clean(trimmed)
	if trimmed == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

func (s *Store) wrap(op, objectKey string, err error) error {
	location := storage.RemotePath{Bucket: s.bucket, Key: objectKey}.String()
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%s %s: %w", op, location, storage.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, location, err)
}

// endpointHost accepts host:port or an http(s) URL and reports whether to use TLS.
func endpointHost(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported s3 endpoint scheme %q", parsed.Scheme)
	}
}

type minioBackend struct {
	client *minio.Client
}

func (m minioBackend) stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Size: info.Size, LastModified: info.LastModified}, nil
}

// open fails fast on missing objects; GetObject alone defers the request to the first read.
func (m minioBackend) open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (m minioBackend) put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return storage.ObjectInfo{Size: info.Size, LastModified: info.LastModified}, nil
}

func (m minioBackend) bucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	default:
		return err
	}
}
