package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore holds the data files behind s3:// paths. It is bound to one bucket and
// keys are relative to it.
type ObjectStore interface {
	Bucket() string
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error)
}

// Location is the s3:// path key has in store.
func Location(store ObjectStore, key string) string {
	return RemotePath{Bucket: store.Bucket(), Key: key}.String()
}
