package duckdb

import (
	"bytes"
	"context"
	"database/sql/driver"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/parquet-go/parquet-go"

	"github.com/parquetsql/parquetsql/internal/storage"
)

type row struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func buildParquet(rows []row) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[row](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		MemoryLimit:      "512MB",
		Threads:          2,
		TempDirectory:    filepath.Join(t.TempDir(), "duckdb_temp"),
		StagingDirectory: filepath.Join(t.TempDir(), "staging"),
	}
}

func openTestAdapter(t *testing.T, opts Options) *Adapter {
	t.Helper()
	adapter, err := Open(context.Background(), testConfig(t), opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

// passthroughConverter lets sqlmock rows carry arbitrary driver values.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) {
	return v, nil
}

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("db.Conn() error = %v", err)
	}
	adapter := newAdapter(db, conn, Config{StagingDirectory: t.TempDir()}, Options{})
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter, mock
}

type memoryStore struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	modified  time.Time
	downloads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{bucket: "datasets", objects: map[string][]byte{}, modified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memoryStore) Bucket() string {
	return m.bucket
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload)), LastModified: m.modified}, nil
}

func (m *memoryStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	m.downloads++
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (storage.ObjectInfo, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = payload
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}
