package sample

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/parquetsql/parquetsql/internal/storage"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	g1 := NewGenerator(42, 10, DefaultStart)
	g2 := NewGenerator(42, 10, DefaultStart)

	for i := 0; i < 5; i++ {
		e1 := g1.NextEvent()
		e2 := g2.NextEvent()
		if !reflect.DeepEqual(e1, e2) {
			t.Fatalf("event %d differs: %#v vs %#v", i, e1, e2)
		}
	}
}

func TestGeneratorEventsAreOrdered(t *testing.T) {
	events := NewGenerator(99, 5, DefaultStart).Events(50)
	if len(events) != 50 {
		t.Fatalf("Events(50) returned %d", len(events))
	}
	for i, event := range events {
		if event.EventID != int64(i+1) {
			t.Fatalf("event_id = %d, want %d", event.EventID, i+1)
		}
		if i > 0 && !event.OccurredAt.After(events[i-1].OccurredAt) {
			t.Fatalf("occurred_at not increasing at %d", i)
		}
		if event.Converted != (event.EventType == "purchase") {
			t.Fatalf("converted = %v for %s", event.Converted, event.EventType)
		}
		if event.EventType == "page_view" && event.Amount != 0 {
			t.Fatalf("page_view amount = %v", event.Amount)
		}
	}
}

func TestWriteProducesAllFormats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Rows = 40

	paths, err := Write(cfg)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := []string{
		filepath.Join(cfg.Dir, "events.parquet"),
		filepath.Join(cfg.Dir, "events.csv"),
		filepath.Join(cfg.Dir, "events.tsv"),
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("Write() paths = %v, want %v", paths, want)
	}

	rows, err := parquet.ReadFile[Event](paths[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	expected := NewGenerator(cfg.Seed, cfg.UserCardinality, cfg.Start).Events(cfg.Rows)
	if len(rows) != cfg.Rows || rows[0].EventID != 1 || rows[0].UserID != expected[0].UserID {
		t.Fatalf("parquet rows = %d, first = %+v", len(rows), rows[0])
	}
	if !rows[len(rows)-1].OccurredAt.Equal(expected[len(expected)-1].OccurredAt) {
		t.Fatalf("occurred_at = %v, want %v", rows[len(rows)-1].OccurredAt, expected[len(expected)-1].OccurredAt)
	}

	for _, tc := range []struct {
		path  string
		comma rune
	}{{paths[1], ','}, {paths[2], '\t'}} {
		f, err := os.Open(tc.path)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", tc.path, err)
		}
		reader := csv.NewReader(f)
		reader.Comma = tc.comma
		records, err := reader.ReadAll()
		_ = f.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", tc.path, err)
		}
		if len(records) != cfg.Rows+1 || !reflect.DeepEqual(records[0], Columns) {
			t.Fatalf("%s: %d records, header %v", tc.path, len(records), records[0])
		}
		if records[1][9] != expected[0].OccurredAt.Format(TimestampLayout) {
			t.Fatalf("%s: occurred_at = %q", tc.path, records[1][9])
		}
	}
}

func TestWriteDelimitedFormatsValues(t *testing.T) {
	event := Event{
		EventID:    7,
		UserID:     "user-0001",
		SessionID:  "sess-0000000a",
		EventType:  "purchase",
		Amount:     12.5,
		Currency:   "USD",
		Country:    "DE",
		Device:     "mobile",
		Converted:  true,
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	var buf bytes.Buffer
	if err := WriteDelimited(&buf, []Event{event}, '\t'); err != nil {
		t.Fatalf("WriteDelimited() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := "7\tuser-0001\tsess-0000000a\tpurchase\t12.50\tUSD\tDE\tmobile\ttrue\t2024-01-02 03:04:05"
	if len(lines) != 2 || lines[1] != want {
		t.Fatalf("lines = %q", lines)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"PARQUETSQL_SAMPLE_ROWS": "250",
		"PARQUETSQL_SAMPLE_SEED": "7",
		"PARQUETSQL_SAMPLE_DIR":  "/tmp/sample",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Rows != 250 || cfg.Seed != 7 || cfg.Dir != "/tmp/sample" || cfg.BaseName != "events" {
		t.Fatalf("cfg = %+v", cfg)
	}

	for key, value := range map[string]string{
		"PARQUETSQL_SAMPLE_ROWS":             "0",
		"PARQUETSQL_SAMPLE_BASENAME":         "a/b",
		"PARQUETSQL_SAMPLE_USER_CARDINALITY": "x",
	} {
		if _, err := LoadConfigFromEnv(mapLookup(map[string]string{key: value})); err == nil {
			t.Fatalf("LoadConfigFromEnv(%s=%s) expected error", key, value)
		}
	}
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryStore) Bucket() string { return "lake" }

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (m *memoryStore) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func TestUploadPutsFilesUnderPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Rows = 5
	paths, err := Write(cfg)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	locations, err := Upload(context.Background(), store, "samples/v1", paths)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	want := []string{"s3://lake/samples/v1/events.parquet", "s3://lake/samples/v1/events.csv", "s3://lake/samples/v1/events.tsv"}
	if !reflect.DeepEqual(locations, want) {
		t.Fatalf("Upload() = %v, want %v", locations, want)
	}
	if store.types["samples/v1/events.csv"] != "text/csv" || len(store.objects["samples/v1/events.parquet"]) == 0 {
		t.Fatalf("objects = %v types = %v", len(store.objects), store.types)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}
