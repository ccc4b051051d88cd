package sample

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/parquetsql/parquetsql/internal/storage"
)

// TimestampLayout is how occurred_at is written to delimited files.
const TimestampLayout = "2006-01-02 15:04:05"

// Write generates cfg.Rows events and writes them as <base>.parquet, <base>.csv and
// <base>.tsv under cfg.Dir. It returns the written paths in that order.
func Write(cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	events := NewGenerator(cfg.Seed, cfg.UserCardinality, cfg.Start).Events(cfg.Rows)

	writers := []struct {
		ext   string
		write func(io.Writer, []Event) error
	}{
		{".parquet", WriteParquet},
		{".csv", func(w io.Writer, events []Event) error { return WriteDelimited(w, events, ',') }},
		{".tsv", func(w io.Writer, events []Event) error { return WriteDelimited(w, events, '\t') }},
	}

	paths := make([]string, 0, len(writers))
	for _, writer := range writers {
		target := filepath.Join(cfg.Dir, cfg.BaseName+writer.ext)
		if err := writeFile(target, events, writer.write); err != nil {
			return paths, err
		}
		paths = append(paths, target)
	}
	return paths, nil
}

func writeFile(target string, events []Event, write func(io.Writer, []Event) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if err := write(f, events); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

func WriteParquet(w io.Writer, events []Event) error {
	writer := parquet.NewGenericWriter[Event](w)
	if _, err := writer.Write(events); err != nil {
		return err
	}
	return writer.Close()
}

// WriteDelimited writes a header row and one record per event separated by comma.
func WriteDelimited(w io.Writer, events []Event, comma rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, event := range events {
		record := []string{
			strconv.FormatInt(event.EventID, 10),
			event.UserID,
			event.SessionID,
			event.EventType,
			strconv.FormatFloat(event.Amount, 'f', 2, 64),
			event.Currency,
			event.Country,
			event.Device,
			strconv.FormatBool(event.Converted),
			event.OccurredAt.UTC().Format(TimestampLayout),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Upload copies local files to store under prefix and returns their s3:// locations.
func Upload(ctx context.Context, store storage.ObjectStore, prefix string, paths []string) ([]string, error) {
	locations := make([]string, 0, len(paths))
	for _, local := range paths {
		key := path.Join(prefix, filepath.Base(local))
		if err := uploadFile(ctx, store, key, local); err != nil {
			return locations, err
		}
		locations = append(locations, storage.Location(store, key))
	}
	return locations, nil
}

func uploadFile(ctx context.Context, store storage.ObjectStore, key, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", local, err)
	}
	if _, err := store.Upload(ctx, key, f, info.Size(), storage.ContentTypeFor(local)); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
