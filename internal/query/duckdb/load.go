package duckdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/parquet-go/parquet-go"

	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/storage"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
)

// FileInfo describes a file registered by LoadFile.
type FileInfo struct {
	Path      string
	Format    Format
	TableName string
	RowCount  int64
	Columns   []string
}

// FormatForPath classifies a file by its extension, case-insensitively.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, true
	case ".csv":
		return FormatCSV, true
	case ".tsv":
		return FormatTSV, true
	default:
		return "", false
	}
}

// TableName derives the table a file is registered under: the file name without its
// final extension, with every rune outside [A-Za-z0-9_] replaced by an underscore.
func TableName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		if r < unicode.MaxASCII && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "table_" + name
	}
	return name
}

// LoadFile registers a parquet, csv or tsv file as a table and returns its name.
// Loading the same file again replaces the previous registration.
func (a *Adapter) LoadFile(ctx context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	localPath := path
	if storage.IsRemote(path) {
		staged, err := a.stage(ctx, path)
		if err != nil {
			return "", err
		}
		localPath = staged
	}

	if _, err := os.Stat(localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", query.NewEngineError(query.LoadFailed, "file does not exist: "+path, nil)
		}
		return "", query.NewEngineError(query.LoadFailed, "stat file "+path, err)
	}
	format, ok := FormatForPath(localPath)
	if !ok {
		return "", query.NewEngineError(query.LoadFailed, "unsupported file type: "+filepath.Ext(localPath), nil)
	}

	info, err := a.loadLocal(ctx, path, localPath, format)
	observability.ObserveFileLoad(string(format), err)
	if err != nil {
		a.logger.Warn("load file failed", slog.String("path", path), slog.String("error", err.Error()))
		return "", err
	}
	a.logger.Info("file loaded",
		slog.String("path", path),
		slog.String("table", info.TableName),
		slog.Int64("rows", info.RowCount),
	)
	return info.TableName, nil
}

func (a *Adapter) loadLocal(ctx context.Context, path, localPath string, format Format) (FileInfo, error) {
	info := FileInfo{Path: path, Format: format, TableName: TableName(localPath)}
	if format == FormatParquet {
		rows, columns, err := inspectParquet(localPath)
		if err != nil {
			return FileInfo{}, query.NewEngineError(query.LoadFailed, "failed to load parquet file", err)
		}
		info.RowCount = rows
		info.Columns = columns
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return FileInfo{}, query.NewEngineError(query.NotConnected, "load file", nil)
	}

	if _, err := a.conn.ExecContext(ctx, loadStatement(format, info.TableName, localPath)); err != nil {
		return FileInfo{}, query.NewEngineError(query.LoadFailed, fmt.Sprintf("failed to load %s file", format), err)
	}
	if format != FormatParquet {
		if err := a.describeTable(ctx, &info); err != nil {
			return FileInfo{}, query.NewEngineError(query.LoadFailed, fmt.Sprintf("failed to load %s file", format), err)
		}
	}

	a.files[info.TableName] = info
	a.lastTable = info.TableName
	for _, existing := range a.tables {
		if existing == info.TableName {
			return info, nil
		}
	}
	a.tables = append(a.tables, info.TableName)
	return info, nil
}

func loadStatement(format Format, table, path string) string {
	switch format {
	case FormatParquet:
		return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)", quoteIdent(table), quoteString(path))
	case FormatTSV:
		return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, delim=%s, header=true)", quoteIdent(table), quoteString(path), quoteString("\t"))
	default:
		return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, delim=%s, header=true)", quoteIdent(table), quoteString(path), quoteString(","))
	}
}

// describeTable fills row count and columns for tables materialized from text files.
func (a *Adapter) describeTable(ctx context.Context, info *FileInfo) error {
	if err := a.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(info.TableName)).Scan(&info.RowCount); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	rows, err := a.conn.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`,
		info.TableName,
	)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		info.Columns = append(info.Columns, column)
	}
	return rows.Err()
}

// inspectParquet reads the footer to validate the file before it is registered.
func inspectParquet(path string) (int64, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return 0, nil, err
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return 0, nil, err
	}
	fields := pf.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return pf.NumRows(), columns, nil
}

// Files returns the registered files in load order.
func (a *Adapter) Files() []FileInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	files := make([]FileInfo, 0, len(a.tables))
	for _, table := range a.tables {
		info := a.files[table]
		info.Columns = append([]string(nil), info.Columns...)
		files = append(files, info)
	}
	return files
}
