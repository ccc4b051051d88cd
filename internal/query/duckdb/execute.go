package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/storage"
)

const (
	errQueryEmpty   = "query is empty"
	queryErrorLabel = "query error: "
)

// Execute runs sqlText and materializes every row. Failures are reported through
// Result.Error; Execute never panics.
func (a *Adapter) Execute(ctx context.Context, sqlText string) (result query.Result) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Failed(errQueryEmpty)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return query.Failed(queryErrorLabel + "not connected")
	}

	stmtCtx, done := a.beginStatement(ctx)
	defer done()

	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = query.Failed(fmt.Sprintf("%spanic: %v", queryErrorLabel, recovered))
		}
		result.ExecutionTime = time.Since(start)
	}()

	result = a.run(stmtCtx, sqlText)
	a.logger.Debug("query executed",
		slog.Int("sql_len", len(sqlText)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int("rows", result.TotalRows),
		slog.Bool("success", result.Success),
	)
	return result
}

func (a *Adapter) run(ctx context.Context, sqlText string) query.Result {
	rows, err := a.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Failed(queryErrorLabel + err.Error())
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Failed(queryErrorLabel + err.Error())
	}
	databaseTypes := columnDatabaseTypes(rows, len(columns))

	resultRows := make([][]query.CellValue, 0)
	failedCells := 0
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			marked := make([]query.CellValue, len(columns))
			for i := range marked {
				marked[i] = ErrorMarker(err)
			}
			failedCells += len(columns)
			resultRows = append(resultRows, marked)
			continue
		}

		row := make([]query.CellValue, len(columns))
		for i, value := range values {
			cell, err := convertCell(value, databaseTypes[i])
			if err != nil {
				cell = ErrorMarker(err)
				failedCells++
			}
			row[i] = cell
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Failed(queryErrorLabel + err.Error())
	}
	if failedCells > 0 {
		observability.AddCellExtractionErrors(failedCells)
		a.logger.Warn("cell extraction failed", slog.Int("cells", failedCells))
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Success:   true,
		TotalRows: len(resultRows),
	}
}

func columnDatabaseTypes(rows *sql.Rows, count int) []string {
	databaseTypes := make([]string, count)
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return databaseTypes
	}
	for i, columnType := range columnTypes {
		if i < count && columnType != nil {
			databaseTypes[i] = columnType.DatabaseTypeName()
		}
	}
	return databaseTypes
}

// Export writes the rows of sqlText to path. The extension picks the format; s3://
// destinations are written locally first and then uploaded.
func (a *Adapter) Export(ctx context.Context, sqlText, path string) error {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return fmt.Errorf("export query: %s", errQueryEmpty)
	}
	path = strings.TrimSpace(path)
	format, ok := FormatForPath(path)
	if !ok {
		return fmt.Errorf("export query: unsupported file type: %q", filepath.Ext(path))
	}

	localPath := path
	var remote storage.RemotePath
	isRemote := storage.IsRemote(path)
	if isRemote {
		resolved, err := a.resolveRemote(path)
		if err != nil {
			return fmt.Errorf("export query: %w", err)
		}
		remote = resolved
		if err := os.MkdirAll(a.cfg.StagingDirectory, 0o755); err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}
		localPath = filepath.Join(a.cfg.StagingDirectory, "export-"+remote.FileName())
		defer func() { _ = os.Remove(localPath) }()
	}

	if err := a.copyTo(ctx, sqlText, localPath, format); err != nil {
		return err
	}
	if isRemote {
		if err := a.upload(ctx, localPath, remote); err != nil {
			return err
		}
	}
	a.logger.Info("query exported", slog.String("path", path), slog.String("format", string(format)))
	return nil
}

func (a *Adapter) copyTo(ctx context.Context, sqlText, localPath string, format Format) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return query.NewEngineError(query.NotConnected, "export query", nil)
	}

	stmtCtx, done := a.beginStatement(ctx)
	defer done()

	copySQL := fmt.Sprintf("COPY (%s) TO %s (%s)", sqlText, quoteString(localPath), copyOptions(format))
	if _, err := a.conn.ExecContext(stmtCtx, copySQL); err != nil {
		return fmt.Errorf("export query: %w", err)
	}
	return nil
}

func copyOptions(format Format) string {
	switch format {
	case FormatParquet:
		return "FORMAT PARQUET, COMPRESSION ZSTD"
	case FormatTSV:
		return "FORMAT CSV, HEADER, DELIMITER " + quoteString("\t")
	default:
		return "FORMAT CSV, HEADER, DELIMITER ','"
	}
}
