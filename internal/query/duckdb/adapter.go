package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/storage"
)

// Config controls how the embedded database is opened. An empty DiskPath opens an
// in-memory database.
type Config struct {
	DiskPath               string
	MemoryLimit            string
	Threads                int
	TempDirectory          string
	PreserveInsertionOrder bool
	Extensions             []string
	StagingDirectory       string
}

func DefaultConfig() Config {
	return Config{
		DiskPath:               "",
		MemoryLimit:            "8GB",
		Threads:                8,
		TempDirectory:          filepath.Join(os.TempDir(), "duckdb_temp"),
		PreserveInsertionOrder: false,
		Extensions:             []string{"parquet"},
		StagingDirectory:       filepath.Join(os.TempDir(), "parquetsql-staging"),
	}
}

type Options struct {
	Logger *slog.Logger
	// Store resolves s3:// paths. Remote paths fail to load when it is nil.
	Store storage.ObjectStore
}

// Adapter owns one embedded database and a single pinned connection. Every statement
// runs under mu; Interrupt only touches the cancel func under interruptMu so it can
// be called while a statement holds mu.
type Adapter struct {
	cfg    Config
	logger *slog.Logger
	store  storage.ObjectStore

	mu        sync.Mutex
	db        *sql.DB
	conn      *sql.Conn
	tables    []string
	files     map[string]FileInfo
	lastTable string

	interruptMu sync.Mutex
	cancelStmt  context.CancelFunc
}

var _ query.Engine = (*Adapter)(nil)

func Open(ctx context.Context, cfg Config, opts Options) (*Adapter, error) {
	connector, err := goduckdb.NewConnector(cfg.DiskPath, nil)
	if err != nil {
		return nil, query.NewEngineError(query.InitFailed, "open duckdb", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, query.NewEngineError(query.InitFailed, "connect duckdb", err)
	}
	adapter := newAdapter(db, conn, cfg, opts)
	adapter.configure(ctx)
	return adapter, nil
}

func newAdapter(db *sql.DB, conn *sql.Conn, cfg Config, opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		store:  opts.Store,
		db:     db,
		conn:   conn,
		files:  map[string]FileInfo{},
	}
}

// configure installs extensions and applies session settings. Failures only warn.
func (a *Adapter) configure(ctx context.Context) {
	for _, extension := range a.cfg.Extensions {
		extension = strings.TrimSpace(extension)
		if extension == "" {
			continue
		}
		for _, stmt := range []string{"INSTALL " + extension, "LOAD " + extension} {
			if _, err := a.conn.ExecContext(ctx, stmt); err != nil {
				a.logger.Warn("duckdb extension setup failed", slog.String("statement", stmt), slog.String("error", err.Error()))
			}
		}
	}

	if a.cfg.TempDirectory != "" {
		if err := os.MkdirAll(a.cfg.TempDirectory, 0o755); err != nil {
			a.logger.Warn("create duckdb temp directory failed", slog.String("path", a.cfg.TempDirectory), slog.String("error", err.Error()))
		}
	}

	for _, stmt := range a.settingStatements() {
		if _, err := a.conn.ExecContext(ctx, stmt); err != nil {
			a.logger.Warn("duckdb setting failed", slog.String("statement", stmt), slog.String("error", err.Error()))
		}
	}
}

func (a *Adapter) settingStatements() []string {
	stmts := make([]string, 0, 4)
	if a.cfg.MemoryLimit != "" {
		stmts = append(stmts, "SET memory_limit = "+quoteString(a.cfg.MemoryLimit))
	}
	if a.cfg.Threads > 0 {
		stmts = append(stmts, fmt.Sprintf("SET threads = %d", a.cfg.Threads))
	}
	stmts = append(stmts, fmt.Sprintf("SET preserve_insertion_order = %t", a.cfg.PreserveInsertionOrder))
	if a.cfg.TempDirectory != "" {
		stmts = append(stmts, "SET temp_directory = "+quoteString(a.cfg.TempDirectory))
	}
	return stmts
}

// ListTables reports every table and view in the main schema, sorted by name.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, query.NewEngineError(query.NotConnected, "list tables", nil)
	}

	rows, err := a.conn.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// LoadedTables returns the tables registered through LoadFile in load order.
func (a *Adapter) LoadedTables() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tables...)
}

func (a *Adapter) LastLoadedTable() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTable
}

// Interrupt cancels the statement currently executing, if any.
func (a *Adapter) Interrupt() bool {
	a.interruptMu.Lock()
	defer a.interruptMu.Unlock()
	if a.cancelStmt == nil {
		return false
	}
	a.cancelStmt()
	return true
}

func (a *Adapter) beginStatement(ctx context.Context) (context.Context, func()) {
	stmtCtx, cancel := context.WithCancel(ctx)
	a.interruptMu.Lock()
	a.cancelStmt = cancel
	a.interruptMu.Unlock()
	return stmtCtx, func() {
		a.interruptMu.Lock()
		a.cancelStmt = nil
		a.interruptMu.Unlock()
		cancel()
	}
}

// Close interrupts any running statement and releases the database. Later calls
// report NotConnected.
func (a *Adapter) Close() error {
	a.Interrupt()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	var firstErr error
	if err := a.conn.Close(); err != nil {
		firstErr = fmt.Errorf("close connection: %w", err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close duckdb: %w", err)
	}
	a.conn = nil
	a.db = nil
	return firstErr
}
