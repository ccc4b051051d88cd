package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parquetsql/parquetsql/internal/chart"
	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/query/duckdb"
	"github.com/parquetsql/parquetsql/internal/results"
	"github.com/parquetsql/parquetsql/internal/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClosed          = errors.New("workspace closed")
)

// Engine is what a session needs from the adapter behind it.
type Engine interface {
	query.Engine
	LoadFile(ctx context.Context, path string) (string, error)
	ListTables(ctx context.Context) ([]string, error)
	Export(ctx context.Context, sql, path string) error
	Close() error
}

// Opener creates a fresh engine for one data source.
type Opener func(ctx context.Context) (Engine, error)

// DuckDBOpener opens a dedicated embedded database per session.
func DuckDBOpener(cfg duckdb.Config, opts duckdb.Options) Opener {
	return func(ctx context.Context) (Engine, error) {
		adapter, err := duckdb.Open(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
}

type Config struct {
	PageSize      int
	HistogramBins int
	Executor      executor.Options
	// SubscriberBuffer sizes each Subscribe channel. Events are dropped for
	// subscribers that fall this far behind.
	SubscriberBuffer int
}

// Workspace tracks one session per opened data source.
type Workspace struct {
	Opener Opener
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	byPath   map[string]string
	order    []string
	closed   bool
}

func (w *Workspace) ensureDefaults() {
	if w.Logger == nil {
		w.Logger = observability.DiscardLogger()
	}
	if w.Clock == nil {
		w.Clock = time.Now
	}
	if w.Config.PageSize <= 0 {
		w.Config.PageSize = results.DefaultPageSize
	}
	if w.Config.HistogramBins <= 0 {
		w.Config.HistogramBins = chart.DefaultHistogramBins
	}
	if w.Config.SubscriberBuffer <= 0 {
		w.Config.SubscriberBuffer = 16
	}
	if w.sessions == nil {
		w.sessions = make(map[string]*Session)
		w.byPath = make(map[string]string)
	}
}

// Open returns the session for path, loading it into a new engine the first time.
func (w *Workspace) Open(ctx context.Context, path string) (*Session, error) {
	key, err := sessionKey(path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.ensureDefaults()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if id, ok := w.byPath[key]; ok {
		session := w.sessions[id]
		w.mu.Unlock()
		return session, nil
	}
	if w.Opener == nil {
		w.mu.Unlock()
		return nil, errors.New("open session: no engine opener configured")
	}
	opener := w.Opener
	cfg := w.Config
	logger := w.Logger
	openedAt := w.Clock().UTC()
	w.mu.Unlock()

	engine, err := opener(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	table, err := engine.LoadFile(ctx, key)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	session := newSession(uuid.NewString(), key, table, openedAt, engine, cfg, logger)

	w.mu.Lock()
	if existing, ok := w.byPath[key]; ok || w.closed {
		closed := w.closed
		w.mu.Unlock()
		_ = session.Close(ctx)
		if closed {
			return nil, ErrClosed
		}
		return w.Get(existing)
	}
	w.sessions[session.ID] = session
	w.byPath[key] = session.ID
	w.order = append(w.order, session.ID)
	count := len(w.sessions)
	w.mu.Unlock()

	observability.SetSessionsOpen(count)
	logger.Info("session opened",
		slog.String("session_id", session.ID),
		slog.String("path", key),
		slog.String("table", table),
	)
	return session, nil
}

func (w *Workspace) Get(id string) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	session, ok := w.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	return session, nil
}

// List returns open sessions in the order they were opened.
func (w *Workspace) List() []*Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	sessions := make([]*Session, 0, len(w.order))
	for _, id := range w.order {
		sessions = append(sessions, w.sessions[id])
	}
	return sessions
}

func (w *Workspace) CloseSession(ctx context.Context, id string) error {
	w.mu.Lock()
	session, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("close session %s: %w", id, ErrSessionNotFound)
	}
	w.removeLocked(session)
	count := len(w.sessions)
	w.mu.Unlock()

	observability.SetSessionsOpen(count)
	return session.Close(ctx)
}

// Close closes every session. The workspace rejects Open afterwards.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	w.ensureDefaults()
	w.closed = true
	sessions := make([]*Session, 0, len(w.order))
	for _, id := range w.order {
		sessions = append(sessions, w.sessions[id])
	}
	for _, session := range sessions {
		w.removeLocked(session)
	}
	w.mu.Unlock()

	observability.SetSessionsOpen(0)
	var errs []error
	for _, session := range sessions {
		if err := session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", session.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Workspace) removeLocked(session *Session) {
	delete(w.sessions, session.ID)
	delete(w.byPath, session.Path)
	for i, id := range w.order {
		if id == session.ID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// sessionKey normalises local paths so the same file opened twice maps to one session.
func sessionKey(path string) (string, error) {
	if path == "" {
		return "", errors.New("open session: path is required")
	}
	if storage.IsRemote(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
