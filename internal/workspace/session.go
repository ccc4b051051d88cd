package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parquetsql/parquetsql/internal/chart"
	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/results"
)

// DefaultQueryLimit bounds the query generated for a freshly opened table.
const DefaultQueryLimit = 1000

// Session binds one data source to its engine, executor, paged model and charts.
type Session struct {
	ID        string
	Path      string
	TableName string
	OpenedAt  time.Time

	engine Engine
	exec   *executor.Executor
	model  *results.Model
	charts *chart.Manager
	logger *slog.Logger
	buffer int

	mu          sync.Mutex
	subscribers map[int]chan executor.Event
	nextSub     int
	state       executor.State
	lastError   string
	lastTimeMs  int64
	pumpDone    chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	Executing       bool   `json:"executing"`
	LastError       string `json:"last_error,omitempty"`
	TotalRows       int    `json:"total_rows"`
	TotalPages      int    `json:"total_pages"`
	CurrentPage     int    `json:"current_page"`
	PageSize        int    `json:"page_size"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

func newSession(id, path, table string, openedAt time.Time, engine Engine, cfg Config, logger *slog.Logger) *Session {
	logger = logger.With(slog.String("session_id", id), slog.String("table", table))
	s := &Session{
		ID:          id,
		Path:        path,
		TableName:   table,
		OpenedAt:    openedAt,
		engine:      engine,
		exec:        executor.New(engine, logger, cfg.Executor),
		model:       results.New(cfg.PageSize),
		charts:      chart.NewManager(cfg.HistogramBins),
		logger:      logger,
		buffer:      cfg.SubscriberBuffer,
		subscribers: make(map[int]chan executor.Event),
		pumpDone:    make(chan struct{}),
	}
	s.charts.SetData(query.Result{}, path)
	go s.pump()
	return s
}

// DefaultQuery selects the first rows of the session's table.
func (s *Session) DefaultQuery() string {
	return fmt.Sprintf("SELECT * FROM \"%s\" LIMIT %d;", s.TableName, DefaultQueryLimit)
}

// Execute dispatches sqlText without waiting for it. The session reports Executing
// until the completion has been applied to the model.
func (s *Session) Execute(sqlText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.exec.ExecuteQuery(sqlText); err != nil {
		return err
	}
	s.state = executor.Executing
	return nil
}

// Cancel marks the running query as cancelled and, when interrupt is set, also asks the
// engine to stop. It reports whether a query was executing.
func (s *Session) Cancel(interrupt bool) bool {
	executing := s.exec.CancelExecution()
	if interrupt {
		s.exec.Interrupt()
	}
	return executing
}

func (s *Session) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == executor.Executing
}

// Status reports the state of the last applied completion, so a completed status
// always comes with the model already holding its rows.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionID:       s.ID,
		State:           s.state.String(),
		Executing:       s.state == executor.Executing,
		LastError:       s.lastError,
		TotalRows:       s.model.TotalRows(),
		TotalPages:      s.model.TotalPages(),
		CurrentPage:     s.model.CurrentPage(),
		PageSize:        s.model.PageSize(),
		ExecutionTimeMs: s.lastTimeMs,
	}
}

// Results returns the most recent successful result.
func (s *Session) Results() (query.Result, bool) {
	return s.exec.Results()
}

func (s *Session) Model() *results.Model {
	return s.model
}

func (s *Session) Charts() *chart.Manager {
	return s.charts
}

// Subscribe returns a channel of executor events for this session and a function that
// ends the subscription. The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan executor.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan executor.Event, s.buffer)
	select {
	case <-s.pumpDone:
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Session) Tables(ctx context.Context) ([]string, error) {
	return s.engine.ListTables(ctx)
}

// Export writes the rows of sqlText to path, formatted by its extension.
func (s *Session) Export(ctx context.Context, sqlText, path string) error {
	return s.engine.Export(ctx, sqlText, path)
}

// Close stops the executor, drains the event pump and closes the engine.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.exec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close executor: %w", err))
		}
		select {
		case <-s.pumpDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("drain events: %w", ctx.Err()))
		}
		if err := s.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("session closed", slog.String("path", s.Path))
	})
	return s.closeErr
}

// pump applies completions to the model and charts before subscribers see them.
func (s *Session) pump() {
	defer func() {
		s.mu.Lock()
		for id, ch := range s.subscribers {
			delete(s.subscribers, id)
			close(ch)
		}
		close(s.pumpDone)
		s.mu.Unlock()
	}()

	for event := range s.exec.Events() {
		if event.Kind == executor.EventCompleted {
			s.apply(event)
		}
		s.broadcast(event)
	}
}

// apply updates the model and charts first; the state flips only after that.
func (s *Session) apply(event executor.Event) {
	if event.Success {
		s.model.SetResults(event.Result)
		s.charts.SetData(event.Result, s.Path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Success {
		s.lastTimeMs = event.Result.ExecutionTimeMs()
	}
	s.state = event.State
	s.lastError = event.Error
}

func (s *Session) broadcast(event executor.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("subscriber lagging, event dropped", slog.Int("subscriber", id), slog.String("state", event.State.String()))
		}
	}
}
