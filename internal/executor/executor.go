package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/query"
)

var (
	ErrAlreadyExecuting = errors.New("query already executing")
	ErrClosed           = errors.New("executor closed")
)

// CancelledMessage is reported for queries whose cancellation token was set before
// their completion was delivered.
const CancelledMessage = "query cancelled by user"

type State int32

const (
	Idle State = iota
	Executing
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
)

type Event struct {
	Kind    EventKind
	State   State
	Success bool
	Error   string
	Result  query.Result
	Message string
}

type Options struct {
	// ShutdownTimeout bounds how long Close waits for a running query before
	// interrupting it.
	ShutdownTimeout time.Duration
	// ShutdownGrace bounds the wait after the interrupt before the worker is abandoned.
	ShutdownGrace time.Duration
	EventBuffer   int
}

func DefaultOptions() Options {
	return Options{
		ShutdownTimeout: 5 * time.Second,
		ShutdownGrace:   2 * time.Second,
		EventBuffer:     32,
	}
}

// Executor runs one query at a time on a dedicated worker goroutine and reports
// completion on Events.
type Executor struct {
	engine query.Engine
	logger *slog.Logger
	opts   Options

	mu           sync.Mutex
	state        State
	closed       bool
	eventsClosed bool

	cancelRequested atomic.Bool
	latest          atomic.Pointer[query.Result]

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan string
	events chan Event
	stop   chan struct{}
	done   chan struct{}
}

func New(engine query.Engine, logger *slog.Logger, opts Options) *Executor {
	defaults := DefaultOptions()
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaults.ShutdownGrace
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaults.EventBuffer
	}
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		engine: engine,
		logger: logger,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan string, 1),
		events: make(chan Event, opts.EventBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Events delivers progress and completion events. It is closed once the worker exits.
func (e *Executor) Events() <-chan Event {
	return e.events
}

func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) IsExecuting() bool {
	return e.State() == Executing
}

// Results returns the most recent successful result.
func (e *Executor) Results() (query.Result, bool) {
	latest := e.latest.Load()
	if latest == nil {
		return query.Result{}, false
	}
	return *latest, true
}

// ExecuteQuery hands sqlText to the worker. It never waits for the query itself.
func (e *Executor) ExecuteQuery(sqlText string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == Executing {
		e.mu.Unlock()
		observability.IncrementQueriesRejected()
		e.logger.Warn("query rejected", slog.String("reason", ErrAlreadyExecuting.Error()), slog.Int("sql_len", len(sqlText)))
		return ErrAlreadyExecuting
	}
	e.state = Executing
	e.cancelRequested.Store(false)
	e.mu.Unlock()

	e.progress("Executing query...")
	e.jobs <- sqlText
	return nil
}

// CancelExecution marks the running query as cancelled. The engine keeps running
// unless Interrupt is also called. It reports whether a query was executing.
func (e *Executor) CancelExecution() bool {
	e.cancelRequested.Store(true)
	e.progress("Cancelling query...")
	return e.IsExecuting()
}

// Interrupt asks the engine to abort the statement in flight.
func (e *Executor) Interrupt() bool {
	return e.engine.Interrupt()
}

// Reset returns a finished executor to Idle.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Executing {
		e.state = Idle
	}
}

// Close stops accepting queries and waits for the worker. A query still running after
// ShutdownTimeout is interrupted; if the worker has not exited after ShutdownGrace it is
// abandoned and an error is returned.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	close(e.stop)

	timer := time.NewTimer(e.opts.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-e.done:
		e.cancel()
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	e.logger.Warn("executor worker still running, interrupting")
	e.engine.Interrupt()
	e.cancel()

	grace := time.NewTimer(e.opts.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-e.done:
		return nil
	case <-grace.C:
		e.logger.Error("executor worker abandoned")
		return fmt.Errorf("executor worker did not stop within %s", e.opts.ShutdownTimeout+e.opts.ShutdownGrace)
	}
}

func (e *Executor) run() {
	defer func() {
		e.mu.Lock()
		e.eventsClosed = true
		close(e.events)
		e.mu.Unlock()
		close(e.done)
	}()
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		select {
		case <-e.stop:
			return
		case sqlText := <-e.jobs:
			e.complete(e.execute(sqlText))
		}
	}
}

func (e *Executor) execute(sqlText string) (result query.Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("executor worker panic", slog.Any("panic", recovered))
			result = query.Failed(fmt.Sprintf("worker panic: %v", recovered))
		}
	}()
	return e.engine.Execute(e.ctx, sqlText)
}

func (e *Executor) complete(result query.Result) {
	cancelled := e.cancelRequested.Load()

	event := Event{Kind: EventCompleted}
	var message, outcome string
	e.mu.Lock()
	switch {
	case cancelled:
		e.state = Cancelled
		event.State = Cancelled
		event.Error = CancelledMessage
		message = "Query cancelled"
		outcome = observability.OutcomeCancelled
	case result.Success:
		e.state = Completed
		snapshot := result
		e.latest.Store(&snapshot)
		event.State = Completed
		event.Success = true
		event.Result = result
		message = fmt.Sprintf("Query completed in %dms, %d rows returned", result.ExecutionTimeMs(), result.TotalRows)
		outcome = observability.OutcomeSuccess
	default:
		e.state = Failed
		event.State = Failed
		event.Error = result.Error
		event.Result = result
		message = "Query failed"
		outcome = observability.OutcomeFailed
	}
	e.mu.Unlock()

	observability.ObserveQuery(outcome, result.ExecutionTime, result.TotalRows)
	e.logger.Info("query finished",
		slog.String("state", event.State.String()),
		slog.Int64("duration_ms", result.ExecutionTimeMs()),
		slog.Int("rows", result.TotalRows),
		slog.String("error", event.Error),
	)

	e.progress(message)
	e.deliver(event)
}

// deliver blocks until the completion is consumed unless the executor is stopping.
func (e *Executor) deliver(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}
	select {
	case e.events <- event:
	case <-e.stop:
		e.logger.Warn("completion dropped during shutdown", slog.String("state", event.State.String()))
	}
}

// progress is best effort: it is dropped when the event buffer is full.
func (e *Executor) progress(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eventsClosed {
		return
	}
	select {
	case e.events <- Event{Kind: EventProgress, State: e.state, Message: message}:
	default:
	}
}
