package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/workspace"
)

const (
	prompt             = "parquetsql> "
	continuationPrompt = "        ...> "
)

// ErrAborted is returned by a LineReader when the user aborts the current line.
var ErrAborted = errors.New("prompt aborted")

// LineReader supplies input lines. Prompt returns io.EOF at end of input.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
}

// Shell is an interactive SQL prompt over a workspace. Statements end with ';' and run
// on the session's executor; lines starting with '.' are shell commands.
type Shell struct {
	Workspace *workspace.Workspace
	Input     LineReader
	Out       io.Writer
	// Interrupts cancels the statement being waited on, typically fed by signal.Notify.
	Interrupts <-chan os.Signal
	Logger     *slog.Logger

	session *workspace.Session
	lastSQL string
	buffer  strings.Builder
	ui      *printer
}

func (s *Shell) ensureDefaults() {
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.Logger == nil {
		s.Logger = observability.DiscardLogger()
	}
	if s.ui == nil {
		s.ui = newPrinter(s.Out)
	}
}

// Session returns the session statements run against, or nil before a file is opened.
func (s *Shell) Session() *workspace.Session {
	return s.session
}

// Run reads input until end of input, .quit or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Input == nil {
		return errors.New("repl: no input configured")
	}
	s.ui.info("Enter SQL terminated by ';' or .help for commands.")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		current := prompt
		if s.buffer.Len() > 0 {
			current = continuationPrompt
		}
		line, err := s.Input.Prompt(current)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrAborted):
			s.buffer.Reset()
			continue
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		s.Input.AppendHistory(line)

		if s.buffer.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			quit, err := s.command(ctx, trimmed)
			if err != nil {
				s.ui.failure(err.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		if s.buffer.Len() > 0 {
			s.buffer.WriteByte('\n')
		}
		s.buffer.WriteString(line)
		if strings.HasSuffix(trimmed, ";") {
			sqlText := s.buffer.String()
			s.buffer.Reset()
			if _, err := s.Exec(ctx, sqlText); err != nil {
				s.ui.failure(err.Error())
			}
		}
	}
}

// Open makes path the current session and runs its default query.
func (s *Shell) Open(ctx context.Context, path string) error {
	s.ensureDefaults()
	session, err := s.Workspace.Open(ctx, path)
	if err != nil {
		return err
	}
	s.session = session
	s.ui.success(fmt.Sprintf("Opened %s as table %q", session.Path, session.TableName))
	_, err = s.Exec(ctx, session.DefaultQuery())
	return err
}

// Use makes session the one statements run against.
func (s *Shell) Use(session *workspace.Session) {
	s.session = session
}

// Exec runs sqlText on the current session and waits for it. While waiting, an
// interrupt cancels the statement and asks the engine to stop. The completion is
// printed and returned; the error is reserved for problems dispatching the statement.
func (s *Shell) Exec(ctx context.Context, sqlText string) (executor.Event, error) {
	s.ensureDefaults()
	session, err := s.requireSession()
	if err != nil {
		return executor.Event{}, err
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	s.drainInterrupts()

	if err := session.Execute(sqlText); err != nil {
		if errors.Is(err, executor.ErrAlreadyExecuting) {
			return executor.Event{}, errors.New("a query is already running, use .cancel first")
		}
		return executor.Event{}, fmt.Errorf("execute query: %w", err)
	}
	s.lastSQL = sqlText
	s.Logger.Debug("statement dispatched", slog.String("session_id", session.ID), slog.Int("sql_len", len(sqlText)))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return executor.Event{}, errors.New("session closed while the query was running")
			}
			if event.Kind != executor.EventCompleted {
				continue
			}
			s.report(session, event)
			return event, nil
		case <-s.Interrupts:
			s.ui.warning("Cancelling query...")
			session.Cancel(true)
		case <-ctx.Done():
			session.Cancel(true)
			return executor.Event{}, ctx.Err()
		}
	}
}

func (s *Shell) report(session *workspace.Session, event executor.Event) {
	switch event.State {
	case executor.Completed:
		s.ui.page(session.Model(), event.Result.ExecutionTimeMs())
	case executor.Cancelled:
		s.ui.warning(event.Error)
	default:
		s.ui.failure(event.Error)
	}
}

func (s *Shell) requireSession() (*workspace.Session, error) {
	if s.session == nil {
		return nil, errors.New("no file open, use .open PATH")
	}
	return s.session, nil
}

func (s *Shell) drainInterrupts() {
	for {
		select {
		case <-s.Interrupts:
		default:
			return
		}
	}
}
