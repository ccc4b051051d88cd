package repl

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/workspace"
)

func init() {
	color.NoColor = true
	pterm.DisableStyling()
}

type stubEngine struct {
	mu      sync.Mutex
	queries []string
	exports []string
	started chan string
	stop    chan struct{}
}

func newStubEngine() *stubEngine {
	return &stubEngine{started: make(chan string, 1), stop: make(chan struct{}, 1)}
}

func (e *stubEngine) Execute(ctx context.Context, sqlText string) query.Result {
	e.mu.Lock()
	e.queries = append(e.queries, sqlText)
	e.mu.Unlock()

	if strings.HasPrefix(sqlText, "slow") {
		e.started <- sqlText
		select {
		case <-e.stop:
		case <-ctx.Done():
		}
		return query.Failed("query error: INTERRUPT Error: Interrupted!")
	}
	if strings.HasPrefix(sqlText, "broken") {
		return query.Failed("query error: Parser Error: syntax error")
	}
	rows := make([][]query.CellValue, 25)
	for i := range rows {
		region := "east"
		if i%2 == 1 {
			region = "west"
		}
		rows[i] = []query.CellValue{query.Text(region), query.Double(float64(i * 2))}
	}
	return query.Result{Columns: []string{"region", "amount"}, Rows: rows, Success: true, TotalRows: len(rows), ExecutionTime: 4 * time.Millisecond}
}

func (e *stubEngine) Interrupt() bool {
	select {
	case e.stop <- struct{}{}:
	default:
	}
	return true
}

func (e *stubEngine) LoadFile(_ context.Context, path string) (string, error) {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
}

func (e *stubEngine) ListTables(context.Context) ([]string, error) {
	return []string{"sales"}, nil
}

func (e *stubEngine) Export(_ context.Context, sqlText, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports = append(e.exports, sqlText+" -> "+path)
	return nil
}

func (e *stubEngine) Close() error { return nil }

func (e *stubEngine) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

type scriptLine struct {
	text string
	err  error
}

// script feeds canned lines, then io.EOF.
type script struct {
	mu      sync.Mutex
	lines   []scriptLine
	prompts []string
	history []string
}

func lines(texts ...string) *script {
	s := &script{}
	for _, text := range texts {
		s.lines = append(s.lines, scriptLine{text: text})
	}
	return s
}

func (s *script) Prompt(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	next := s.lines[0]
	s.lines = s.lines[1:]
	return next.text, next.err
}

func (s *script) AppendHistory(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
}

func newTestShell(t *testing.T, engine *stubEngine, input LineReader) (*Shell, *bytes.Buffer) {
	t.Helper()
	ws := &workspace.Workspace{
		Opener: func(context.Context) (workspace.Engine, error) { return engine, nil },
		Config: workspace.Config{PageSize: 10, HistogramBins: 5},
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	})
	out := &bytes.Buffer{}
	return &Shell{Workspace: ws, Input: input, Out: out}, out
}

func runShell(t *testing.T, shell *Shell) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shell.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func assertContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunOpensFileAndPagesResults(t *testing.T) {
	engine := newStubEngine()
	input := lines(
		".open /data/sales.csv",
		"SELECT region,",
		"  amount FROM sales;",
		".next",
		".page 3",
		".pagesize 50",
		".quit",
		"never read;",
	)
	shell, out := newTestShell(t, engine, input)
	runShell(t, shell)

	assertContains(t, out.String(),
		`Opened /data/sales.csv as table "sales"`,
		"Page 1 of 3 (25 rows, 10 per page) in 4ms",
		"Page 2 of 3 (25 rows, 10 per page)",
		"Page 3 of 3 (25 rows, 10 per page)",
		"Page 1 of 1 (25 rows, 50 per page)",
		"west",
	)

	queries := engine.executed()
	want := []string{`SELECT * FROM "sales" LIMIT 1000;`, "SELECT region,\n  amount FROM sales;"}
	if len(queries) != len(want) || queries[0] != want[0] || queries[1] != want[1] {
		t.Fatalf("executed = %q, want %q", queries, want)
	}
	if shell.Session() == nil || shell.Session().TableName != "sales" {
		t.Fatalf("Session() = %+v", shell.Session())
	}
	if got := input.prompts[2]; got != continuationPrompt {
		t.Fatalf("prompt after unterminated line = %q", got)
	}
}

func TestAbortDiscardsPendingStatement(t *testing.T) {
	engine := newStubEngine()
	input := lines(".open /data/sales.csv", "SELECT broken")
	input.lines = append(input.lines, scriptLine{err: ErrAborted}, scriptLine{text: "SELECT 2;"})
	shell, _ := newTestShell(t, engine, input)
	runShell(t, shell)

	queries := engine.executed()
	if len(queries) != 2 || queries[1] != "SELECT 2;" {
		t.Fatalf("executed = %q", queries)
	}
}

func TestQueryFailureIsPrintedAndShellContinues(t *testing.T) {
	engine := newStubEngine()
	shell, out := newTestShell(t, engine, lines(".open /data/sales.csv", "broken sql;", "SELECT 1;"))
	runShell(t, shell)

	assertContains(t, out.String(), "✗ query error: Parser Error: syntax error")
	if n := len(engine.executed()); n != 3 {
		t.Fatalf("executed %d statements, want 3", n)
	}
}

func TestCommandsRequireOpenFile(t *testing.T) {
	shell, out := newTestShell(t, newStubEngine(), lines("SELECT 1;", ".next", ".tables", ".bogus", ".page"))
	runShell(t, shell)

	assertContains(t, out.String(),
		"no file open, use .open PATH",
		"unknown command .bogus, try .help",
		"usage: .page N",
	)
}

func TestInterruptCancelsRunningQuery(t *testing.T) {
	engine := newStubEngine()
	interrupts := make(chan os.Signal, 1)
	shell, out := newTestShell(t, engine, lines(".open /data/sales.csv", "slow query;"))
	shell.Interrupts = interrupts

	done := make(chan error, 1)
	go func() { done <- shell.Run(context.Background()) }()

	select {
	case <-engine.started:
	case <-time.After(3 * time.Second):
		t.Fatal("slow query never started")
	}
	interrupts <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("shell did not return after interrupt")
	}
	assertContains(t, out.String(), "Cancelling query...", "query cancelled by user")
	if shell.Session().Model().TotalRows() != 25 {
		t.Fatalf("cancelled query replaced the previous result")
	}
}

func TestChartCommands(t *testing.T) {
	engine := newStubEngine()
	shell, out := newTestShell(t, engine, lines(
		".open /data/sales.csv",
		".chart pie region amount sum",
		".hist amount 6",
		".hist amount 500",
		".hist amount 3",
		".chart bar nope amount",
		".chart radar region amount",
		".columns",
	))
	runShell(t, shell)

	assertContains(t, out.String(),
		"region Distribution",
		"Histogram of amount",
		"[0.0, 8.0)",
		"500 is outside [5, 100]",
		"3 is outside [5, 100]",
		`unknown column "nope"`,
		`unknown chart kind "radar"`,
		"Numeric",
		"2 distinct",
	)
	charts := shell.Session().Charts().List()
	if len(charts) != 1 || charts[0].Config.Bins != 6 {
		t.Fatalf("charts = %+v", charts)
	}
}

func TestExportUsesLastStatement(t *testing.T) {
	engine := newStubEngine()
	shell, out := newTestShell(t, engine, lines(
		".open /data/sales.csv",
		"SELECT region FROM sales;",
		".export /tmp/out.csv",
		".tables",
		".sessions",
	))
	runShell(t, shell)

	engine.mu.Lock()
	exports := append([]string(nil), engine.exports...)
	engine.mu.Unlock()
	if len(exports) != 1 || exports[0] != "SELECT region FROM sales; -> /tmp/out.csv" {
		t.Fatalf("exports = %q", exports)
	}
	assertContains(t, out.String(), "Exported to /tmp/out.csv", "sales", "/data/sales.csv", "*")
}
