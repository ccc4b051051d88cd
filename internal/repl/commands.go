package repl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/parquetsql/parquetsql/internal/chart"
)

const helpText = `Statements end with ';'. Ctrl-C while a query runs cancels it.

.open PATH                          open a parquet, csv or tsv file (local or s3://)
.sessions                           list open files, the current one marked with *
.tables                             list tables in the current session
.columns                            describe the columns of the current result
.page N | .next | .prev | .first | .last
                                    move through result pages
.pagesize N                         rows per page
.chart bar|line|scatter|pie X Y [AGG]
                                    plot the current result (AGG: count, sum, average, min, max, "std dev")
.hist COL [BINS]                    histogram of a numeric column
.export PATH                        write the last statement's rows to PATH (.parquet, .csv, .tsv)
.cancel                             cancel the running query
.help                               show this help
.quit                               leave the shell`

// command runs one dot command and reports whether the shell should exit.
func (s *Shell) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case ".quit", ".exit":
		return true, nil
	case ".help":
		s.ui.info(helpText)
		return false, nil
	case ".open":
		if len(args) != 1 {
			return false, errors.New("usage: .open PATH")
		}
		return false, s.Open(ctx, args[0])
	case ".sessions":
		s.sessions()
		return false, nil
	case ".tables":
		return false, s.tables(ctx)
	case ".columns":
		return false, s.describeColumns()
	case ".page":
		if len(args) != 1 {
			return false, errors.New("usage: .page N")
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid page %q", args[0])
		}
		return false, s.navigate(func(m pager) bool { return m.SetCurrentPage(page - 1) })
	case ".next":
		return false, s.navigate(pager.NextPage)
	case ".prev":
		return false, s.navigate(pager.PreviousPage)
	case ".first":
		return false, s.navigate(pager.FirstPage)
	case ".last":
		return false, s.navigate(pager.LastPage)
	case ".pagesize":
		return false, s.pageSize(args)
	case ".chart":
		return false, s.chart(args)
	case ".hist":
		return false, s.histogram(args)
	case ".export":
		return false, s.export(ctx, args)
	case ".cancel":
		return false, s.cancel()
	default:
		return false, fmt.Errorf("unknown command %s, try .help", name)
	}
}

type pager interface {
	SetCurrentPage(page int) bool
	NextPage() bool
	PreviousPage() bool
	FirstPage() bool
	LastPage() bool
}

func (s *Shell) navigate(move func(pager) bool) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	model := session.Model()
	if !move(model) {
		return fmt.Errorf("no such page (%d pages)", model.TotalPages())
	}
	s.ui.page(model, -1)
	return nil
}

func (s *Shell) pageSize(args []string) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: .pagesize N")
	}
	size, err := strconv.Atoi(args[0])
	if err != nil || size <= 0 {
		return fmt.Errorf("invalid page size %q", args[0])
	}
	model := session.Model()
	model.SetPageSize(size)
	s.ui.page(model, -1)
	return nil
}

func (s *Shell) tables(ctx context.Context) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	names, err := session.Tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name})
	}
	s.ui.table([]string{"Table"}, rows)
	return nil
}

func (s *Shell) describeColumns() error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	infos := session.Charts().Columns()
	if len(infos) == 0 {
		return errors.New("no result to describe, run a query first")
	}
	s.ui.columns(infos)
	return nil
}

func (s *Shell) chart(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: .chart bar|line|scatter|pie X Y [AGG]")
	}
	kind, err := chart.ParseKind(args[0])
	if err != nil {
		return err
	}
	cfg := chart.Config{Kind: kind, X: args[1], Y: args[2]}
	if len(args) > 3 {
		cfg.Aggregation = chart.ParseAggregation(strings.Join(args[3:], " "))
	}
	return s.plot(cfg)
}

func (s *Shell) histogram(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: .hist COL [BINS]")
	}
	cfg := chart.Config{Kind: chart.Histogram, X: args[0]}
	if len(args) == 2 {
		bins, err := strconv.Atoi(args[1])
		if err != nil || bins == 0 {
			return fmt.Errorf("invalid bin count %q", args[1])
		}
		if err := chart.ValidateBins(bins); err != nil {
			return err
		}
		cfg.Bins = bins
	}
	return s.plot(cfg)
}

// plot configures the session's first chart and prints its series.
func (s *Shell) plot(cfg chart.Config) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	charts := session.Charts()
	if charts.Data().Columns == nil {
		return errors.New("no result to plot, run a query first")
	}
	if err := checkColumns(charts.Data().Columns, cfg); err != nil {
		return err
	}
	first := charts.List()[0]
	if err := charts.Configure(first.ID, cfg); err != nil {
		return err
	}
	series, err := charts.Render(first.ID)
	if err != nil {
		return err
	}
	s.ui.series(series)
	return nil
}

func checkColumns(columns []string, cfg chart.Config) error {
	names := []string{cfg.X}
	if cfg.Kind != chart.Histogram {
		names = append(names, cfg.Y)
	}
	for _, name := range names {
		if !slices.Contains(columns, name) {
			return fmt.Errorf("unknown column %q", name)
		}
	}
	return nil
}

func (s *Shell) export(ctx context.Context, args []string) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: .export PATH")
	}
	sqlText := s.lastSQL
	if sqlText == "" {
		sqlText = session.DefaultQuery()
	}
	if err := session.Export(ctx, sqlText, args[0]); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	s.ui.success("Exported to " + args[0])
	return nil
}

func (s *Shell) cancel() error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	if !session.Cancel(true) {
		s.ui.info("No query is running")
		return nil
	}
	s.ui.warning("Cancelling query...")
	return nil
}

func (s *Shell) sessions() {
	open := s.Workspace.List()
	if len(open) == 0 {
		s.ui.info("No files open")
		return
	}
	rows := make([][]string, 0, len(open))
	for _, session := range open {
		marker := ""
		if session == s.session {
			marker = "*"
		}
		rows = append(rows, []string{marker, session.TableName, session.Path, session.Status().State})
	}
	s.ui.table([]string{"", "Table", "Path", "State"}, rows)
}
