package repl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/parquetsql/parquetsql/internal/chart"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/results"
)

// printer writes shell output: pterm tables for data, colored status lines otherwise.
type printer struct {
	out     io.Writer
	ok      *color.Color
	bad     *color.Color
	warn    *color.Color
	muted   *color.Color
	heading *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:     out,
		ok:      color.New(color.FgGreen),
		bad:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
		muted:   color.New(color.FgHiBlack),
		heading: color.New(color.FgCyan, color.Bold),
	}
}

func (p *printer) success(message string) {
	p.ok.Fprintln(p.out, "✓ "+message)
}

func (p *printer) failure(message string) {
	p.bad.Fprintln(p.out, "✗ "+message)
}

func (p *printer) warning(message string) {
	p.warn.Fprintln(p.out, "! "+message)
}

func (p *printer) info(message string) {
	p.muted.Fprintln(p.out, message)
}

func (p *printer) title(message string) {
	p.heading.Fprintln(p.out, message)
}

func (p *printer) table(headers []string, rows [][]string) {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		p.failure(fmt.Sprintf("render table: %v", err))
		return
	}
	fmt.Fprintln(p.out, rendered)
}

// page prints the model's current page and a footer locating it in the result.
func (p *printer) page(model *results.Model, elapsedMs int64) {
	columns := model.Columns()
	if len(columns) == 0 {
		p.success(fmt.Sprintf("Query OK (%dms)", elapsedMs))
		return
	}
	count := model.RowCount()
	rows := make([][]string, 0, count)
	for r := 0; r < count; r++ {
		row := make([]string, len(columns))
		for c := range columns {
			row[c] = model.DisplayText(r, c)
		}
		rows = append(rows, row)
	}
	p.table(columns, rows)
	p.footer(model, elapsedMs)
}

func (p *printer) footer(model *results.Model, elapsedMs int64) {
	pages := model.TotalPages()
	current := model.CurrentPage() + 1
	if pages == 0 {
		current = 0
	}
	line := fmt.Sprintf("Page %d of %d (%d rows, %d per page)", current, pages, model.TotalRows(), model.PageSize())
	if elapsedMs >= 0 {
		line += fmt.Sprintf(" in %dms", elapsedMs)
	}
	p.info(line)
}

func (p *printer) columns(infos []chart.ColumnInfo) {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		detail := ""
		switch info.Type {
		case chart.Numeric:
			detail = fmt.Sprintf("min %s, max %s", chart.FormatValue(query.Double(info.Min), chart.Numeric), chart.FormatValue(query.Double(info.Max), chart.Numeric))
		case chart.String:
			detail = strconv.Itoa(len(info.UniqueValues)) + " distinct"
		}
		rows = append(rows, []string{info.Name, info.TypeName, detail})
	}
	p.table([]string{"Column", "Type", "Summary"}, rows)
}

// series prints chart points as a two-column table under the chart title.
func (p *printer) series(series chart.Series) {
	p.title(series.Title)
	if series.Len() == 0 {
		p.warning("No data to plot")
		return
	}
	labelled := len(series.XLabels) == series.Len()
	rows := make([][]string, 0, series.Len())
	for i, y := range series.YValues {
		x := ""
		if labelled {
			x = series.XLabels[i]
		} else if i < len(series.XValues) {
			x = strconv.FormatFloat(series.XValues[i], 'g', -1, 64)
		}
		rows = append(rows, []string{x, strconv.FormatFloat(y, 'g', -1, 64)})
	}
	p.table([]string{series.XAxisTitle, series.YAxisTitle}, rows)
}
