package results

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/parquetsql/parquetsql/internal/query"
)

const (
	DefaultPageSize = 1000
	NullMarker      = "<NULL>"
	MaxTextLength   = 200
	DisplayLayout   = "2006-01-02 15:04:05"
)

// PageListener is told the current page and page count after every effective change.
type PageListener func(page, totalPages int)

// Model holds every row of one result and exposes a single page of it at a time.
type Model struct {
	mu          sync.RWMutex
	result      query.Result
	pageSize    int
	currentPage int
	visible     [][]query.CellValue
	listeners   []PageListener
}

func New(pageSize int) *Model {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Model{pageSize: pageSize}
}

func (m *Model) OnPageChanged(listener PageListener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// SetResults replaces the held rows and moves to the first page.
func (m *Model) SetResults(result query.Result) {
	m.mu.Lock()
	m.result = result
	m.currentPage = 0
	m.updateVisibleLocked()
	page, total, listeners := m.snapshotLocked()
	m.mu.Unlock()
	notify(listeners, page, total)
}

func (m *Model) Clear() {
	m.mu.Lock()
	m.result = query.Result{}
	m.currentPage = 0
	m.visible = nil
	listeners := append([]PageListener(nil), m.listeners...)
	m.mu.Unlock()
	notify(listeners, 0, 0)
}

// SetCurrentPage ignores pages outside [0, TotalPages()).
func (m *Model) SetCurrentPage(page int) bool {
	m.mu.Lock()
	if page < 0 || page >= m.totalPagesLocked() {
		m.mu.Unlock()
		return false
	}
	m.currentPage = page
	m.updateVisibleLocked()
	current, total, listeners := m.snapshotLocked()
	m.mu.Unlock()
	notify(listeners, current, total)
	return true
}

// SetPageSize ignores non-positive or unchanged sizes and clamps the current page.
func (m *Model) SetPageSize(size int) bool {
	m.mu.Lock()
	if size <= 0 || size == m.pageSize {
		m.mu.Unlock()
		return false
	}
	m.pageSize = size
	if total := m.totalPagesLocked(); m.currentPage >= total {
		m.currentPage = max(total-1, 0)
	}
	m.updateVisibleLocked()
	current, total, listeners := m.snapshotLocked()
	m.mu.Unlock()
	notify(listeners, current, total)
	return true
}

func (m *Model) FirstPage() bool {
	return m.SetCurrentPage(0)
}

func (m *Model) LastPage() bool {
	return m.SetCurrentPage(m.TotalPages() - 1)
}

func (m *Model) NextPage() bool {
	return m.SetCurrentPage(m.CurrentPage() + 1)
}

func (m *Model) PreviousPage() bool {
	return m.SetCurrentPage(m.CurrentPage() - 1)
}

func (m *Model) TotalPages() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalPagesLocked()
}

func (m *Model) CurrentPage() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentPage
}

func (m *Model) PageSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageSize
}

func (m *Model) TotalRows() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.result.Rows)
}

func (m *Model) Columns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.result.Columns...)
}

// Result returns the full result currently held.
func (m *Model) Result() query.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result
}

// VisibleRows returns the rows of the current page.
func (m *Model) VisibleRows() [][]query.CellValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]query.CellValue(nil), m.visible...)
}

// PageView is one page of the held result, taken under a single lock.
type PageView struct {
	Columns    []string
	Rows       [][]query.CellValue
	Page       int
	PageSize   int
	TotalPages int
	TotalRows  int
}

// Page reads a page without moving the current page or changing the page size.
// size <= 0 uses the model's page size. A negative page selects the current page,
// clamped to the last page under size. ok is false for a page outside
// [0, TotalPages); an empty result still has page 0.
func (m *Model) Page(page, size int) (PageView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if size <= 0 {
		size = m.pageSize
	}
	total := len(m.result.Rows)
	pages := (total + size - 1) / size
	if page < 0 {
		page = min(m.currentPage, max(pages-1, 0))
	}
	view := PageView{
		Columns:    append([]string(nil), m.result.Columns...),
		Rows:       [][]query.CellValue{},
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		TotalRows:  total,
	}
	if page == 0 && pages == 0 {
		return view, true
	}
	if page >= pages {
		return view, false
	}
	start := page * size
	view.Rows = append(view.Rows, m.result.Rows[start:min(total, start+size)]...)
	return view, true
}

func (m *Model) RowCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visible)
}

func (m *Model) ColumnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.result.Columns)
}

// Cell returns the value at (row, col) of the current page.
func (m *Model) Cell(row, col int) (query.CellValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if row < 0 || row >= len(m.visible) || col < 0 || col >= len(m.result.Columns) {
		return query.CellValue{}, false
	}
	cells := m.visible[row]
	if col >= len(cells) {
		return query.CellValue{}, false
	}
	return cells[col], true
}

// DisplayText formats the cell at (row, col) of the current page, or "" when out of range.
func (m *Model) DisplayText(row, col int) string {
	cell, ok := m.Cell(row, col)
	if !ok {
		return ""
	}
	return FormatCell(cell)
}

func (m *Model) totalPagesLocked() int {
	total := len(m.result.Rows)
	if total == 0 {
		return 0
	}
	return (total + m.pageSize - 1) / m.pageSize
}

func (m *Model) updateVisibleLocked() {
	total := len(m.result.Rows)
	start := m.currentPage * m.pageSize
	if start >= total {
		m.visible = [][]query.CellValue{}
		return
	}
	end := min(total, start+m.pageSize)
	m.visible = m.result.Rows[start:end]
}

func (m *Model) snapshotLocked() (int, int, []PageListener) {
	return m.currentPage, m.totalPagesLocked(), append([]PageListener(nil), m.listeners...)
}

func notify(listeners []PageListener, page, total int) {
	for _, listener := range listeners {
		listener(page, total)
	}
}

// FormatCell renders a cell for display without touching the stored value.
func FormatCell(cell query.CellValue) string {
	switch cell.Kind() {
	case query.KindNull:
		return NullMarker
	case query.KindBool:
		v, _ := cell.AsBool()
		return strconv.FormatBool(v)
	case query.KindInt64:
		v, _ := cell.AsInt64()
		return strconv.FormatInt(v, 10)
	case query.KindDouble:
		v, _ := cell.AsDouble()
		return formatDouble(v)
	case query.KindText:
		v, _ := cell.AsText()
		if utf8.RuneCountInString(v) > MaxTextLength {
			return string([]rune(v)[:MaxTextLength]) + "..."
		}
		return v
	case query.KindDateTime:
		v, _ := cell.AsDateTime()
		return v.Format(DisplayLayout)
	default:
		return cell.String()
	}
}

func formatDouble(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v == 0 {
		return "0"
	}
	if math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	text := strconv.FormatFloat(v, 'f', 6, 64)
	text = strings.TrimRight(text, "0")
	text = strings.TrimSuffix(text, ".")
	if text == "-0" {
		return "0"
	}
	return text
}

// IsNumeric reports whether a renderer should right-align the cell.
func IsNumeric(cell query.CellValue) bool {
	kind := cell.Kind()
	return kind == query.KindInt64 || kind == query.KindDouble
}
