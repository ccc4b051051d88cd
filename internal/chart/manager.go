package chart

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/parquetsql/parquetsql/internal/query"
)

var (
	ErrChartNotFound = errors.New("chart not found")
	ErrInvalidBins   = errors.New("invalid histogram bin count")
)

// ValidateBins accepts zero, meaning the default, or a count within
// [MinHistogramBins, MaxHistogramBins].
func ValidateBins(bins int) error {
	if bins == 0 || (bins >= MinHistogramBins && bins <= MaxHistogramBins) {
		return nil
	}
	return fmt.Errorf("%w: %d is outside [%d, %d]", ErrInvalidBins, bins, MinHistogramBins, MaxHistogramBins)
}

type Kind int

const (
	Bar Kind = iota
	Line
	Scatter
	Pie
	Histogram
)

var kindNames = []string{"bar", "line", "scatter", "pie", "histogram"}

func (k Kind) String() string {
	if k < Bar || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "hist" {
		return Histogram, nil
	}
	for i, candidate := range kindNames {
		if candidate == name {
			return Kind(i), nil
		}
	}
	return Bar, fmt.Errorf("unknown chart kind %q", name)
}

// Config selects what a chart shows. Empty X and Y fall back to the first and second
// result columns; Y is the value column for pie charts and unused for histograms.
type Config struct {
	Kind        Kind
	X           string
	Y           string
	GroupBy     string
	Aggregation Aggregation
	Bins        int
}

type ChartID uint64

// Chart is one registry entry. It carries configuration only.
type Chart struct {
	ID     ChartID
	Title  string
	Config Config
}

// Manager owns the charts of one data source and the result they render from.
type Manager struct {
	mu          sync.RWMutex
	defaultBins int
	nextID      ChartID
	charts      map[ChartID]*Chart
	order       []ChartID
	data        query.Result
	fileKey     string
	saved       map[string][]Chart
}

// NewManager starts with a single default chart. defaultBins applies to histograms
// configured without a bin count.
func NewManager(defaultBins int) *Manager {
	if defaultBins <= 0 {
		defaultBins = DefaultHistogramBins
	}
	defaultBins = min(defaultBins, MaxHistogramBins)
	m := &Manager{
		defaultBins: defaultBins,
		charts:      make(map[ChartID]*Chart),
		saved:       make(map[string][]Chart),
	}
	m.addLocked("Chart 1", Config{})
	return m
}

// Add appends a chart. An empty title becomes "Chart N".
func (m *Manager) Add(title string) Chart {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("Chart %d", len(m.order)+1)
	}
	return *m.addLocked(title, Config{})
}

func (m *Manager) addLocked(title string, cfg Config) *Chart {
	m.nextID++
	chart := &Chart{ID: m.nextID, Title: title, Config: cfg}
	m.charts[chart.ID] = chart
	m.order = append(m.order, chart.ID)
	return chart
}

// Remove deletes a chart. The last remaining chart is reset instead of removed.
func (m *Manager) Remove(id ChartID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chart, ok := m.charts[id]
	if !ok {
		return fmt.Errorf("remove chart %d: %w", id, ErrChartNotFound)
	}
	if len(m.order) == 1 {
		chart.Config = Config{}
		return nil
	}
	delete(m.charts, id)
	for i, candidate := range m.order {
		if candidate == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Manager) Get(id ChartID) (Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chart, ok := m.charts[id]
	if !ok {
		return Chart{}, fmt.Errorf("get chart %d: %w", id, ErrChartNotFound)
	}
	return *chart, nil
}

// List returns the charts in creation order.
func (m *Manager) List() []Chart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked()
}

func (m *Manager) listLocked() []Chart {
	charts := make([]Chart, 0, len(m.order))
	for _, id := range m.order {
		charts = append(charts, *m.charts[id])
	}
	return charts
}

func (m *Manager) Configure(id ChartID, cfg Config) error {
	if err := ValidateBins(cfg.Bins); err != nil {
		return fmt.Errorf("configure chart %d: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chart, ok := m.charts[id]
	if !ok {
		return fmt.Errorf("configure chart %d: %w", id, ErrChartNotFound)
	}
	chart.Config = cfg
	return nil
}

// SetData replaces the result every chart renders from. Moving to a different non-empty
// fileKey stashes the current charts under the old key and restores those saved for the
// new one, or a single default chart when none were saved.
func (m *Manager) SetData(result query.Result, fileKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = result
	if fileKey == "" || fileKey == m.fileKey {
		m.fileKey = fileKey
		return
	}

	if m.fileKey != "" {
		m.saved[m.fileKey] = m.listLocked()
	}
	m.fileKey = fileKey
	m.charts = make(map[ChartID]*Chart)
	m.order = nil

	saved, ok := m.saved[fileKey]
	if !ok || len(saved) == 0 {
		m.addLocked("Chart 1", Config{})
		return
	}
	delete(m.saved, fileKey)
	for _, chart := range saved {
		restored := chart
		m.charts[restored.ID] = &restored
		m.order = append(m.order, restored.ID)
	}
}

// Clear drops every chart but the first, resets it, and forgets the current data.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		m.addLocked("Chart 1", Config{})
	}
	first := m.charts[m.order[0]]
	first.Config = Config{}
	m.charts = map[ChartID]*Chart{first.ID: first}
	m.order = []ChartID{first.ID}
	m.data = query.Result{}
	m.fileKey = ""
}

func (m *Manager) FileKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fileKey
}

func (m *Manager) Data() query.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Columns analyses the current data.
func (m *Manager) Columns() []ColumnInfo {
	return AnalyzeColumns(m.Data())
}

// Render builds the series for a chart from the current data.
func (m *Manager) Render(id ChartID) (Series, error) {
	m.mu.RLock()
	chart, ok := m.charts[id]
	if !ok {
		m.mu.RUnlock()
		return Series{}, fmt.Errorf("render chart %d: %w", id, ErrChartNotFound)
	}
	cfg := chart.Config
	data := m.data
	bins := m.defaultBins
	m.mu.RUnlock()

	if cfg.Bins <= 0 {
		cfg.Bins = bins
	}
	return RenderConfig(data, cfg), nil
}

// RenderConfig builds a series for cfg without a registry.
func RenderConfig(result query.Result, cfg Config) Series {
	if cfg.X == "" && len(result.Columns) > 0 {
		cfg.X = result.Columns[0]
	}
	if cfg.Y == "" && len(result.Columns) > 1 {
		cfg.Y = result.Columns[1]
	}
	switch cfg.Kind {
	case Line:
		return PrepareLine(result, cfg.X, cfg.Y)
	case Scatter:
		return PrepareScatter(result, cfg.X, cfg.Y)
	case Pie:
		return PreparePie(result, cfg.X, cfg.Y, cfg.Aggregation)
	case Histogram:
		return PrepareHistogram(result, cfg.X, cfg.Bins)
	case Bar:
		return PrepareBar(result, cfg.X, cfg.Y, cfg.GroupBy, cfg.Aggregation)
	default:
		return PrepareBar(result, cfg.X, cfg.Y, cfg.GroupBy, cfg.Aggregation)
	}
}
