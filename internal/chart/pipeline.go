package chart

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/parquetsql/parquetsql/internal/query"
)

// DefaultHistogramBins is used when a histogram is requested with no positive bin count.
const DefaultHistogramBins = 20

// Bin counts a caller may ask for. Zero still selects the default.
const (
	MinHistogramBins = 5
	MaxHistogramBins = 100
)

// Groups maps a group key to the values collected for it.
type Groups map[string][]float64

// Keys returns the group keys in ascending order.
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for key := range g {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GroupBy buckets rows by the string form of keyCol. Count contributes 1 per row;
// every other aggregation contributes the numeric value of valueCol and skips rows where
// it does not coerce.
func GroupBy(result query.Result, keyCol, valueCol string, agg Aggregation) Groups {
	groups := Groups{}
	keyIndex := result.ColumnIndex(keyCol)
	valueIndex := result.ColumnIndex(valueCol)
	if keyIndex < 0 {
		return groups
	}
	for row := range result.Rows {
		key, ok := result.Cell(row, keyIndex)
		if !ok {
			continue
		}
		label := key.String()
		if agg == Count {
			groups[label] = append(groups[label], 1)
			continue
		}
		if valueIndex < 0 {
			continue
		}
		cell, ok := result.Cell(row, valueIndex)
		if !ok {
			continue
		}
		if v, ok := ToDouble(cell); ok {
			groups[label] = append(groups[label], v)
		}
	}
	return groups
}

// Aggregate reduces values. Empty input yields 0 for every aggregation and None yields
// the first value.
func Aggregate(values []float64, agg Aggregation) float64 {
	if len(values) == 0 {
		return 0
	}
	switch agg {
	case Count:
		return float64(len(values))
	case Sum:
		return sum(values)
	case Average:
		return sum(values) / float64(len(values))
	case Minimum:
		return slices.Min(values)
	case Maximum:
		return slices.Max(values)
	case PopulationStdDev:
		mean := sum(values) / float64(len(values))
		var squares float64
		for _, v := range values {
			squares += (v - mean) * (v - mean)
		}
		return math.Sqrt(squares / float64(len(values)))
	case None:
		return values[0]
	default:
		return values[0]
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// PrepareBar emits one bar per row when neither groupBy nor an aggregation is given,
// zero-filling values that do not coerce. Otherwise it emits one bar per x group in
// ascending key order. Grouping is always by the x column.
func PrepareBar(result query.Result, x, y, groupBy string, agg Aggregation) Series {
	series := Series{
		XAxisTitle: x,
		YAxisTitle: y,
		Title:      fmt.Sprintf("%s by %s", y, x),
		Categories: []string{y},
	}
	xIndex := result.ColumnIndex(x)
	yIndex := result.ColumnIndex(y)
	if xIndex < 0 || yIndex < 0 {
		return series
	}

	if groupBy == "" && agg == None {
		for row := range result.Rows {
			label, okX := result.Cell(row, xIndex)
			value, okY := result.Cell(row, yIndex)
			if !okX || !okY {
				continue
			}
			v, _ := ToDouble(value)
			series.XLabels = append(series.XLabels, label.String())
			series.YValues = append(series.YValues, v)
			series.XValues = append(series.XValues, float64(len(series.XValues)))
		}
		return series
	}

	groups := GroupBy(result, x, y, agg)
	for _, key := range groups.Keys() {
		series.XLabels = append(series.XLabels, key)
		series.YValues = append(series.YValues, Aggregate(groups[key], agg))
		series.XValues = append(series.XValues, float64(len(series.XValues)))
	}
	return series
}

type point struct {
	x, y float64
}

func numericPoints(result query.Result, xIndex, yIndex int) []point {
	points := make([]point, 0, len(result.Rows))
	for row := range result.Rows {
		xCell, okX := result.Cell(row, xIndex)
		yCell, okY := result.Cell(row, yIndex)
		if !okX || !okY {
			continue
		}
		xv, okX := ToDouble(xCell)
		yv, okY := ToDouble(yCell)
		if okX && okY {
			points = append(points, point{xv, yv})
		}
	}
	return points
}

// PrepareLine drops rows where either column fails to coerce and sorts by x.
func PrepareLine(result query.Result, x, y string) Series {
	series := Series{XAxisTitle: x, YAxisTitle: y, Title: fmt.Sprintf("%s vs %s", y, x)}
	xIndex := result.ColumnIndex(x)
	yIndex := result.ColumnIndex(y)
	if xIndex < 0 || yIndex < 0 {
		return series
	}
	points := numericPoints(result, xIndex, yIndex)
	sort.SliceStable(points, func(i, j int) bool { return points[i].x < points[j].x })
	for _, p := range points {
		series.XValues = append(series.XValues, p.x)
		series.YValues = append(series.YValues, p.y)
	}
	return series
}

// PrepareScatter is PrepareLine without the sort: points keep row order.
func PrepareScatter(result query.Result, x, y string) Series {
	series := Series{XAxisTitle: x, YAxisTitle: y, Title: fmt.Sprintf("%s vs %s", y, x)}
	xIndex := result.ColumnIndex(x)
	yIndex := result.ColumnIndex(y)
	if xIndex < 0 || yIndex < 0 {
		return series
	}
	for _, p := range numericPoints(result, xIndex, yIndex) {
		series.XValues = append(series.XValues, p.x)
		series.YValues = append(series.YValues, p.y)
	}
	return series
}

// PreparePie emits one slice per label group. None is treated as Count.
func PreparePie(result query.Result, label, value string, agg Aggregation) Series {
	series := Series{XAxisTitle: label, YAxisTitle: value, Title: fmt.Sprintf("%s Distribution", label)}
	if result.ColumnIndex(label) < 0 {
		return series
	}
	if agg == None {
		agg = Count
	}
	groups := GroupBy(result, label, value, agg)
	for _, key := range groups.Keys() {
		series.XLabels = append(series.XLabels, key)
		series.YValues = append(series.YValues, Aggregate(groups[key], agg))
	}
	return series
}

// PrepareHistogram counts the numeric values of col into bins equal-width buckets
// spanning [min, max]. Values at max land in the last bucket. bins is capped at
// MaxHistogramBins.
func PrepareHistogram(result query.Result, col string, bins int) Series {
	series := Series{
		XAxisTitle: col,
		YAxisTitle: "Frequency",
		Title:      fmt.Sprintf("Histogram of %s", col),
		Categories: []string{"Frequency"},
	}
	index := result.ColumnIndex(col)
	if index < 0 {
		return series
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	bins = min(bins, MaxHistogramBins)

	values := make([]float64, 0, len(result.Rows))
	for _, cell := range ColumnValues(result, index) {
		if v, ok := ToDouble(cell); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return series
	}

	lo, hi := slices.Min(values), slices.Max(values)
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range values {
		counts[binIndex(v, lo, width, bins)]++
	}
	for i, count := range counts {
		start := lo + float64(i)*width
		end := lo + float64(i+1)*width
		series.XLabels = append(series.XLabels, fmt.Sprintf("[%.1f, %.1f)", start, end))
		series.YValues = append(series.YValues, float64(count))
		series.XValues = append(series.XValues, float64(i))
	}
	return series
}

func binIndex(v, lo, width float64, bins int) int {
	if width <= 0 {
		return 0
	}
	index := int(math.Floor((v - lo) / width))
	return min(max(index, 0), bins-1)
}
