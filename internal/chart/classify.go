package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/query"
)

// typeThreshold is the share of non-null values a category must strictly exceed.
const typeThreshold = 0.8

// maxUniqueValues caps the distinct values collected for String columns.
const maxUniqueValues = 100

// DisplayLayout is used by FormatValue for DateTime columns.
const DisplayLayout = "2006-01-02 15:04:05"

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// Classify infers the semantic type of a column. Each non-null value counts towards the
// first of numeric, boolean and date/time it satisfies.
func Classify(values []query.CellValue) SemanticType {
	var numeric, boolean, dateTime, total int
	for _, value := range values {
		if value.IsNull() {
			continue
		}
		total++
		if _, ok := ToDouble(value); ok {
			numeric++
			continue
		}
		if isBooleanLiteral(value) {
			boolean++
			continue
		}
		if _, ok := ParseDateTime(value); ok {
			dateTime++
		}
	}
	if total == 0 {
		return String
	}

	ratio := func(count int) float64 { return float64(count) / float64(total) }
	switch {
	case ratio(numeric) > typeThreshold:
		return Numeric
	case ratio(dateTime) > typeThreshold:
		return DateTime
	case ratio(boolean) > typeThreshold:
		return Boolean
	default:
		return String
	}
}

// ToDouble coerces a cell to float64. Text is trimmed and parsed as a plain decimal.
func ToDouble(value query.CellValue) (float64, bool) {
	switch value.Kind() {
	case query.KindInt64:
		v, _ := value.AsInt64()
		return float64(v), true
	case query.KindDouble:
		v, _ := value.AsDouble()
		return v, true
	case query.KindText:
		text, _ := value.AsText()
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case query.KindNull, query.KindBool, query.KindDateTime:
		return 0, false
	default:
		return 0, false
	}
}

// ParseDateTime accepts DateTime cells and text in any of the supported layouts.
func ParseDateTime(value query.CellValue) (time.Time, bool) {
	switch value.Kind() {
	case query.KindDateTime:
		return value.AsDateTime()
	case query.KindText:
		text, _ := value.AsText()
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func isBooleanLiteral(value query.CellValue) bool {
	switch value.Kind() {
	case query.KindBool:
		return true
	case query.KindText:
		text, _ := value.AsText()
		return strings.EqualFold(text, "true") || strings.EqualFold(text, "false")
	default:
		return false
	}
}

// ColumnValues returns every cell of column col, skipping rows too narrow to hold it.
func ColumnValues(result query.Result, col int) []query.CellValue {
	values := make([]query.CellValue, 0, len(result.Rows))
	for row := range result.Rows {
		if cell, ok := result.Cell(row, col); ok {
			values = append(values, cell)
		}
	}
	return values
}

func AnalyzeColumns(result query.Result) []ColumnInfo {
	infos := make([]ColumnInfo, 0, len(result.Columns))
	for index, name := range result.Columns {
		values := ColumnValues(result, index)
		info := ColumnInfo{Name: name, Index: index, Type: Classify(values)}
		info.TypeName = info.Type.String()

		switch info.Type {
		case Numeric:
			first := true
			for _, value := range values {
				v, ok := ToDouble(value)
				if !ok {
					continue
				}
				if first || v < info.Min {
					info.Min = v
				}
				if first || v > info.Max {
					info.Max = v
				}
				first = false
			}
		case String:
			unique := make(map[string]struct{})
			for _, value := range values {
				if value.IsNull() || len(unique) >= maxUniqueValues {
					continue
				}
				unique[value.String()] = struct{}{}
			}
			info.UniqueValues = make([]string, 0, len(unique))
			for value := range unique {
				info.UniqueValues = append(info.UniqueValues, value)
			}
			sort.Strings(info.UniqueValues)
		case DateTime, Boolean:
		}
		infos = append(infos, info)
	}
	return infos
}

// FormatValue renders a cell for axis labels and tooltips.
func FormatValue(value query.CellValue, semantic SemanticType) string {
	if value.IsNull() {
		return "NULL"
	}
	switch semantic {
	case Numeric:
		if v, ok := ToDouble(value); ok && !math.IsNaN(v) {
			return fmt.Sprintf("%.2f", v)
		}
	case DateTime:
		if t, ok := ParseDateTime(value); ok {
			return t.Format(DisplayLayout)
		}
	case String, Boolean:
	}
	return value.String()
}
