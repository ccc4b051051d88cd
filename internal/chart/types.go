package chart

import "strings"

// SemanticType is the logical type inferred for a column from its values.
type SemanticType int

const (
	String SemanticType = iota
	Numeric
	DateTime
	Boolean
)

func (t SemanticType) String() string {
	switch t {
	case Numeric:
		return "Numeric"
	case String:
		return "String"
	case DateTime:
		return "DateTime"
	case Boolean:
		return "Boolean"
	default:
		return "Unknown"
	}
}

// ColumnInfo summarises one result column. Min and Max are only set for Numeric
// columns; UniqueValues only for String columns.
type ColumnInfo struct {
	Name         string       `json:"name"`
	Index        int          `json:"index"`
	Type         SemanticType `json:"-"`
	TypeName     string       `json:"type"`
	Min          float64      `json:"min"`
	Max          float64      `json:"max"`
	UniqueValues []string     `json:"unique_values,omitempty"`
}

// Series is renderer-agnostic chart input.
type Series struct {
	XLabels    []string  `json:"x_labels"`
	XValues    []float64 `json:"x_values"`
	YValues    []float64 `json:"y_values"`
	Categories []string  `json:"categories,omitempty"`
	XAxisTitle string    `json:"x_axis_title"`
	YAxisTitle string    `json:"y_axis_title"`
	Title      string    `json:"title"`
}

// Len is the number of points in the series.
func (s Series) Len() int {
	return len(s.YValues)
}

type Aggregation int

const (
	None Aggregation = iota
	Count
	Sum
	Average
	Minimum
	Maximum
	PopulationStdDev
)

var aggregationNames = []string{"None", "Count", "Sum", "Average", "Min", "Max", "Std Dev"}

func (a Aggregation) String() string {
	if a < None || int(a) >= len(aggregationNames) {
		return aggregationNames[None]
	}
	return aggregationNames[a]
}

// ParseAggregation maps a display name back to its Aggregation, ignoring case.
// Unknown names are None.
func ParseAggregation(name string) Aggregation {
	name = strings.TrimSpace(name)
	for i, candidate := range aggregationNames {
		if strings.EqualFold(candidate, name) {
			return Aggregation(i)
		}
	}
	return None
}

// Aggregations lists every aggregation in display order.
func Aggregations() []Aggregation {
	return []Aggregation{None, Count, Sum, Average, Minimum, Maximum, PopulationStdDev}
}
