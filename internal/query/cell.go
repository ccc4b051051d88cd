package query

import (
	"strconv"
	"time"
)

// Kind tags the variant held by a CellValue.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindDouble
	KindText
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindText:
		return "text"
	case KindDateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// DateTimeLayout is the natural string form of DateTime cells.
const DateTimeLayout = "2006-01-02T15:04:05"

// CellValue is a closed sum type over the values a result cell can hold. The zero value
// is Null. Columns carry no type guarantee, so the same column may mix kinds.
type CellValue struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
}

func Null() CellValue { return CellValue{} }
func Bool(v bool) CellValue { return CellValue{kind: KindBool, b: v} }
func Int64(v int64) CellValue { return CellValue{kind: KindInt64, i: v} }
func Double(v float64) CellValue { return CellValue{kind: KindDouble, f: v} }
func Text(v string) CellValue { return CellValue{kind: KindText, s: v} }
func DateTime(v time.Time) CellValue { return CellValue{kind: KindDateTime, t: v} }
func (c CellValue) Kind() Kind { return c.kind }
func (c CellValue) IsNull() bool { return c.kind == KindNull }

func (c CellValue) AsBool() (bool, bool) {
	return c.b, c.kind == KindBool
}

func (c CellValue) AsInt64() (int64, bool) {
	return c.i, c.kind == KindInt64
}

func (c CellValue) AsDouble() (float64, bool) {
	return c.f, c.kind == KindDouble
}

func (c CellValue) AsText() (string, bool) {
	return c.s, c.kind == KindText
}

func (c CellValue) AsDateTime() (time.Time, bool) {
	return c.t, c.kind == KindDateTime
}

// String is the natural textual form. Null renders as the empty string.
func (c CellValue) String() string {
	switch c.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(c.b)
	case KindInt64:
		return strconv.FormatInt(c.i, 10)
	case KindDouble:
		return strconv.FormatFloat(c.f, 'g', -1, 64)
	case KindText:
		return c.s
	case KindDateTime:
		return c.t.Format(DateTimeLayout)
	default:
		return ""
	}
}

// Equal reports whether both cells hold the same kind and value.
func (c CellValue) Equal(other CellValue) bool {
	if c.kind != other.kind {
		return false
	}
	switch c.kind {
	case KindNull:
		return true
	case KindBool:
		return c.b == other.b
	case KindInt64:
		return c.i == other.i
	case KindDouble:
		return c.f == other.f
	case KindText:
		return c.s == other.s
	case KindDateTime:
		return c.t.Equal(other.t)
	default:
		return false
	}
}
