package duckdb

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/parquetsql/parquetsql/internal/query"
)

// timeOfDayLayout renders TIME columns; fractional seconds appear only when present.
const timeOfDayLayout = "15:04:05.999999"

// ErrorMarker is the text stored in place of a cell that could not be converted.
func ErrorMarker(err error) query.CellValue {
	return query.Text("[Error: " + err.Error() + "]")
}

// convertCell maps a driver value to a CellValue. Panics raised while formatting exotic
// values are returned as errors so one bad cell never aborts the row.
func convertCell(value any, databaseType string) (cell query.CellValue, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			cell = query.CellValue{}
			err = fmt.Errorf("%v", recovered)
		}
	}()
	return convertValue(value, databaseType)
}

func convertValue(value any, databaseType string) (query.CellValue, error) {
	switch v := value.(type) {
	case nil:
		return query.Null(), nil
	case bool:
		return query.Bool(v), nil
	case int:
		return query.Int64(int64(v)), nil
	case int8:
		return query.Int64(int64(v)), nil
	case int16:
		return query.Int64(int64(v)), nil
	case int32:
		return query.Int64(int64(v)), nil
	case int64:
		return query.Int64(v), nil
	case uint:
		return fromUint64(uint64(v)), nil
	case uint8:
		return query.Int64(int64(v)), nil
	case uint16:
		return query.Int64(int64(v)), nil
	case uint32:
		return query.Int64(int64(v)), nil
	case uint64:
		return fromUint64(v), nil
	case *big.Int:
		if v == nil {
			return query.Null(), nil
		}
		if v.IsInt64() {
			return query.Int64(v.Int64()), nil
		}
		return query.Text(v.String()), nil
	case float32:
		return query.Double(float64(v)), nil
	case float64:
		return query.Double(v), nil
	case goduckdb.Decimal:
		return query.Double(decimalToFloat(v.Value, v.Scale)), nil
	case string:
		return query.Text(v), nil
	case []byte:
		if strings.EqualFold(databaseType, "UUID") && len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return query.CellValue{}, err
			}
			return query.Text(id.String()), nil
		}
		return query.Text(string(v)), nil
	case time.Time:
		switch strings.ToUpper(databaseType) {
		case "TIME":
			return query.Text(v.Format(timeOfDayLayout)), nil
		case "TIMETZ", "TIME WITH TIME ZONE":
			return query.Text(v.Format(timeOfDayLayout + "Z07:00")), nil
		}
		return query.DateTime(v), nil
	case goduckdb.Interval:
		return query.Text(formatInterval(v)), nil
	case uuid.UUID:
		return query.Text(v.String()), nil
	case [16]byte:
		return query.Text(uuid.UUID(v).String()), nil
	case fmt.Stringer:
		return query.Text(v.String()), nil
	}

	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return query.Text(fmt.Sprint(value)), nil
	case reflect.Pointer:
		rv := reflect.ValueOf(value)
		if rv.IsNil() {
			return query.Null(), nil
		}
		return convertValue(rv.Elem().Interface(), databaseType)
	default:
		return query.CellValue{}, fmt.Errorf("unsupported value type %T", value)
	}
}

func fromUint64(v uint64) query.CellValue {
	if v > math.MaxInt64 {
		return query.Text(fmt.Sprintf("%d", v))
	}
	return query.Int64(int64(v))
}

func decimalToFloat(value *big.Int, scale uint8) float64 {
	if value == nil {
		return 0
	}
	f := new(big.Float).SetInt(value)
	if scale > 0 {
		divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil))
		f.Quo(f, divisor)
	}
	out, _ := f.Float64()
	return out
}

func formatInterval(v goduckdb.Interval) string {
	parts := make([]string, 0, 3)
	if v.Months != 0 {
		parts = append(parts, plural(int64(v.Months), "month"))
	}
	if v.Days != 0 {
		parts = append(parts, plural(int64(v.Days), "day"))
	}
	if v.Micros != 0 || len(parts) == 0 {
		parts = append(parts, (time.Duration(v.Micros) * time.Microsecond).String())
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
