package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one catalog record keyed by column name, in the shape produced by
// database.ScanRows. Values are whatever the driver decoded: strings, bools,
// integers of any width, floats, string slices or nil.
type Row map[string]any

// Str returns a text column; NULL and missing columns are "".
func (r Row) Str(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// OptStr returns nil for NULL.
func (r Row) OptStr(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.Str(col)
	return &s
}

// Bool accepts booleans and the text forms PostgreSQL prints.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.ToLower(v))
		return b || v == "t"
	}
	return false
}

// Int returns an integer column of any width; NULL is 0.
func (r Row) Int(col string) int64 {
	n, _ := r.optInt(col)
	return n
}

// OptInt returns nil for NULL.
func (r Row) OptInt(col string) *int64 {
	n, ok := r.optInt(col)
	if !ok {
		return nil
	}
	return &n
}

func (r Row) optInt(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns a floating point column; NULL is 0.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return float64(r.Int(col))
}

// Strs returns a text[] column. NULL elements become "".
func (r Row) Strs(col string) []string {
	switch v := r[col].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			if e != nil {
				out[i] = fmt.Sprint(e)
			}
		}
		return out
	}
	return nil
}
