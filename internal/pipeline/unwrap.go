package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"npisearch/internal"
)

// Unwrapped is the outcome of UnwrapValue. When OK is false Value is the
// original input, untouched.
type Unwrapped struct {
	Value any
	OK    bool
}

func passThrough(raw any) Unwrapped {
	return Unwrapped{Value: raw}
}

// UnwrapValue pulls the "value" member out of a JSON-encoded cell. For the
// SPECIALTIES column a JSON list is accepted too and its first element is
// used. Anything that is not text, not valid JSON, or not one of those shapes
// is passed through.
func UnwrapValue(raw any, column string) Unwrapped {
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return passThrough(raw)
	}
	if !gjson.Valid(text) {
		return passThrough(raw)
	}

	parsed := gjson.Parse(text)
	if column == internal.ColumnSpecialties && parsed.IsArray() {
		items := parsed.Array()
		if len(items) > 0 && items[0].IsObject() {
			if value := items[0].Get("value"); value.Exists() {
				return Unwrapped{Value: jsonScalar(value), OK: true}
			}
		}
	}
	if parsed.IsObject() {
		if value := parsed.Get("value"); value.Exists() {
			return Unwrapped{Value: jsonScalar(value), OK: true}
		}
	}
	return passThrough(raw)
}

func jsonScalar(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		return r.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		// numbers keep their literal text; objects and arrays stay JSON
		return strings.TrimSpace(r.Raw)
	}
}

// CanonicalString turns a cell value into the string used for comparison,
// lookup and display. Nil stays nil.
func CanonicalString(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	case bool:
		s = strconv.FormatBool(t)
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case float32:
		return canonicalFloat(float64(t))
	case float64:
		return canonicalFloat(t)
	case time.Time:
		s = t.Format("2006-01-02 15:04:05.999999999")
	case *string:
		if t == nil {
			return nil
		}
		s = *t
	default:
		s = fmt.Sprint(v)
	}
	return &s
}

func canonicalFloat(f float64) *string {
	if math.IsNaN(f) {
		return nil
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return &s
}
