// internal/backend/coerce.go
package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field lookups accept several keys so records written with snake_case or
// legacy names decode the same way as canonical ones. The first key present wins.

func (r Record) lookup(keys []string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}

// String returns a string field. Missing fields yield "".
func (r Record) String(keys ...string) (string, error) {
	v, k, ok := r.lookup(keys)
	if !ok || v == nil {
		return "", nil
	}
	switch tv := v.(type) {
	case string:
		return tv, nil
	case []byte:
		return string(tv), nil
	case fmt.Stringer:
		return tv.String(), nil
	default:
		return "", fmt.Errorf("field %s: expected string, got %T", k, v)
	}
}

// Int returns an integer field, accepting any numeric representation that holds
// a whole number.
func (r Record) Int(keys ...string) (int, error) {
	v, k, ok := r.lookup(keys)
	if !ok || v == nil {
		return 0, fmt.Errorf("field %s: missing", strings.Join(keys, "|"))
	}
	switch tv := v.(type) {
	case int:
		return tv, nil
	case int32:
		return int(tv), nil
	case int64:
		return int(tv), nil
	case float64:
		if tv != math.Trunc(tv) {
			return 0, fmt.Errorf("field %s: %v is not a whole number", k, tv)
		}
		return int(tv), nil
	case json.Number:
		n, err := tv.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", k, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(tv))
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", k, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s: expected number, got %T", k, v)
	}
}

// Bool returns a boolean field. Missing fields yield def.
func (r Record) Bool(def bool, keys ...string) (bool, error) {
	v, k, ok := r.lookup(keys)
	if !ok || v == nil {
		return def, nil
	}
	switch tv := v.(type) {
	case bool:
		return tv, nil
	case string:
		b, err := strconv.ParseBool(tv)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", k, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("field %s: expected bool, got %T", k, v)
	}
}

// Time returns a timestamp field stored as an RFC 3339 string or a time.Time.
// A missing or null field yields nil.
func (r Record) Time(keys ...string) (*time.Time, error) {
	v, k, ok := r.lookup(keys)
	if !ok || v == nil {
		return nil, nil
	}
	switch tv := v.(type) {
	case time.Time:
		t := tv.UTC()
		return &t, nil
	case *time.Time:
		if tv == nil {
			return nil, nil
		}
		t := tv.UTC()
		return &t, nil
	case string:
		if tv == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		t = t.UTC()
		return &t, nil
	default:
		return nil, fmt.Errorf("field %s: expected timestamp, got %T", k, v)
	}
}

// FormatTime renders a timestamp in the wire format used for loan dates.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
