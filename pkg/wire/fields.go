package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// fieldReader pulls typed fields out of a decoded record, keeping the first
// error it hits so callers can read every field before checking.
type fieldReader struct {
	rec map[string]any
	err error
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *fieldReader) lookup(name string) (any, bool) {
	v, ok := r.rec[name]
	if !ok || v == nil {
		r.fail("missing field %q", name)
		return nil, false
	}
	return v, true
}

func (r *fieldReader) string(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail("field %q: want string, got %T", name, v)
	}
	return s
}

func (r *fieldReader) optString(name string) string {
	s, _ := r.rec[name].(string)
	return s
}

func (r *fieldReader) int64(name string) int64 {
	v, ok := r.lookup(name)
	if !ok {
		return 0
	}
	n, err := toInt64(v)
	if err != nil {
		r.fail("field %q: %w", name, err)
	} else if n > MaxInteger || n < -MaxInteger {
		r.fail("field %q: %d exceeds %d", name, n, MaxInteger)
	}
	return n
}

func (r *fieldReader) uint64(name string) uint64 {
	v, ok := r.lookup(name)
	if !ok {
		return 0
	}
	n, err := toUint64(v)
	if err != nil {
		r.fail("field %q: %w", name, err)
	} else if n > MaxInteger {
		r.fail("field %q: %d exceeds %d", name, n, MaxInteger)
	}
	return n
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToUint64(f)
	case float64:
		return floatToUint64(n)
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is not an int64", f)
	}
	return int64(f), nil
}

func floatToUint64(f float64) (uint64, error) {
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, fmt.Errorf("%v is not a non-negative integer", f)
	}
	return uint64(f), nil
}

// checkRange rejects records whose integer fields would not survive a
// round trip through either codec.
func checkRange(kind Kind, rec map[string]any) error {
	for name, v := range rec {
		var ok bool
		switch n := v.(type) {
		case int64:
			ok = n <= MaxInteger && n >= -MaxInteger
		case uint64:
			ok = n <= MaxInteger
		default:
			continue
		}
		if !ok {
			return fmt.Errorf("%w: %s field %q: %v", ErrOutOfRange, kind, name, v)
		}
	}
	return nil
}
