package attr

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the value type an attribute stores.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindInts
	KindEnum
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindInts:
		return "ints"
	case KindEnum:
		return "enum"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func kindOf(v any) Kind {
	switch v.(type) {
	case int, int32, int64, uint32:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case []int64, []int:
		return KindInts
	case []byte:
		return KindBytes
	default:
		return KindString
	}
}

func zeroValue(k Kind) any {
	switch k {
	case KindInt, KindEnum:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindBool:
		return false
	case KindInts:
		return []int64{}
	case KindBytes:
		return []byte{}
	default:
		return ""
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []int64:
		return append([]int64(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	default:
		return v
	}
}

func convert(k Kind, labels []string, v any) (any, error) {
	switch k {
	case KindInt:
		return Int(v)
	case KindFloat:
		return Float(v)
	case KindBool:
		return Bool(v)
	case KindInts:
		return Ints(v)
	case KindEnum:
		return enumIndex(labels, v)
	case KindBytes:
		switch val := v.(type) {
		case []byte:
			return append([]byte(nil), val...), nil
		case string:
			return []byte(val), nil
		}
		return nil, fmt.Errorf("cannot use %T as bytes", v)
	default:
		return Text(v), nil
	}
}

func enumIndex(labels []string, v any) (int64, error) {
	if s, ok := v.(string); ok {
		for i, label := range labels {
			if label == s {
				return int64(i), nil
			}
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			v = n
		} else {
			return 0, fmt.Errorf("unknown label %q", s)
		}
	}
	idx, err := Int(v)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= int64(len(labels)) {
		return 0, fmt.Errorf("index %d outside %d labels", idx, len(labels))
	}
	return idx, nil
}

// Int converts a value to int64.
func Int(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint32:
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("%v is not an integer", val)
		}
		return int64(val), nil
	case float32:
		return Int(float64(val))
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", val, err)
		}
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("cannot use %T as int", v)
}

// Float converts a value to float64.
func Float(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int, int32, int64, uint32, bool:
		n, err := Int(val)
		return float64(n), err
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", val, err)
		}
		return f, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("cannot use %T as float", v)
}

// Bool converts a value to bool. Numbers are true when non-zero.
func Bool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, fmt.Errorf("parse %q: %w", val, err)
		}
		return b, nil
	case nil:
		return false, nil
	}
	f, err := Float(v)
	if err != nil {
		return false, fmt.Errorf("cannot use %T as bool", v)
	}
	return f != 0, nil
}

// Ints converts a value to []int64. JSON decoded arrays ([]any of float64)
// and comma separated strings are accepted.
func Ints(v any) ([]int64, error) {
	switch val := v.(type) {
	case []int64:
		return append([]int64(nil), val...), nil
	case []int:
		out := make([]int64, len(val))
		for i, n := range val {
			out[i] = int64(n)
		}
		return out, nil
	case []float64:
		out := make([]int64, len(val))
		for i, f := range val {
			n, err := Int(f)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]int64, len(val))
		for i, item := range val {
			n, err := Int(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case string:
		trimmed := strings.Trim(strings.TrimSpace(val), "[]")
		if trimmed == "" {
			return []int64{}, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]int64, len(parts))
		for i, part := range parts {
			n, err := Int(part)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return []int64{}, nil
	}
	return nil, fmt.Errorf("cannot use %T as int array", v)
}

// Text converts a value to a string. Byte arrays are treated as
// NUL-terminated character waveforms.
func Text(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		if idx := bytes.IndexByte(val, 0); idx >= 0 {
			val = val[:idx]
		}
		return string(val)
	case nil:
		return ""
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
