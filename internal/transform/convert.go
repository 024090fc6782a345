package transform

import (
	"strconv"
	"time"
)

// Source payloads are untyped JSON trees, so every leaf arrives as string,
// float64, bool, map, or slice. The coercions below are deliberately
// forgiving: legacy writers stored numbers as strings and booleans as both.

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asInt(v any) int64 {
	return int64(asFloat(v))
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false
		}
		return parsed
	case float64:
		return b != 0
	default:
		return false
	}
}

// asTime accepts RFC 3339 strings and epoch timestamps. Epoch values above
// 1e12 are treated as milliseconds, the legacy store's native unit.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
		if epoch, err := strconv.ParseFloat(t, 64); err == nil {
			return epochToTime(epoch)
		}
	case float64:
		return epochToTime(t)
	}
	return time.Time{}
}

func epochToTime(epoch float64) time.Time {
	if epoch <= 0 {
		return time.Time{}
	}
	if epoch > 1e12 {
		return time.UnixMilli(int64(epoch)).UTC()
	}
	return time.Unix(int64(epoch), 0).UTC()
}

// timeOrZero converts and drops unparseable values so the shared defaulting in
// finalize can stamp "now" instead.
func timeOrZero(v any) any {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return t
}
