package models

import "time"

// The remote tree stores loosely-typed JSON nodes. Every record type decodes
// through these helpers with a well-defined default per missing or
// mistyped field, so a malformed node never panics and never kills a
// listener.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	}
	return 0
}

func getStringSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getMapSlice(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if em, ok := e.(map[string]any); ok {
			out = append(out, em)
		}
	}
	return out
}

// Timestamps travel as float64 seconds since the Unix epoch, fractional part
// included, matching the persisted schema.

func timeFromSeconds(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000)).UTC()
}

// TimeToSeconds converts t to the wire representation of a timestamp.
func TimeToSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}
