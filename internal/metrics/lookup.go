package metrics

import (
	"strconv"
	"strings"
)

// Lookup resolves a dot-delimited path against a nested value and returns the
// numeric result. The second return value reports whether the path resolved
// to a numeric value; a missing path is distinguishable from a legitimate
// zero. Slice elements are addressed by numeric segments, so
// "system.cpu.loadAvg.0" resolves index 0 of the loadAvg slice.
func Lookup(root any, path string) (float64, bool) {
	if path == "" {
		return 0, false
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return 0, false
			}
			current = next
		case map[string]float64:
			next, ok := node[segment]
			if !ok {
				return 0, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return 0, false
			}
			current = node[idx]
		case []float64:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return 0, false
			}
			current = node[idx]
		default:
			return 0, false
		}
	}

	return toFloat(current)
}

// toFloat coerces the supported numeric types to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
