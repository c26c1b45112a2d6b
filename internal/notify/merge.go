package notify

import (
	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// mergeSnapshots folds a group of request snapshots into one, taking the
// worst case (maximum) for numeric values so a combined notification never
// understates what any member reported. Non-numeric values keep the most
// recent occurrence.
func mergeSnapshots(snaps []metrics.Snapshot) metrics.Snapshot {
	if len(snaps) == 0 {
		return metrics.Snapshot{}
	}
	out := snaps[0]
	for _, s := range snaps[1:] {
		if s.Timestamp.After(out.Timestamp) {
			out.Timestamp = s.Timestamp
		}
		out.Current = mergeCategories(out.Current, s.Current)
		out.History = mergeHistory(out.History, s.History)
	}
	return out
}

func mergeCategories(a, b map[metrics.Category]map[string]any) map[metrics.Category]map[string]any {
	if a == nil {
		return b
	}
	for cat, values := range b {
		if existing, ok := a[cat]; ok {
			a[cat] = mergeValueMaps(existing, values)
		} else {
			a[cat] = values
		}
	}
	return a
}

func mergeValueMaps(a, b map[string]any) map[string]any {
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			a[k] = bv
			continue
		}
		a[k] = mergeValue(av, bv)
	}
	return a
}

func mergeValue(a, b any) any {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		if bf > af {
			return b
		}
		return a
	}

	am, aMap := a.(map[string]any)
	bm, bMap := b.(map[string]any)
	if aMap && bMap {
		return mergeValueMaps(am, bm)
	}

	as, aSlice := asFloatSlice(a)
	bs, bSlice := asFloatSlice(b)
	if aSlice && bSlice {
		n := len(as)
		if len(bs) > n {
			n = len(bs)
		}
		merged := make([]float64, n)
		for i := range merged {
			var av, bv float64
			if i < len(as) {
				av = as[i]
			}
			if i < len(bs) {
				bv = bs[i]
			}
			if bv > av {
				merged[i] = bv
			} else {
				merged[i] = av
			}
		}
		return merged
	}

	// Types differ or are non-mergeable; later snapshot wins.
	return b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asFloatSlice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// mergeHistory unions series maps, preferring the longer slice for a given
// name. Batched notifications only read recent values, so a full point
// merge is not worth the allocation.
func mergeHistory(a, b map[string][]metrics.Point) map[string][]metrics.Point {
	if a == nil {
		return b
	}
	for name, pts := range b {
		if existing, ok := a[name]; !ok || len(pts) > len(existing) {
			a[name] = pts
		}
	}
	return a
}
