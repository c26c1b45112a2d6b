package alerts

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/eyenet/eyenet-monitor/internal/logger"
)

// Thresholds maps metric category -> metric name -> numeric limit.
// It is loaded from a JSON document at startup, falls back to hardcoded
// defaults if the document is missing or malformed, and is mutable at
// runtime. Replacement tables pass ValidateLimits first; Save rewrites
// the document.
type Thresholds struct {
	mu     sync.RWMutex
	limits map[string]map[string]float64
	path   string
}

// DefaultLimits returns the hardcoded fallback thresholds.
func DefaultLimits() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"system": {
			"cpu":    80,
			"memory": 85,
		},
		"security": {
			"incidents": 5,
		},
		"jobs": {
			"failed": 3,
		},
		"api": {
			"errorRate": 0.1,
		},
	}
}

// LoadThresholds reads the threshold document at path. A missing or
// malformed document falls back to defaults; only the fallback is logged,
// never fatal.
func LoadThresholds(path string) *Thresholds {
	t := &Thresholds{
		limits: DefaultLimits(),
		path:   path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("threshold config unreadable, using defaults", "path", path, "error", err.Error())
		}
		return t
	}

	var loaded map[string]map[string]float64
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("threshold config malformed, using defaults", "path", path, "error", err.Error())
		return t
	}

	t.limits = loaded
	logger.Info("thresholds loaded", "path", path, "categories", len(loaded))
	return t
}

// ValidateLimits checks a limit table before it may replace the active one.
// Categories and metric names must be non-empty and every limit finite.
func ValidateLimits(limits map[string]map[string]float64) error {
	if len(limits) == 0 {
		return fmt.Errorf("thresholds: empty limit table")
	}
	for cat, inner := range limits {
		if cat == "" {
			return fmt.Errorf("thresholds: empty category name")
		}
		if len(inner) == 0 {
			return fmt.Errorf("thresholds: category %q has no limits", cat)
		}
		for name, v := range inner {
			if name == "" {
				return fmt.Errorf("thresholds: category %q has an unnamed metric", cat)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("thresholds: %s.%s is not a finite number", cat, name)
			}
		}
	}
	return nil
}

// Get returns the limit for a category/metric pair.
func (t *Thresholds) Get(category, metric string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	limits, ok := t.limits[category]
	if !ok {
		return 0, false
	}
	limit, ok := limits[metric]
	return limit, ok
}

// Set updates a single limit in memory.
func (t *Thresholds) Set(category, metric string, limit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limits, ok := t.limits[category]
	if !ok {
		limits = make(map[string]float64)
		t.limits[category] = limits
	}
	limits[metric] = limit
}

// Replace swaps the entire limit table atomically.
func (t *Thresholds) Replace(limits map[string]map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits
}

// All returns a copy of the limit table.
func (t *Thresholds) All() map[string]map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]map[string]float64, len(t.limits))
	for cat, limits := range t.limits {
		inner := make(map[string]float64, len(limits))
		for name, v := range limits {
			inner[name] = v
		}
		out[cat] = inner
	}
	return out
}

// Save rewrites the threshold document.
func (t *Thresholds) Save() error {
	t.mu.RLock()
	data, err := json.MarshalIndent(t.limits, "", "  ")
	path := t.path
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}

	if path == "" {
		return fmt.Errorf("no threshold path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create threshold directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write thresholds: %w", err)
	}
	return nil
}
