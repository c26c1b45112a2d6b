package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Category identifies a top-level metric group in the live snapshot.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryAPI         Category = "api"
	CategoryWebSocket   Category = "websocket"
	CategoryDatabase    Category = "database"
	CategoryApplication Category = "application"
)

// Snapshot is a read-only copy of the store: the live values per category
// plus the recorded history series.
type Snapshot struct {
	Timestamp time.Time                   `json:"timestamp"`
	Current   map[Category]map[string]any `json:"current"`
	History   map[string][]Point          `json:"history"`
}

// Lookup resolves a dot-delimited path (category first) against the snapshot's
// current values, e.g. "system.cpu.loadAvg.0".
func (s Snapshot) Lookup(path string) (float64, bool) {
	root := make(map[string]any, len(s.Current))
	for cat, values := range s.Current {
		root[string(cat)] = values
	}
	return Lookup(root, path)
}

// UpdateHook is invoked after a category's live values change. The values
// map is a deep copy; it never aliases live store state, so subscribers may
// read it without any locking.
type UpdateHook func(category Category, values map[string]any)

// CustomMetricHook is invoked when a custom metric is recorded, so threshold
// evaluation can run immediately for that metric.
type CustomMetricHook func(name string, value float64, metadata map[string]string)

// endpointStats accumulates request statistics for one method:path key.
type endpointStats struct {
	Count         int64
	TotalDuration float64
	Errors        int64
}

// Store holds the current metric state and bounded history. All mutations
// are serialized behind a single mutex because timer loops and request
// handlers interleave reads and writes.
type Store struct {
	mu        sync.RWMutex
	current   map[Category]map[string]any
	history   map[string]*Series
	apiStats  map[string]*endpointStats
	seriesCap int

	updateHook UpdateHook
	customHook CustomMetricHook
}

// NewStore creates an empty metrics store.
func NewStore(seriesCapacity int) *Store {
	return &Store{
		current:   make(map[Category]map[string]any),
		history:   make(map[string]*Series),
		apiStats:  make(map[string]*endpointStats),
		seriesCap: seriesCapacity,
	}
}

// SetUpdateHook registers the hook fired after any change to a category's
// live values.
func (s *Store) SetUpdateHook(hook UpdateHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateHook = hook
}

// SetCustomMetricHook registers the hook fired by AddCustomMetric.
func (s *Store) SetCustomMetricHook(hook CustomMetricHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customHook = hook
}

// Application keys written through their own record paths rather than the
// sampler. SetCurrent carries them over so a sampler refresh does not wipe
// them.
var reservedAppKeys = []string{"custom", "security", "jobs"}

// SetCurrent replaces the live values for a category. Top-level numeric
// values are additionally appended to history under "<category>.<key>".
func (s *Store) SetCurrent(category Category, values map[string]any) {
	now := time.Now()

	s.mu.Lock()
	if category == CategoryApplication {
		if prev, ok := s.current[category]; ok {
			for _, k := range reservedAppKeys {
				if _, provided := values[k]; !provided {
					if v, kept := prev[k]; kept {
						values[k] = v
					}
				}
			}
		}
	}
	s.current[category] = values
	for key, raw := range values {
		if v, ok := toFloat(raw); ok {
			s.seriesLocked(string(category) + "." + key).Append(NewPointAt(now, v))
		}
	}
	hook, payload := s.updateLocked(category)
	s.mu.Unlock()

	if hook != nil {
		hook(category, payload)
	}
}

// updateLocked captures the update hook and a deep copy of the category's
// live values for delivery after the lock is released. Hook payloads must
// not alias live maps: later record calls keep mutating them under s.mu,
// which hook consumers do not hold. Caller must hold s.mu.
func (s *Store) updateLocked(category Category) (UpdateHook, map[string]any) {
	if s.updateHook == nil {
		return nil, nil
	}
	return s.updateHook, copyValues(s.current[category])
}

// AppendHistory pushes a point onto the named series. No deduplication.
func (s *Store) AppendHistory(series string, p Point) {
	s.mu.Lock()
	sr := s.seriesLocked(series)
	s.mu.Unlock()
	sr.Append(p)
}

// History returns a copy of the named series, or nil if it does not exist.
func (s *Store) History(series string) []Point {
	s.mu.RLock()
	sr, ok := s.history[series]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return sr.Points()
}

// PurgeOlderThan drops history points older than the given window from every
// tracked series. Returns the total number of points removed.
func (s *Store) PurgeOlderThan(window time.Duration) int {
	cutoff := time.Now().Add(-window)

	s.mu.RLock()
	series := make([]*Series, 0, len(s.history))
	for _, sr := range s.history {
		series = append(series, sr)
	}
	s.mu.RUnlock()

	purged := 0
	for _, sr := range series {
		purged += sr.PurgeOlderThan(cutoff)
	}
	return purged
}

// Snapshot returns a deep-copied read-only view of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Timestamp: time.Now(),
		Current:   make(map[Category]map[string]any, len(s.current)),
		History:   make(map[string][]Point, len(s.history)),
	}
	for cat, values := range s.current {
		snap.Current[cat] = copyValues(values)
	}
	for name, sr := range s.history {
		snap.History[name] = sr.Points()
	}
	return snap
}

// HistorySince returns points at or after the cutoff for every tracked series.
func (s *Store) HistorySince(since time.Time) map[string][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Point, len(s.history))
	for name, sr := range s.history {
		if pts := sr.Since(since); len(pts) > 0 {
			out[name] = pts
		}
	}
	return out
}

// AddCustomMetric registers an ad hoc metric value. It appends to the named
// history series, records the value under the application category, and fires
// the custom-metric hook so threshold evaluation runs immediately.
func (s *Store) AddCustomMetric(name string, value float64, metadata map[string]string) {
	now := time.Now()

	s.mu.Lock()
	s.seriesLocked(name).Append(NewPointAt(now, value))
	custom := s.nestedLocked(CategoryApplication, "custom")
	custom[name] = value
	hook := s.customHook
	update, payload := s.updateLocked(CategoryApplication)
	s.mu.Unlock()

	if update != nil {
		update(CategoryApplication, payload)
	}
	if hook != nil {
		hook(name, value, metadata)
	}
}

// RecordSecurityIncident bumps the security incident counter under the
// application category and its history series.
func (s *Store) RecordSecurityIncident() {
	now := time.Now()

	s.mu.Lock()
	sec := s.nestedLocked(CategoryApplication, "security")
	count, _ := toFloat(sec["incidents"])
	count++
	sec["incidents"] = count
	s.seriesLocked("security.incidents").Append(NewPointAt(now, count))
	hook, payload := s.updateLocked(CategoryApplication)
	s.mu.Unlock()

	if hook != nil {
		hook(CategoryApplication, payload)
	}
}

// RecordJobResult tracks background job outcomes. Failed jobs feed the
// jobs.failed threshold check.
func (s *Store) RecordJobResult(name string, success bool) {
	now := time.Now()

	s.mu.Lock()
	jobs := s.nestedLocked(CategoryApplication, "jobs")
	total, _ := toFloat(jobs["total"])
	jobs["total"] = total + 1
	jobs["lastJob"] = name
	if !success {
		failed, _ := toFloat(jobs["failed"])
		failed++
		jobs["failed"] = failed
		s.seriesLocked("jobs.failed").Append(NewPointAt(now, failed))
	}
	hook, payload := s.updateLocked(CategoryApplication)
	s.mu.Unlock()

	if hook != nil {
		hook(CategoryApplication, payload)
	}
}

// nestedLocked returns the named sub-map of a category, creating both as
// needed. Caller must hold s.mu.
func (s *Store) nestedLocked(category Category, key string) map[string]any {
	values, ok := s.current[category]
	if !ok {
		values = make(map[string]any)
		s.current[category] = values
	}
	nested, ok := values[key].(map[string]any)
	if !ok {
		nested = make(map[string]any)
		values[key] = nested
	}
	return nested
}

// RecordAPIMetric accumulates request statistics keyed by "method:path" and
// appends the raw duration to the "requests" series. Called once per HTTP
// response by external middleware.
func (s *Store) RecordAPIMetric(method, path string, durationMs float64, statusCode int) {
	key := method + ":" + path
	now := time.Now()

	s.mu.Lock()
	stats, ok := s.apiStats[key]
	if !ok {
		stats = &endpointStats{}
		s.apiStats[key] = stats
	}
	stats.Count++
	stats.TotalDuration += durationMs
	if statusCode >= 400 {
		stats.Errors++
	}

	api, ok := s.current[CategoryAPI]
	if !ok {
		api = make(map[string]any)
		s.current[CategoryAPI] = api
	}
	endpoints, ok := api["endpoints"].(map[string]any)
	if !ok {
		endpoints = make(map[string]any)
		api["endpoints"] = endpoints
	}
	endpoints[key] = map[string]any{
		"count":           stats.Count,
		"totalDurationMs": stats.TotalDuration,
		"avgDurationMs":   stats.TotalDuration / float64(stats.Count),
		"errorCount":      stats.Errors,
	}

	s.seriesLocked("requests").Append(NewPointAt(now, durationMs))
	hook, payload := s.updateLocked(CategoryAPI)
	s.mu.Unlock()

	if hook != nil {
		hook(CategoryAPI, payload)
	}
}

// RecordWebSocketMetric records a websocket lifecycle event and the current
// connection count.
func (s *Store) RecordWebSocketMetric(event string, connectionCount int) {
	now := time.Now()

	s.mu.Lock()
	s.current[CategoryWebSocket] = map[string]any{
		"lastEvent":   event,
		"connections": connectionCount,
		"updatedAt":   now,
	}
	s.seriesLocked("websocket.connections").Append(NewPointAt(now, float64(connectionCount)))
	hook, payload := s.updateLocked(CategoryWebSocket)
	s.mu.Unlock()

	if hook != nil {
		hook(CategoryWebSocket, payload)
	}
}

// RecordDatabaseMetric accumulates operation timings keyed by
// "operation:collection".
func (s *Store) RecordDatabaseMetric(operation, collection string, durationMs float64) {
	key := operation + ":" + collection
	now := time.Now()

	s.mu.Lock()
	dbm, ok := s.current[CategoryDatabase]
	if !ok {
		dbm = make(map[string]any)
		s.current[CategoryDatabase] = dbm
	}
	ops, ok := dbm["operations"].(map[string]any)
	if !ok {
		ops = make(map[string]any)
		dbm["operations"] = ops
	}
	prev, _ := ops[key].(map[string]any)
	count := int64(1)
	total := durationMs
	if prev != nil {
		if c, ok := toFloat(prev["count"]); ok {
			count = int64(c) + 1
		}
		if t, ok := toFloat(prev["totalDurationMs"]); ok {
			total = t + durationMs
		}
	}
	ops[key] = map[string]any{
		"count":           count,
		"totalDurationMs": total,
		"avgDurationMs":   total / float64(count),
	}

	s.seriesLocked("database.queryTime").Append(NewPointAt(now, durationMs))
	hook, payload := s.updateLocked(CategoryDatabase)
	s.mu.Unlock()

	if hook != nil {
		hook(CategoryDatabase, payload)
	}
}

// seriesLocked returns the named series, creating it if needed.
// Caller must hold s.mu.
func (s *Store) seriesLocked(name string) *Series {
	sr, ok := s.history[name]
	if !ok {
		sr = NewSeries(s.seriesCap)
		s.history[name] = sr
	}
	return sr
}

// TotalPoints returns the number of points held across all series.
func (s *Store) TotalPoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, sr := range s.history {
		total += sr.Len()
	}
	return total
}

// SeriesNames returns the names of all tracked history series.
func (s *Store) SeriesNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.history))
	for name := range s.history {
		names = append(names, name)
	}
	return names
}

// copyValues deep-copies a nested value map.
func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		return copyValues(node)
	case map[string]float64:
		out := make(map[string]float64, len(node))
		for k, f := range node {
			out[k] = f
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = copyValue(item)
		}
		return out
	case []float64:
		out := make([]float64, len(node))
		copy(out, node)
		return out
	case fmt.Stringer, string, bool, float64, float32, int, int32, int64, uint64, time.Time:
		return node
	default:
		return node
	}
}
