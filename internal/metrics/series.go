package metrics

import (
	"math"
	"sync"
	"time"
)

// DefaultSeriesCapacity bounds how many points a series may hold before the
// oldest are evicted, independent of the time-based purge.
const DefaultSeriesCapacity = 10000

// Point is one sampled value on a series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// IsValid reports whether the point can be stored. A zero timestamp marks
// an unset point and a non-finite value carries no information, so both
// are dropped on append.
func (p Point) IsValid() bool {
	return !p.Timestamp.IsZero() && !math.IsInf(p.Value, 0) && !math.IsNaN(p.Value)
}

// NewPoint samples a value at the current time.
func NewPoint(value float64) Point {
	return NewPointAt(time.Now(), value)
}

// NewPointAt samples a value at an explicit time.
func NewPointAt(ts time.Time, value float64) Point {
	return Point{Timestamp: ts, Value: value}
}

// Series is an append-only, timestamp-ordered sequence of points for one
// metric. It is thread-safe. Ordering is an invariant: appends with a
// timestamp earlier than the newest point are clamped to the newest
// timestamp rather than rejected, so readers always observe a
// non-decreasing sequence.
type Series struct {
	mu       sync.RWMutex
	points   []Point
	capacity int
}

// NewSeries creates a series with the given point capacity.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &Series{
		points:   make([]Point, 0, 64),
		capacity: capacity,
	}
}

// Append adds a point to the series. Invalid points are dropped.
func (s *Series) Append(p Point) {
	if !p.IsValid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.points); n > 0 && p.Timestamp.Before(s.points[n-1].Timestamp) {
		p.Timestamp = s.points[n-1].Timestamp
	}
	s.points = append(s.points, p)

	if len(s.points) > s.capacity {
		// Evict oldest; copy to release the backing array's head for GC.
		overflow := len(s.points) - s.capacity
		s.points = append(s.points[:0:0], s.points[overflow:]...)
	}
}

// Points returns a copy of all points in chronological order.
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return nil
	}
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Since returns all points with timestamps at or after the given time.
func (s *Series) Since(since time.Time) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Point
	for _, p := range s.points {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// PurgeOlderThan drops all points with timestamps before the cutoff.
// Purging only truncates the head; it never reorders surviving points.
// Returns the number of points removed.
func (s *Series) PurgeOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := 0
	for idx < len(s.points) && s.points[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	s.points = append(s.points[:0:0], s.points[idx:]...)
	return idx
}

// Latest returns the most recent point.
// Returns a zero Point and false if the series is empty.
func (s *Series) Latest() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Len returns the current number of points.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}
