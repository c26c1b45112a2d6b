package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRingCapacity is the maximum number of retained alerts.
const DefaultRingCapacity = 100

// Alert is a derived alert record. Immutable once created except for the
// acknowledged flag.
type Alert struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Level        Level     `json:"level"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
}

// NewAlert creates an alert with a generated ID and the current timestamp.
func NewAlert(level Level, title, message string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Level:     level,
		Title:     title,
		Message:   message,
	}
}

// Ring is a bounded most-recent-first alert buffer. When full, pushing a new
// alert evicts the oldest. It is thread-safe.
type Ring struct {
	mu       sync.RWMutex
	alerts   []Alert
	capacity int
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		alerts:   make([]Alert, 0, capacity),
		capacity: capacity,
	}
}

// Push inserts an alert at the front, evicting the oldest beyond capacity.
func (r *Ring) Push(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append([]Alert{a}, r.alerts...)
	if len(r.alerts) > r.capacity {
		r.alerts = r.alerts[:r.capacity]
	}
}

// All returns a copy of the buffer, most recent first.
func (r *Ring) All() []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Since returns alerts with timestamps at or after the cutoff, most recent first.
func (r *Ring) Since(since time.Time) []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Alert
	for _, a := range r.alerts {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of retained alerts.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

// Acknowledge marks the alert with the given ID as acknowledged.
func (r *Ring) Acknowledge(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.alerts {
		if r.alerts[i].ID == id {
			r.alerts[i].Acknowledged = true
			return nil
		}
	}
	return &AlertNotFoundError{ID: id}
}

// AlertNotFoundError indicates the alert ID is not in the buffer.
type AlertNotFoundError struct {
	ID string
}

func (e *AlertNotFoundError) Error() string {
	return "alert not found: " + e.ID
}
