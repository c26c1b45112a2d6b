// Package metrics provides the in-memory metrics store: a live snapshot per
// category plus bounded time-series history.
package metrics

import "time"

// Timeframe represents a configurable time range for history exports.
type Timeframe int

const (
	Timeframe1h Timeframe = iota
	Timeframe6h
	Timeframe24h
	Timeframe7d
)

// Duration returns the time.Duration for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1h:
		return time.Hour
	case Timeframe6h:
		return 6 * time.Hour
	case Timeframe24h:
		return 24 * time.Hour
	case Timeframe7d:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// String returns a display label.
func (tf Timeframe) String() string {
	switch tf {
	case Timeframe1h:
		return "1h"
	case Timeframe6h:
		return "6h"
	case Timeframe24h:
		return "24h"
	case Timeframe7d:
		return "7d"
	default:
		return "1h"
	}
}

// ParseTimeframe converts a label to a Timeframe, defaulting to 1h.
func ParseTimeframe(s string) Timeframe {
	switch s {
	case "6h":
		return Timeframe6h
	case "24h":
		return Timeframe24h
	case "7d":
		return Timeframe7d
	default:
		return Timeframe1h
	}
}
