package alerts

import (
	"fmt"
	"sync"

	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// HealthStatus is the discretized overall system state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// NotifyPolicy maps a channel type to the minimum alert level that should
// trigger a notification on that channel.
type NotifyPolicy map[string]Level

// AlertHook is invoked for every alert the evaluator records.
type AlertHook func(Alert)

// Evaluator compares snapshots against thresholds and records alerts into
// the bounded ring.
type Evaluator struct {
	thresholds *Thresholds
	ring       *Ring

	mu     sync.RWMutex
	policy NotifyPolicy
	hook   AlertHook
}

// NewEvaluator creates an evaluator over the given thresholds and ring.
func NewEvaluator(thresholds *Thresholds, ring *Ring) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		ring:       ring,
		policy:     NotifyPolicy{},
	}
}

// SetAlertHook registers the hook fired when an alert is recorded.
func (e *Evaluator) SetAlertHook(hook AlertHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hook = hook
}

// SetNotifyPolicy replaces the per-channel minimum severities.
func (e *Evaluator) SetNotifyPolicy(policy NotifyPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
}

// ShouldNotify returns, per configured channel, whether an alert of the
// given level should be delivered there.
func (e *Evaluator) ShouldNotify(level Level) map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]bool, len(e.policy))
	for channel, minimum := range e.policy {
		out[channel] = level.AtLeast(minimum)
	}
	return out
}

// Record creates an alert, pushes it into the ring, and fires the alert hook.
func (e *Evaluator) Record(level Level, title, message string) Alert {
	a := NewAlert(level, title, message)
	e.ring.Push(a)

	logger.Info("alert recorded", "level", level.String(), "title", title)
	telemetry.RecordAlert(level.String())

	e.mu.RLock()
	hook := e.hook
	e.mu.RUnlock()
	if hook != nil {
		hook(a)
	}
	return a
}

// CheckAlerts compares the snapshot's fixed fields against the thresholds and
// records an alert per breach. Returns the newly recorded alerts.
func (e *Evaluator) CheckAlerts(snap metrics.Snapshot) []Alert {
	var fired []Alert

	if limit, ok := e.thresholds.Get("system", "memory"); ok {
		if used, resolved := snap.Lookup("system.memory.usedPercent"); resolved && used > limit {
			fired = append(fired, e.Record(LevelWarning,
				"High memory usage",
				fmt.Sprintf("Memory usage at %.1f%% exceeds threshold %.1f%%", used, limit)))
		}
	}

	if limit, ok := e.thresholds.Get("system", "cpu"); ok {
		if load, resolved := snap.Lookup("system.cpu.loadAvg.0"); resolved && load > limit {
			fired = append(fired, e.Record(LevelWarning,
				"High CPU load",
				fmt.Sprintf("Load average %.2f exceeds threshold %.2f", load, limit)))
		}
	}

	if limit, ok := e.thresholds.Get("security", "incidents"); ok {
		if count, resolved := snap.Lookup("application.security.incidents"); resolved && count > limit {
			fired = append(fired, e.Record(LevelError,
				"Security incidents detected",
				fmt.Sprintf("%.0f security incidents exceed threshold %.0f", count, limit)))
		}
	}

	if limit, ok := e.thresholds.Get("jobs", "failed"); ok {
		if count, resolved := snap.Lookup("application.jobs.failed"); resolved && count > limit {
			fired = append(fired, e.Record(LevelError,
				"Failed jobs threshold exceeded",
				fmt.Sprintf("%.0f failed jobs exceed threshold %.0f", count, limit)))
		}
	}

	return fired
}

// CheckCustomMetric evaluates a custom metric against its threshold, if one
// is configured under the "custom" category. Fired immediately when a custom
// metric is recorded.
func (e *Evaluator) CheckCustomMetric(name string, value float64) (Alert, bool) {
	limit, ok := e.thresholds.Get("custom", name)
	if !ok || value <= limit {
		return Alert{}, false
	}
	a := e.Record(LevelWarning,
		fmt.Sprintf("Custom metric %s above threshold", name),
		fmt.Sprintf("%s = %.2f exceeds threshold %.2f", name, value, limit))
	return a, true
}

// Health derives the discrete health status from CPU load and memory usage.
// The boundaries step: healthy below 60/70, warning below 80/85, critical
// beyond. The stricter of the two inputs wins.
func Health(cpu, memory float64) HealthStatus {
	if cpu < 60 && memory < 70 {
		return HealthHealthy
	}
	if cpu < 80 && memory < 85 {
		return HealthWarning
	}
	return HealthCritical
}
