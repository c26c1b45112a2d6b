package collector

import (
	"context"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// AlertCheckTask periodically evaluates the current snapshot against the
// configured thresholds.
type AlertCheckTask struct {
	store     *metrics.Store
	evaluator *alerts.Evaluator
	interval  time.Duration
}

// NewAlertCheckTask creates the periodic threshold check.
func NewAlertCheckTask(store *metrics.Store, evaluator *alerts.Evaluator, interval time.Duration) *AlertCheckTask {
	return &AlertCheckTask{store: store, evaluator: evaluator, interval: interval}
}

func (t *AlertCheckTask) Name() string            { return "alert-check" }
func (t *AlertCheckTask) Interval() time.Duration { return t.interval }

func (t *AlertCheckTask) Run(ctx context.Context) error {
	fired := t.evaluator.CheckAlerts(t.store.Snapshot())
	if len(fired) > 0 {
		logger.Debug("threshold check fired alerts", "count", len(fired))
	}
	return nil
}
