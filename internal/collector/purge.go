package collector

import (
	"context"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// Pruner removes persisted rows older than a cutoff. Implemented by the
// sqlite history stores.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeTask trims in-memory history to the configured window and prunes
// persisted history to the retention period.
type PurgeTask struct {
	store     *metrics.Store
	window    time.Duration
	retention time.Duration
	interval  time.Duration
	pruners   []Pruner
}

// NewPurgeTask creates the periodic retention job.
func NewPurgeTask(store *metrics.Store, window, retention, interval time.Duration, pruners ...Pruner) *PurgeTask {
	return &PurgeTask{
		store:     store,
		window:    window,
		retention: retention,
		interval:  interval,
		pruners:   pruners,
	}
}

func (t *PurgeTask) Name() string            { return "purge" }
func (t *PurgeTask) Interval() time.Duration { return t.interval }

func (t *PurgeTask) Run(ctx context.Context) error {
	purged := t.store.PurgeOlderThan(t.window)
	telemetry.SetHistoryPoints(t.store.TotalPoints())
	if purged > 0 {
		logger.Debug("purged in-memory history", "points", purged)
	}

	cutoff := time.Now().Add(-t.retention)
	var firstErr error
	for _, p := range t.pruners {
		if _, err := p.PruneBefore(ctx, cutoff); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
