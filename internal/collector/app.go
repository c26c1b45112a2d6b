package collector

import (
	"context"
	"runtime"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// ApplicationSampler reads process-level metrics (goroutines, heap, process
// uptime) into the application category.
type ApplicationSampler struct {
	store    *metrics.Store
	interval time.Duration
	started  time.Time
}

// NewApplicationSampler creates an application sampler writing into the store.
func NewApplicationSampler(store *metrics.Store, interval time.Duration) *ApplicationSampler {
	return &ApplicationSampler{
		store:    store,
		interval: interval,
		started:  time.Now(),
	}
}

func (s *ApplicationSampler) Name() string            { return "application" }
func (s *ApplicationSampler) Interval() time.Duration { return s.interval }

func (s *ApplicationSampler) Run(ctx context.Context) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.store.SetCurrent(metrics.CategoryApplication, map[string]any{
		"goroutines": float64(runtime.NumGoroutine()),
		"uptime":     time.Since(s.started).Seconds(),
		"heap": map[string]any{
			"allocBytes": float64(ms.HeapAlloc),
			"sysBytes":   float64(ms.HeapSys),
			"objects":    float64(ms.HeapObjects),
			"gcRuns":     float64(ms.NumGC),
		},
	})

	s.store.AppendHistory("application.goroutines",
		metrics.NewPointAt(time.Now(), float64(runtime.NumGoroutine())))
	return nil
}
