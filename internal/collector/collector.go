// Package collector runs the periodic sampling loops that feed the
// metrics store.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// Task is one periodic collection job.
type Task interface {
	Name() string
	Interval() time.Duration
	// Run performs one sample. An error is reported, never fatal; the
	// loop keeps going.
	Run(ctx context.Context) error
}

// Runner drives each task on its own loop. The next run is scheduled
// after the current one completes, so a slow sample delays the next tick
// instead of stacking concurrent runs.
type Runner struct {
	tasks    []Task
	reporter ErrorReporter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ErrorReporter receives sampler failures so they surface as alerts, not
// just log lines.
type ErrorReporter interface {
	Record(level alerts.Level, title, message string) alerts.Alert
}

// NewRunner creates a runner over the given tasks.
func NewRunner(reporter ErrorReporter, tasks ...Task) *Runner {
	return &Runner{tasks: tasks, reporter: reporter}
}

// Start launches one goroutine per task. Each task runs once immediately
// so the store is populated before the first interval elapses.
func (r *Runner) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.loop(loopCtx, task)
	}
	logger.Info("collector started", "tasks", len(r.tasks))
}

// Stop cancels all loops and waits for in-flight samples to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	logger.Info("collector stopped")
}

func (r *Runner) loop(ctx context.Context, task Task) {
	defer r.wg.Done()

	timer := time.NewTimer(0) // fire immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.runOnce(ctx, task)

		// Reschedule only after completion.
		timer.Reset(task.Interval())
	}
}

func (r *Runner) runOnce(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("sampler panicked", "task", task.Name(), "panic", rec)
			if r.reporter != nil {
				r.reporter.Record(alerts.LevelError,
					"Metrics collection failure",
					fmt.Sprintf("sampler %s panicked: %v", task.Name(), rec))
			}
		}
	}()

	start := time.Now()
	err := task.Run(ctx)
	telemetry.RecordCollection(task.Name(), time.Since(start), err)

	if err != nil {
		logger.Error("sampler failed", "task", task.Name(), "error", err)
		if r.reporter != nil {
			r.reporter.Record(alerts.LevelError,
				"Metrics collection failure",
				fmt.Sprintf("sampler %s: %v", task.Name(), err))
		}
	}
}
