package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// BatchConfig tunes the notification aggregator.
type BatchConfig struct {
	// MaxBatchSize triggers an immediate flush when a bucket reaches it.
	MaxBatchSize int
	// MinBatchInterval is how often the background loop scans buckets.
	MinBatchInterval time.Duration
	// BatchTimeWindow is how long a bucket may accumulate before the
	// scan flushes it regardless of size.
	BatchTimeWindow time.Duration
	// MaxRetries is how many delivery attempts a batch gets before its
	// requests are dropped.
	MaxRetries int
}

// DefaultBatchConfig returns the standard aggregation settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:     10,
		MinBatchInterval: time.Minute,
		BatchTimeWindow:  5 * time.Minute,
		MaxRetries:       3,
	}
}

func (c BatchConfig) validate() error {
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be at least 1, got %d", c.MaxBatchSize)
	}
	if c.MinBatchInterval <= 0 {
		return fmt.Errorf("min batch interval must be positive, got %s", c.MinBatchInterval)
	}
	if c.BatchTimeWindow < c.MinBatchInterval {
		return fmt.Errorf("batch time window %s is shorter than the flush interval %s",
			c.BatchTimeWindow, c.MinBatchInterval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}

// bucket accumulates requests for one destination.
type bucket struct {
	pending []Request
	// firstQueued starts the time window; reset after every flush.
	firstQueued time.Time
	retryCount  int
	// flushing serializes delivery per destination. Concurrent flushes
	// of different buckets are fine.
	flushing bool
}

// Aggregator coalesces notification requests per destination so a burst of
// alerts produces one combined message instead of ten individual ones.
type Aggregator struct {
	cfg        BatchConfig
	dispatcher *Dispatcher

	mu      sync.Mutex
	buckets map[string]*bucket

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAggregator creates an aggregator. Start must be called before the
// time-window flushes take effect; Enqueue works immediately.
func NewAggregator(cfg BatchConfig, dispatcher *Dispatcher) (*Aggregator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("batch config: %w", err)
	}
	return &Aggregator{
		cfg:        cfg,
		dispatcher: dispatcher,
		buckets:    make(map[string]*bucket),
	}, nil
}

// Start launches the background flush loop.
func (a *Aggregator) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go a.flushLoop(loopCtx)
	logger.Info("notification aggregator started",
		"maxBatchSize", a.cfg.MaxBatchSize,
		"flushInterval", a.cfg.MinBatchInterval,
		"timeWindow", a.cfg.BatchTimeWindow)
}

// Stop halts the flush loop and flushes all remaining buckets once.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.flushAll(context.Background(), true)
}

// Enqueue adds a request to its destination bucket. Reaching MaxBatchSize
// flushes the bucket synchronously before returning, so callers see
// bounded queue growth.
func (a *Aggregator) Enqueue(req Request) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	key := req.BatchKey()

	a.mu.Lock()
	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{firstQueued: time.Now()}
		a.buckets[key] = b
	}
	b.pending = append(b.pending, req)
	full := len(b.pending) >= a.cfg.MaxBatchSize
	depth := len(b.pending)
	a.mu.Unlock()

	telemetry.SetBatchQueueDepth(a.QueueDepth())
	logger.Debug("notification queued", "key", key, "pending", depth)

	if full {
		a.flushKey(context.Background(), key)
	}
}

// QueueDepth returns the total number of pending requests across buckets.
func (a *Aggregator) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, b := range a.buckets {
		total += len(b.pending)
	}
	return total
}

func (a *Aggregator) flushLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.MinBatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flushAll(ctx, false)
		}
	}
}

// flushAll flushes every bucket that is due. force flushes regardless of
// window or size, used on shutdown.
func (a *Aggregator) flushAll(ctx context.Context, force bool) {
	now := time.Now()

	a.mu.Lock()
	due := make([]string, 0, len(a.buckets))
	for key, b := range a.buckets {
		if len(b.pending) == 0 || b.flushing {
			continue
		}
		if force ||
			len(b.pending) >= a.cfg.MaxBatchSize ||
			now.Sub(b.firstQueued) >= a.cfg.BatchTimeWindow {
			due = append(due, key)
		}
	}
	a.mu.Unlock()

	for _, key := range due {
		a.flushKey(ctx, key)
	}
}

// flushKey drains one bucket and delivers its contents as combined
// notifications. A failed delivery re-queues the drained requests at the
// head of the bucket until MaxRetries is exhausted, then drops them with a
// failure record.
func (a *Aggregator) flushKey(ctx context.Context, key string) {
	a.mu.Lock()
	b, ok := a.buckets[key]
	if !ok || b.flushing || len(b.pending) == 0 {
		a.mu.Unlock()
		return
	}
	b.flushing = true
	batch := b.pending
	b.pending = nil
	a.mu.Unlock()

	err := a.deliver(ctx, batch)

	a.mu.Lock()
	b.flushing = false
	if err == nil {
		b.retryCount = 0
		b.firstQueued = time.Now()
		if len(b.pending) == 0 {
			delete(a.buckets, key)
		}
		a.mu.Unlock()
		telemetry.RecordBatchFlush("success")
		telemetry.SetBatchQueueDepth(a.QueueDepth())
		return
	}

	b.retryCount++
	exhausted := b.retryCount >= a.cfg.MaxRetries
	if !exhausted {
		// Put the failed requests back ahead of anything queued during
		// the attempt so ordering survives the retry.
		b.pending = append(batch, b.pending...)
	} else if len(b.pending) == 0 {
		delete(a.buckets, key)
	} else {
		b.retryCount = 0
	}
	attempt := b.retryCount
	a.mu.Unlock()

	if exhausted {
		logger.Error("dropping notification batch after repeated failures",
			"key", key,
			"size", len(batch),
			"attempts", a.cfg.MaxRetries,
			"error", err)
		a.recordDrop(batch, err)
		telemetry.RecordBatchFlush("dropped")
	} else {
		logger.Warn("notification batch delivery failed, will retry",
			"key", key,
			"size", len(batch),
			"attempt", attempt,
			"error", err)
		telemetry.RecordBatchFlush("retry")
	}
	telemetry.SetBatchQueueDepth(a.QueueDepth())
}

// deliver groups a drained batch and sends one combined notification per
// group: email groups by template so unrelated reports don't interleave,
// discord groups by severity so embed colors stay meaningful.
func (a *Aggregator) deliver(ctx context.Context, batch []Request) error {
	groups := make(map[string][]Request)
	order := make([]string, 0, 2)
	for _, req := range batch {
		var gk string
		if req.Channel == ChannelEmail {
			gk = req.Template
		} else {
			gk = req.Severity.String()
		}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], req)
	}

	var firstErr error
	for _, gk := range order {
		group := groups[gk]
		if err := a.deliverGroup(ctx, group); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Aggregator) deliverGroup(ctx context.Context, group []Request) error {
	combined := group[0]
	combined.Severity = maxSeverity(group)
	combined.Conditions = unionConditions(group)
	combined.Snapshot = mergeSnapshots(snapshotsOf(group))

	if len(group) == 1 {
		return a.dispatcher.Send(ctx, combined)
	}
	return a.dispatcher.SendBatch(ctx, combined, len(group))
}

// recordDrop writes a failure record for a dropped batch so the loss is
// visible in notification history.
func (a *Aggregator) recordDrop(batch []Request, cause error) {
	combined := batch[0]
	combined.Severity = maxSeverity(batch)
	combined.Snapshot = mergeSnapshots(snapshotsOf(batch))
	a.dispatcher.RecordFailure(combined, len(batch),
		fmt.Errorf("dropped after %d attempts: %w", a.cfg.MaxRetries, cause))
}

func snapshotsOf(group []Request) []metrics.Snapshot {
	snaps := make([]metrics.Snapshot, len(group))
	for i, req := range group {
		snaps[i] = req.Snapshot
	}
	return snaps
}

func maxSeverity(group []Request) alerts.Level {
	max := group[0].Severity
	for _, req := range group[1:] {
		if req.Severity.Ordinal() > max.Ordinal() {
			max = req.Severity
		}
	}
	return max
}

// unionConditions collects the distinct conditions across a group so the
// audit record reflects every gate that contributed.
func unionConditions(group []Request) []alerts.Condition {
	seen := make(map[string]struct{})
	var out []alerts.Condition
	for _, req := range group {
		for _, c := range req.Conditions {
			k := c.String()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
