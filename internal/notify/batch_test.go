package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
)

func newTestAggregator(t *testing.T, ch *fakeChannel, history *fakeHistory, cfg BatchConfig) *Aggregator {
	t.Helper()
	d := NewDispatcher(NewTemplates(), history)
	d.SetChannel(ch)
	a, err := NewAggregator(cfg, d)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a
}

func smallBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:     10,
		MinBatchInterval: time.Minute,
		BatchTimeWindow:  5 * time.Minute,
		MaxRetries:       3,
	}
}

func TestAggregatorFlushesSynchronouslyAtMaxSize(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	a := newTestAggregator(t, ch, &fakeHistory{}, smallBatchConfig())

	// Nine requests stay queued; the loop is not running.
	for i := 0; i < 9; i++ {
		a.Enqueue(emailRequest([]string{"ops@example.com"}))
	}
	if ch.sentCount() != 0 {
		t.Fatalf("expected no delivery below max size, got %d", ch.sentCount())
	}
	if a.QueueDepth() != 9 {
		t.Fatalf("expected 9 queued, got %d", a.QueueDepth())
	}

	// The tenth triggers an immediate combined send.
	a.Enqueue(emailRequest([]string{"ops@example.com"}))

	if ch.sentCount() != 1 {
		t.Fatalf("expected exactly one combined delivery, got %d", ch.sentCount())
	}
	if a.QueueDepth() != 0 {
		t.Fatalf("expected empty queue after flush, got %d", a.QueueDepth())
	}

	msg := ch.lastSent()
	if !strings.Contains(msg.Body, "10 notifications") {
		t.Errorf("combined body should mention the batch size, got:\n%s", msg.Body)
	}
}

func TestAggregatorCombinesWithMaxAggregation(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	cfg := smallBatchConfig()
	cfg.MaxBatchSize = 2
	a := newTestAggregator(t, ch, &fakeHistory{}, cfg)

	low := emailRequest([]string{"ops@example.com"})
	low.Snapshot = testSnapshot(40)
	high := emailRequest([]string{"ops@example.com"})
	high.Snapshot = testSnapshot(70)

	a.Enqueue(low)
	a.Enqueue(high)

	if ch.sentCount() != 1 {
		t.Fatalf("expected one combined delivery, got %d", ch.sentCount())
	}
	// The combined body reports the worst observed value, not the latest.
	if !strings.Contains(ch.lastSent().Body, "70.0%") {
		t.Errorf("expected max-aggregated memory 70.0%%, got:\n%s", ch.lastSent().Body)
	}
}

func TestAggregatorCombinedSeverityIsMax(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	cfg := smallBatchConfig()
	cfg.MaxBatchSize = 2
	a := newTestAggregator(t, ch, &fakeHistory{}, cfg)

	warn := emailRequest([]string{"ops@example.com"})
	warn.Severity = alerts.LevelWarning
	crit := emailRequest([]string{"ops@example.com"})
	crit.Severity = alerts.LevelCritical

	a.Enqueue(warn)
	a.Enqueue(crit)

	if ch.sentCount() != 1 {
		t.Fatalf("expected one delivery, got %d", ch.sentCount())
	}
	if !strings.Contains(ch.lastSent().Subject, "critical") {
		t.Errorf("combined subject should carry the max severity, got %q", ch.lastSent().Subject)
	}
}

func TestAggregatorDropsAfterMaxRetries(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	ch.failures = 100 // never succeeds
	history := &fakeHistory{}
	cfg := smallBatchConfig()
	cfg.MaxBatchSize = 2
	a := newTestAggregator(t, ch, history, cfg)

	a.Enqueue(emailRequest([]string{"ops@example.com"}))
	a.Enqueue(emailRequest([]string{"ops@example.com"})) // attempt 1: fails, requeued

	key := emailRequest([]string{"ops@example.com"}).BatchKey()
	a.flushKey(context.Background(), key) // attempt 2
	a.flushKey(context.Background(), key) // attempt 3: exhausts retries, drops

	if a.QueueDepth() != 0 {
		t.Fatalf("expected dropped batch to leave queue empty, got depth %d", a.QueueDepth())
	}

	// A fourth flush must be a no-op: nothing left to retry.
	before := failureCount(history)
	a.flushKey(context.Background(), key)
	if got := failureCount(history); got != before {
		t.Fatalf("dropped batch was retried again: %d -> %d failure records", before, got)
	}

	if ch.sentCount() != 0 {
		t.Fatalf("no delivery should have succeeded, got %d", ch.sentCount())
	}
	// Each failed attempt plus the final drop is recorded.
	if before < 1 {
		t.Fatal("expected at least one failure record for the dropped batch")
	}
}

func failureCount(h *fakeHistory) int {
	n := 0
	for _, rec := range h.all() {
		if rec.Status == StatusFailure {
			n++
		}
	}
	return n
}

func TestAggregatorRetryPreservesRequests(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	ch.failures = 1 // first attempt fails, second succeeds
	cfg := smallBatchConfig()
	cfg.MaxBatchSize = 2
	a := newTestAggregator(t, ch, &fakeHistory{}, cfg)

	a.Enqueue(emailRequest([]string{"ops@example.com"}))
	a.Enqueue(emailRequest([]string{"ops@example.com"})) // attempt 1 fails

	if a.QueueDepth() != 2 {
		t.Fatalf("failed batch should be requeued, depth = %d", a.QueueDepth())
	}

	a.flushKey(context.Background(), emailRequest([]string{"ops@example.com"}).BatchKey())
	if ch.sentCount() != 1 {
		t.Fatalf("retry should deliver, got %d sends", ch.sentCount())
	}
	if a.QueueDepth() != 0 {
		t.Fatalf("expected empty queue after successful retry, got %d", a.QueueDepth())
	}
}

func TestAggregatorSeparateDestinationsSeparateBatches(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	cfg := smallBatchConfig()
	cfg.MaxBatchSize = 2
	a := newTestAggregator(t, ch, &fakeHistory{}, cfg)

	a.Enqueue(emailRequest([]string{"a@example.com"}))
	a.Enqueue(emailRequest([]string{"b@example.com"}))

	// Different destinations never share a bucket, so neither reached
	// max size.
	if ch.sentCount() != 0 {
		t.Fatalf("expected no delivery, got %d", ch.sentCount())
	}
	if a.QueueDepth() != 2 {
		t.Fatalf("expected both requests queued, got %d", a.QueueDepth())
	}
}

func TestAggregatorTimeWindowFlush(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	cfg := smallBatchConfig()
	a := newTestAggregator(t, ch, &fakeHistory{}, cfg)

	a.Enqueue(emailRequest([]string{"ops@example.com"}))

	// Below max size and inside the window: the scan leaves it queued.
	a.flushAll(context.Background(), false)
	if ch.sentCount() != 0 {
		t.Fatalf("expected no flush inside the window, got %d", ch.sentCount())
	}

	// Age the bucket past the window, then scan again.
	key := emailRequest([]string{"ops@example.com"}).BatchKey()
	a.mu.Lock()
	a.buckets[key].firstQueued = time.Now().Add(-cfg.BatchTimeWindow - time.Second)
	a.mu.Unlock()

	a.flushAll(context.Background(), false)
	if ch.sentCount() != 1 {
		t.Fatalf("expected window-expired flush, got %d", ch.sentCount())
	}
}

func TestAggregatorStopFlushesPending(t *testing.T) {
	ch := newFakeChannel(ChannelEmail)
	a := newTestAggregator(t, ch, &fakeHistory{}, smallBatchConfig())

	a.Enqueue(emailRequest([]string{"ops@example.com"}))
	a.Stop()

	if ch.sentCount() != 1 {
		t.Fatalf("expected shutdown flush, got %d sends", ch.sentCount())
	}
}

func TestBatchConfigValidate(t *testing.T) {
	bad := []BatchConfig{
		{MaxBatchSize: 0, MinBatchInterval: time.Minute, BatchTimeWindow: 5 * time.Minute, MaxRetries: 3},
		{MaxBatchSize: 10, MinBatchInterval: 0, BatchTimeWindow: 5 * time.Minute, MaxRetries: 3},
		{MaxBatchSize: 10, MinBatchInterval: 5 * time.Minute, BatchTimeWindow: time.Minute, MaxRetries: 3},
		{MaxBatchSize: 10, MinBatchInterval: time.Minute, BatchTimeWindow: 5 * time.Minute, MaxRetries: 0},
	}
	for i, cfg := range bad {
		if _, err := NewAggregator(cfg, NewDispatcher(NewTemplates(), nil)); err == nil {
			t.Errorf("config %d should be rejected", i)
		}
	}
	if _, err := NewAggregator(DefaultBatchConfig(), NewDispatcher(NewTemplates(), nil)); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}
