package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// Request describes one notification to deliver. The snapshot is captured
// when the request is created so batched sends report the state that
// triggered them, not the state at flush time.
type Request struct {
	Channel    ChannelType
	Recipients []string // email
	WebhookURL string   // discord
	Template   string
	Severity   alerts.Level
	Conditions []alerts.Condition
	Snapshot   metrics.Snapshot
	CreatedAt  time.Time
}

// Target returns the destination string recorded in history: the sorted
// recipient list for email, the webhook URL for discord.
func (r Request) Target() string {
	if r.Channel == ChannelEmail {
		rcpts := append([]string(nil), r.Recipients...)
		sort.Strings(rcpts)
		return strings.Join(rcpts, ",")
	}
	return r.WebhookURL
}

// BatchKey identifies the aggregation bucket for a request. Requests with
// the same destination share a bucket regardless of recipient order.
func (r Request) BatchKey() string {
	return string(r.Channel) + "|" + r.Target()
}

// Dispatcher renders requests and hands them to the matching channel,
// recording every attempt in history.
type Dispatcher struct {
	mu        sync.RWMutex
	channels  map[ChannelType]Channel
	templates *Templates
	history   HistoryStore
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher. history may be nil, in which case
// delivery records are only logged.
func NewDispatcher(templates *Templates, history HistoryStore) *Dispatcher {
	return &Dispatcher{
		channels:  make(map[ChannelType]Channel),
		templates: templates,
		history:   history,
		timeout:   30 * time.Second,
	}
}

// SetChannel installs or replaces the channel for its type.
func (d *Dispatcher) SetChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.Type()] = ch
}

// ReplaceChannels swaps the full channel set in one step. Used when
// notification settings change after a successful configuration test.
func (d *Dispatcher) ReplaceChannels(channels map[ChannelType]Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = channels
}

// Channel returns the channel registered for the type, if any.
func (d *Dispatcher) Channel(t ChannelType) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[t]
	return ch, ok
}

// HasTemplate reports whether the named template is registered.
func (d *Dispatcher) HasTemplate(name string) bool {
	return d.templates.Has(name)
}

// Templates exposes the registry so callers can install custom templates.
func (d *Dispatcher) Templates() *Templates {
	return d.templates
}

// Send renders and delivers one request. Single sends are not retried;
// the error is returned for the caller to log. Every attempt, success or
// failure, lands in notification history with the resolved condition
// values at send time.
func (d *Dispatcher) Send(ctx context.Context, req Request) error {
	return d.send(ctx, req, 1)
}

// SendBatch delivers a request that stands in for count aggregated
// notifications.
func (d *Dispatcher) SendBatch(ctx context.Context, req Request, count int) error {
	return d.send(ctx, req, count)
}

func (d *Dispatcher) send(ctx context.Context, req Request, count int) error {
	ch, ok := d.Channel(req.Channel)
	if !ok {
		return fmt.Errorf("no channel configured for type %q", req.Channel)
	}

	// Resolve conditions against the request's snapshot for the audit
	// trail, independent of whether the caller already gated on them.
	_, results := alerts.EvaluateConditions(req.Snapshot, req.Conditions)

	rendered, err := d.templates.Render(req.Template, TemplateData{
		Timestamp:  time.Now(),
		Severity:   req.Severity,
		Snapshot:   req.Snapshot,
		BatchCount: count,
	})
	if err != nil {
		d.record(req, results, count, err)
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = ch.Send(sendCtx, Message{
		Recipients: req.Recipients,
		WebhookURL: req.WebhookURL,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
		Severity:   req.Severity,
	})
	d.record(req, results, count, err)
	if err != nil {
		return fmt.Errorf("deliver %s notification: %w", req.Channel, err)
	}
	return nil
}

// RecordFailure writes a failed delivery to history without attempting a
// send. The aggregator uses this when a batch exhausts its retries.
func (d *Dispatcher) RecordFailure(req Request, count int, cause error) {
	_, results := alerts.EvaluateConditions(req.Snapshot, req.Conditions)
	d.record(req, results, count, cause)
}

func (d *Dispatcher) record(req Request, results []alerts.ConditionResult, count int, sendErr error) {
	rec := &Record{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Channel:    req.Channel,
		Target:     req.Target(),
		Template:   req.Template,
		Severity:   req.Severity,
		Status:     StatusSuccess,
		Conditions: results,
		BatchSize:  count,
	}
	if sendErr != nil {
		rec.Status = StatusFailure
		rec.Error = sendErr.Error()
	}

	telemetry.RecordNotification(string(req.Channel), string(rec.Status))

	if d.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.history.SaveNotification(ctx, rec); err != nil {
		logger.Error("failed to save notification record",
			"channel", req.Channel,
			"error", err)
	}
}

// TestConfiguration performs a live test send on every configured channel
// and returns the first failure.
func (d *Dispatcher) TestConfiguration(ctx context.Context) error {
	d.mu.RLock()
	channels := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		channels = append(channels, ch)
	}
	d.mu.RUnlock()

	for _, ch := range channels {
		testCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := ch.Test(testCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("channel %s test failed: %w", ch.Type(), err)
		}
		logger.Info("notification channel verified", "channel", ch.Type())
	}
	return nil
}
