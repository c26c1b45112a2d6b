// Package schedule runs recurring notification jobs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/notify"
)

// Definition describes one recurring notification job.
type Definition struct {
	ID         string
	Cron       string
	Channel    notify.ChannelType
	Recipients []string
	WebhookURL string
	Template   string
	Severity   alerts.Level
	// Conditions gate the send. A job whose conditions are not all met
	// at fire time skips silently.
	Conditions []alerts.Condition
}

// Validate rejects malformed definitions before they reach the scheduler.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("schedule: id is required")
	}
	if _, err := cron.ParseStandard(d.Cron); err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression %q: %w", d.ID, d.Cron, err)
	}
	switch d.Channel {
	case notify.ChannelEmail:
		if len(d.Recipients) == 0 {
			return fmt.Errorf("schedule %q: email channel requires recipients", d.ID)
		}
	case notify.ChannelDiscord:
		if d.WebhookURL == "" {
			return fmt.Errorf("schedule %q: discord channel requires a webhook URL", d.ID)
		}
	default:
		return fmt.Errorf("schedule %q: unknown channel %q", d.ID, d.Channel)
	}
	if d.Template == "" {
		return fmt.Errorf("schedule %q: template is required", d.ID)
	}
	if !d.Severity.IsValid() {
		return fmt.Errorf("schedule %q: invalid severity %q", d.ID, d.Severity)
	}
	for _, c := range d.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("schedule %q: %w", d.ID, err)
		}
	}
	return nil
}

// SnapshotFunc supplies the metrics snapshot a firing job evaluates and
// reports against.
type SnapshotFunc func() metrics.Snapshot

// Runner owns the cron scheduler and the live set of jobs. Registering an
// ID that already exists replaces the previous job, so a rescheduled
// report never fires on both the old and new cadence.
type Runner struct {
	dispatcher *notify.Dispatcher
	snapshot   SnapshotFunc

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	defs    map[string]Definition
}

// NewRunner creates a schedule runner. Jobs registered before Start are
// held until the scheduler starts.
func NewRunner(dispatcher *notify.Dispatcher, snapshot SnapshotFunc) *Runner {
	return &Runner{
		dispatcher: dispatcher,
		snapshot:   snapshot,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
		defs:       make(map[string]Definition),
	}
}

// Start begins firing jobs.
func (r *Runner) Start() {
	r.cron.Start()
	logger.Info("schedule runner started", "jobs", len(r.entries))
}

// Stop halts the scheduler and waits for any running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	logger.Info("schedule runner stopped")
}

// Register installs a job, replacing any existing job with the same ID.
// A validation failure leaves the previous registration untouched.
func (r *Runner) Register(def Definition) error {
	if def.Severity == "" {
		def.Severity = alerts.LevelInfo
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if !r.dispatcher.HasTemplate(def.Template) {
		return fmt.Errorf("schedule %q: %w", def.ID, &notify.UnknownTemplateError{Name: def.Template})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[def.ID]; ok {
		r.cron.Remove(old)
	}

	id, err := r.cron.AddFunc(def.Cron, func() { r.fire(def) })
	if err != nil {
		delete(r.entries, def.ID)
		delete(r.defs, def.ID)
		return fmt.Errorf("schedule %q: %w", def.ID, err)
	}
	r.entries[def.ID] = id
	r.defs[def.ID] = def

	logger.Info("schedule registered",
		"id", def.ID,
		"cron", def.Cron,
		"channel", def.Channel,
		"template", def.Template)
	return nil
}

// Unregister removes a job. Unknown IDs are a no-op.
func (r *Runner) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[id]; ok {
		r.cron.Remove(entry)
		delete(r.entries, id)
		delete(r.defs, id)
		logger.Info("schedule unregistered", "id", id)
	}
}

// Jobs returns the currently registered definitions.
func (r *Runner) Jobs() []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// fire evaluates one job occurrence. Failures are logged and the job stays
// registered for its next occurrence.
func (r *Runner) fire(def Definition) {
	snap := r.snapshot()

	if !alerts.CheckConditions(snap, def.Conditions) {
		logger.Debug("schedule skipped, conditions not met", "id", def.ID)
		return
	}

	req := notify.Request{
		Channel:    def.Channel,
		Recipients: def.Recipients,
		WebhookURL: def.WebhookURL,
		Template:   def.Template,
		Severity:   def.Severity,
		Conditions: def.Conditions,
		Snapshot:   snap,
	}

	if err := r.dispatcher.Send(context.Background(), req); err != nil {
		logger.Error("scheduled notification failed",
			"id", def.ID,
			"channel", def.Channel,
			"error", err)
	}
}
