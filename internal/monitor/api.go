package monitor

import (
	"context"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/config"
	"github.com/eyenet/eyenet-monitor/internal/events"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/notify"
	"github.com/eyenet/eyenet-monitor/internal/schedule"
)

// HealthMetrics are the inputs that drove a health classification.
type HealthMetrics struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Uptime float64 `json:"uptime"`
}

// SystemHealth is the discretized health report.
type SystemHealth struct {
	Status  alerts.HealthStatus `json:"status"`
	Metrics HealthMetrics       `json:"metrics"`
}

// Export is a bounded slice of history for one timeframe.
type Export struct {
	Timeframe string                     `json:"timeframe"`
	From      time.Time                  `json:"from"`
	To        time.Time                  `json:"to"`
	History   map[string][]metrics.Point `json:"history"`
	Alerts    []alerts.Alert             `json:"alerts"`
}

// GetMetrics returns a deep-copied snapshot of current values and history.
func (s *Service) GetMetrics() metrics.Snapshot {
	return s.store.Snapshot()
}

// GetSystemHealth classifies current CPU utilization and memory usage.
// Missing samples read as zero, which classifies as healthy; the first
// collector run replaces that within one interval.
func (s *Service) GetSystemHealth() SystemHealth {
	snap := s.store.Snapshot()
	cpu, _ := snap.Lookup("system.cpu.utilization")
	memory, _ := snap.Lookup("system.memory.usedPercent")
	uptime, _ := snap.Lookup("system.uptime")

	return SystemHealth{
		Status: alerts.Health(cpu, memory),
		Metrics: HealthMetrics{
			CPU:    cpu,
			Memory: memory,
			Uptime: uptime,
		},
	}
}

// ExportMetrics returns history and alerts restricted to the timeframe.
func (s *Service) ExportMetrics(tf metrics.Timeframe) Export {
	now := time.Now()
	since := now.Add(-tf.Duration())

	return Export{
		Timeframe: tf.String(),
		From:      since,
		To:        now,
		History:   s.store.HistorySince(since),
		Alerts:    s.ring.Since(since),
	}
}

// Alerts returns the retained alerts, most recent first.
func (s *Service) Alerts() []alerts.Alert {
	return s.ring.All()
}

// AcknowledgeAlert marks an alert acknowledged in the ring and in
// persisted history.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) error {
	if err := s.ring.Acknowledge(id); err != nil {
		return err
	}
	if err := s.alertStore.MarkAcknowledged(ctx, id); err != nil {
		logger.Warn("alert acknowledged in ring but not in history", "id", id, "error", err)
	}
	return nil
}

// AddCustomMetric records an ad hoc metric value. Threshold evaluation for
// the metric runs before this returns.
func (s *Service) AddCustomMetric(name string, value float64, metadata map[string]string) {
	s.store.AddCustomMetric(name, value, metadata)
}

// RecordAPIMetric feeds one HTTP request observation into the api category.
func (s *Service) RecordAPIMetric(method, path string, durationMs float64, statusCode int) {
	s.store.RecordAPIMetric(method, path, durationMs, statusCode)
}

// RecordWebSocketMetric feeds a websocket lifecycle observation.
func (s *Service) RecordWebSocketMetric(event string, connectionCount int) {
	s.store.RecordWebSocketMetric(event, connectionCount)
}

// RecordDatabaseMetric feeds one database operation timing.
func (s *Service) RecordDatabaseMetric(operation, collection string, durationMs float64) {
	s.store.RecordDatabaseMetric(operation, collection, durationMs)
}

// RecordSecurityIncident bumps the security incident counter.
func (s *Service) RecordSecurityIncident() {
	s.store.RecordSecurityIncident()
}

// RecordJobResult tracks a background job outcome.
func (s *Service) RecordJobResult(name string, success bool) {
	s.store.RecordJobResult(name, success)
}

// Subscribe returns a bounded event channel for the given topics and its
// cancel function. No topics means all topics.
func (s *Service) Subscribe(buffer int, topics ...events.Topic) (<-chan events.Event, func()) {
	return s.bus.Subscribe(buffer, topics...)
}

// RecentNotifications returns persisted delivery records, newest first.
func (s *Service) RecentNotifications(ctx context.Context, limit int) ([]notify.Record, error) {
	return s.notifStore.Recent(ctx, limit)
}

// RegisterSchedule installs or replaces a recurring notification job.
func (s *Service) RegisterSchedule(def schedule.Definition) error {
	return s.schedules.Register(def)
}

// UnregisterSchedule removes a recurring notification job.
func (s *Service) UnregisterSchedule(id string) {
	s.schedules.Unregister(id)
}

// Schedules lists the registered recurring jobs.
func (s *Service) Schedules() []schedule.Definition {
	return s.schedules.Jobs()
}

// Thresholds exposes the live threshold limits.
func (s *Service) Thresholds() *alerts.Thresholds {
	return s.thresholds
}

// UpdateThresholds validates and installs a new limit table, then rewrites
// the threshold document. Configured channels are test-sent first so a
// threshold change never activates alerting toward a broken destination.
// On any failure the previous limits stay in effect.
func (s *Service) UpdateThresholds(ctx context.Context, limits map[string]map[string]float64) error {
	if err := alerts.ValidateLimits(limits); err != nil {
		return err
	}
	if err := s.dispatcher.TestConfiguration(ctx); err != nil {
		logger.Warn("threshold update rejected", "error", err)
		return err
	}

	prev := s.thresholds.All()
	s.thresholds.Replace(limits)
	if err := s.thresholds.Save(); err != nil {
		s.thresholds.Replace(prev)
		return err
	}
	logger.Info("thresholds updated", "categories", len(limits))
	return nil
}

// UpdateNotificationSettings validates the new settings with a live test
// send before applying them. On any failure the previous settings stay in
// effect.
func (s *Service) UpdateNotificationSettings(ctx context.Context, nc config.NotifyConfig) error {
	candidate := notify.NewDispatcher(s.dispatcher.Templates(), nil)

	channels := make(map[notify.ChannelType]notify.Channel)
	if nc.Email.Enabled {
		channels[notify.ChannelEmail] = notify.NewEmailChannel(
			nc.Email.APIKey, nc.Email.From, nc.Email.FromName)
	}
	if nc.Discord.Enabled {
		channels[notify.ChannelDiscord] = notify.NewDiscordChannel(nc.Discord.WebhookURL)
	}
	candidate.ReplaceChannels(channels)

	if err := candidate.TestConfiguration(ctx); err != nil {
		logger.Warn("notification settings rejected", "error", err)
		return err
	}

	if err := s.applyNotifySettings(nc); err != nil {
		return err
	}
	logger.Info("notification settings updated",
		"email", nc.Email.Enabled,
		"discord", nc.Discord.Enabled)
	return nil
}
