package monitor

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/config"
	"github.com/eyenet/eyenet-monitor/internal/events"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	dir := t.TempDir()
	cfg.Alerts.ThresholdsPath = filepath.Join(dir, "thresholds.json")
	cfg.Database.Path = filepath.Join(dir, "monitor.db")
	cfg.Logging.Path = filepath.Join(dir, "monitor.log")
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServiceStartStop(t *testing.T) {
	svc := newTestService(t)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Error("second start should fail")
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestCustomMetricAlertFlow(t *testing.T) {
	svc := newTestService(t)

	svc.Thresholds().Set("custom", "queueDepth", 10)

	ch, cancel := svc.Subscribe(4, events.TopicAlert)
	defer cancel()

	// Below threshold: no alert.
	svc.AddCustomMetric("queueDepth", 5, nil)
	// Above threshold: evaluated synchronously on record.
	svc.AddCustomMetric("queueDepth", 50, nil)

	var fired *alerts.Alert
	for _, a := range svc.Alerts() {
		if strings.Contains(a.Title, "queueDepth") {
			fired = &a
			break
		}
	}
	if fired == nil {
		t.Fatal("expected a custom metric alert in the ring")
	}
	if fired.Level != alerts.LevelWarning {
		t.Errorf("expected warning level, got %s", fired.Level)
	}

	select {
	case evt := <-ch:
		if evt.Topic != events.TopicAlert {
			t.Errorf("unexpected topic %q", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("alert event not published on the bus")
	}

	// The alert is also queryable from persisted history.
	recent, err := svc.alertStore.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(recent) == 0 {
		t.Fatal("expected the alert to be persisted")
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	svc := newTestService(t)
	svc.Thresholds().Set("custom", "x", 1)
	svc.AddCustomMetric("x", 2, nil)

	alertsList := svc.Alerts()
	if len(alertsList) == 0 {
		t.Fatal("expected an alert")
	}
	id := alertsList[0].ID

	if err := svc.AcknowledgeAlert(context.Background(), id); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !svc.Alerts()[0].Acknowledged {
		t.Error("alert not acknowledged in ring")
	}

	if err := svc.AcknowledgeAlert(context.Background(), "missing"); err == nil {
		t.Error("acknowledging an unknown ID should fail")
	}
}

func TestGetSystemHealthBeforeFirstSample(t *testing.T) {
	svc := newTestService(t)

	health := svc.GetSystemHealth()
	if health.Status != alerts.HealthHealthy {
		t.Errorf("empty store should read healthy, got %s", health.Status)
	}
	if health.Metrics.CPU != 0 || health.Metrics.Memory != 0 {
		t.Errorf("expected zero metrics, got %+v", health.Metrics)
	}
}

func TestExportMetricsTimeframe(t *testing.T) {
	svc := newTestService(t)
	svc.AddCustomMetric("latency", 12, nil)

	export := svc.ExportMetrics(metrics.Timeframe1h)
	if export.Timeframe != "1h" {
		t.Errorf("timeframe label = %q", export.Timeframe)
	}
	if len(export.History["latency"]) != 1 {
		t.Errorf("expected the recorded point in the export, got %v", export.History)
	}
	if export.To.Sub(export.From) != time.Hour {
		t.Errorf("export span = %s", export.To.Sub(export.From))
	}
}

func TestUpdateThresholdsValidatesAndPersists(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	limits := map[string]map[string]float64{
		"system": {"cpu": 70, "memory": 90},
		"custom": {"queueDepth": 25},
	}
	if err := svc.UpdateThresholds(context.Background(), limits); err != nil {
		t.Fatalf("update thresholds: %v", err)
	}

	if v, ok := svc.Thresholds().Get("system", "memory"); !ok || v != 90 {
		t.Errorf("live limit not swapped: %v (ok=%v)", v, ok)
	}

	// The document is rewritten so a restart picks up the new limits.
	reloaded := alerts.LoadThresholds(cfg.Alerts.ThresholdsPath)
	if v, ok := reloaded.Get("custom", "queueDepth"); !ok || v != 25 {
		t.Errorf("persisted limit missing after reload: %v (ok=%v)", v, ok)
	}
}

func TestUpdateThresholdsRejectsInvalidLimits(t *testing.T) {
	svc := newTestService(t)
	before, _ := svc.Thresholds().Get("system", "memory")

	bad := map[string]map[string]float64{
		"system": {"memory": math.NaN()},
	}
	if err := svc.UpdateThresholds(context.Background(), bad); err == nil {
		t.Fatal("non-finite limit should be rejected")
	}
	if err := svc.UpdateThresholds(context.Background(), nil); err == nil {
		t.Fatal("empty limit table should be rejected")
	}

	if v, _ := svc.Thresholds().Get("system", "memory"); v != before {
		t.Errorf("rejected update changed live limits: %v -> %v", before, v)
	}
}

func TestUpdateThresholdsRejectedOnChannelTestFailure(t *testing.T) {
	svc := newTestService(t)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	// Install a discord channel whose test send fails, bypassing the
	// settings-update verification.
	if err := svc.applyNotifySettings(config.NotifyConfig{
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: bad.URL},
	}); err != nil {
		t.Fatalf("apply settings: %v", err)
	}

	before, _ := svc.Thresholds().Get("system", "cpu")
	err := svc.UpdateThresholds(context.Background(), map[string]map[string]float64{
		"system": {"cpu": 50},
	})
	if err == nil {
		t.Fatal("failing channel test should reject the threshold update")
	}
	if v, _ := svc.Thresholds().Get("system", "cpu"); v != before {
		t.Errorf("rejected update changed live limits: %v -> %v", before, v)
	}
}

func TestUpdateNotificationSettingsRejectedOnTestFailure(t *testing.T) {
	svc := newTestService(t)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	nc := config.NotifyConfig{
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: bad.URL},
	}
	if err := svc.UpdateNotificationSettings(context.Background(), nc); err == nil {
		t.Fatal("failing test send should reject the settings")
	}

	// Prior (empty) settings stay in effect.
	svc.mu.Lock()
	discordEnabled := svc.notifCfg.Discord.Enabled
	svc.mu.Unlock()
	if discordEnabled {
		t.Error("rejected settings were applied")
	}
}

func TestUpdateNotificationSettingsApplied(t *testing.T) {
	svc := newTestService(t)

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	nc := config.NotifyConfig{
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: ok.URL},
	}
	if err := svc.UpdateNotificationSettings(context.Background(), nc); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	svc.mu.Lock()
	applied := svc.notifCfg.Discord.Enabled
	svc.mu.Unlock()
	if !applied {
		t.Error("verified settings not applied")
	}

	// An alert at warning level now routes to discord.
	decisions := svc.evaluator.ShouldNotify(alerts.LevelWarning)
	if !decisions["discord"] {
		t.Error("notify policy not updated for the new channel")
	}
}
