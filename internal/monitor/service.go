// Package monitor assembles the metrics store, collectors, alerting, and
// notification pipeline into one service.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/collector"
	"github.com/eyenet/eyenet-monitor/internal/config"
	"github.com/eyenet/eyenet-monitor/internal/events"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/notify"
	"github.com/eyenet/eyenet-monitor/internal/schedule"
	"github.com/eyenet/eyenet-monitor/internal/storage/sqlite"
	"github.com/eyenet/eyenet-monitor/internal/telemetry"
)

// Service owns all subsystems. Construct with New, then Start; Stop shuts
// everything down in reverse order.
type Service struct {
	cfg *config.Config

	store      *metrics.Store
	thresholds *alerts.Thresholds
	ring       *alerts.Ring
	evaluator  *alerts.Evaluator
	bus        *events.Bus

	db         *sqlite.DB
	alertStore *sqlite.AlertStore
	notifStore *sqlite.NotificationStore

	dispatcher *notify.Dispatcher
	aggregator *notify.Aggregator
	schedules  *schedule.Runner
	runner     *collector.Runner
	telemetry  *telemetry.Server

	mu       sync.Mutex
	notifCfg config.NotifyConfig
	started  bool
	cancel   context.CancelFunc
}

// New wires the service from configuration. Nothing runs until Start.
func New(cfg *config.Config) (*Service, error) {
	store := metrics.NewStore(cfg.Store.SeriesCapacity)
	thresholds := alerts.LoadThresholds(cfg.Alerts.ThresholdsPath)
	ring := alerts.NewRing(alerts.DefaultRingCapacity)
	evaluator := alerts.NewEvaluator(thresholds, ring)
	bus := events.NewBus()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	alertStore := sqlite.NewAlertStore(db)
	notifStore := sqlite.NewNotificationStore(db)

	dispatcher := notify.NewDispatcher(notify.NewTemplates(), notifStore)

	aggregator, err := notify.NewAggregator(notify.BatchConfig{
		MaxBatchSize:     cfg.Notify.Batch.MaxBatchSize,
		MinBatchInterval: cfg.Notify.Batch.MinBatchInterval,
		BatchTimeWindow:  cfg.Notify.Batch.BatchTimeWindow,
		MaxRetries:       cfg.Notify.Batch.MaxRetries,
	}, dispatcher)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		store:      store,
		thresholds: thresholds,
		ring:       ring,
		evaluator:  evaluator,
		bus:        bus,
		db:         db,
		alertStore: alertStore,
		notifStore: notifStore,
		dispatcher: dispatcher,
		aggregator: aggregator,
	}

	s.schedules = schedule.NewRunner(dispatcher, store.Snapshot)

	s.runner = collector.NewRunner(evaluator,
		collector.NewSystemSampler(store, cfg.Collector.SystemInterval),
		collector.NewApplicationSampler(store, cfg.Collector.AppInterval),
		collector.NewAlertCheckTask(store, evaluator, cfg.Collector.AlertCheckInterval),
		collector.NewPurgeTask(store,
			cfg.Store.HistoryWindow,
			cfg.Database.Retention,
			cfg.Collector.PurgeInterval,
			alertStore, notifStore),
	)

	if cfg.Telemetry.Enabled {
		s.telemetry = telemetry.NewServer(cfg.Telemetry.Listen)
	}

	if err := s.applyNotifySettings(cfg.Notify); err != nil {
		db.Close()
		return nil, err
	}
	s.wireHooks()

	for _, sc := range cfg.Schedules {
		if err := s.schedules.Register(scheduleFromConfig(sc)); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// wireHooks connects store updates and recorded alerts to the event bus,
// history persistence, and the notification pipeline.
func (s *Service) wireHooks() {
	s.store.SetUpdateHook(func(category metrics.Category, values map[string]any) {
		s.bus.Publish(events.TopicMetricsUpdate, map[string]any{
			"category": string(category),
			"values":   values,
		})
		if category == metrics.CategorySystem {
			s.bus.Publish(events.TopicDomainUpdate, values)
		}
	})

	s.store.SetCustomMetricHook(func(name string, value float64, metadata map[string]string) {
		s.evaluator.CheckCustomMetric(name, value)
	})

	s.evaluator.SetAlertHook(func(a alerts.Alert) {
		s.bus.Publish(events.TopicAlert, a)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.alertStore.SaveAlert(ctx, a); err != nil {
			logger.Error("failed to persist alert", "id", a.ID, "error", err)
		}
		cancel()

		s.enqueueAlertNotifications(a)
	})
}

// enqueueAlertNotifications routes an alert into the batch aggregator for
// every channel whose policy admits its level.
func (s *Service) enqueueAlertNotifications(a alerts.Alert) {
	decisions := s.evaluator.ShouldNotify(a.Level)
	if len(decisions) == 0 {
		return
	}

	snap := s.store.Snapshot()

	s.mu.Lock()
	notifCfg := s.notifCfg
	s.mu.Unlock()

	if decisions[string(notify.ChannelEmail)] && notifCfg.Email.Enabled {
		s.aggregator.Enqueue(notify.Request{
			Channel:    notify.ChannelEmail,
			Recipients: notifCfg.Email.Recipients,
			Template:   "alert",
			Severity:   a.Level,
			Snapshot:   snap,
		})
	}
	if decisions[string(notify.ChannelDiscord)] && notifCfg.Discord.Enabled {
		s.aggregator.Enqueue(notify.Request{
			Channel:    notify.ChannelDiscord,
			WebhookURL: notifCfg.Discord.WebhookURL,
			Template:   "alert",
			Severity:   a.Level,
			Snapshot:   snap,
		})
	}
}

// applyNotifySettings builds channels from settings and installs them on
// the dispatcher along with the notification policy.
func (s *Service) applyNotifySettings(nc config.NotifyConfig) error {
	channels := make(map[notify.ChannelType]notify.Channel)
	policy := alerts.NotifyPolicy{}

	if nc.Email.Enabled {
		channels[notify.ChannelEmail] = notify.NewEmailChannel(
			nc.Email.APIKey, nc.Email.From, nc.Email.FromName)
		policy[string(notify.ChannelEmail)] = alerts.LevelWarning
	}
	if nc.Discord.Enabled {
		channels[notify.ChannelDiscord] = notify.NewDiscordChannel(nc.Discord.WebhookURL)
		policy[string(notify.ChannelDiscord)] = alerts.LevelWarning
	}
	for channel, level := range s.cfg.Alerts.NotifyPolicy {
		parsed := alerts.Level(level)
		if !parsed.IsValid() {
			return fmt.Errorf("alerts.notify_policy: invalid level %q for channel %q", level, channel)
		}
		policy[channel] = parsed
	}

	s.dispatcher.ReplaceChannels(channels)
	s.evaluator.SetNotifyPolicy(policy)

	s.mu.Lock()
	s.notifCfg = nc
	s.mu.Unlock()
	return nil
}

// Start launches the collectors, aggregator, scheduler, and telemetry
// endpoint.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.telemetry != nil {
		s.telemetry.Start()
	}
	s.aggregator.Start(runCtx)
	s.schedules.Start()
	s.runner.Start(runCtx)

	logger.Info("monitor service started")
	return nil
}

// Stop shuts down in reverse dependency order: stop producing samples and
// scheduled jobs first, then flush pending notifications, then close
// storage.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.runner.Stop()
	s.schedules.Stop()
	s.aggregator.Stop()
	s.bus.Close()

	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.telemetry.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
		cancel()
	}

	if s.cancel != nil {
		s.cancel()
	}

	err := s.db.Close()
	logger.Info("monitor service stopped")
	return err
}

func scheduleFromConfig(sc config.ScheduleConfig) schedule.Definition {
	conditions := make([]alerts.Condition, 0, len(sc.Conditions))
	for _, cc := range sc.Conditions {
		conditions = append(conditions, alerts.Condition{
			MetricPath: cc.Metric,
			Operator:   alerts.Operator(cc.Operator),
			Value:      cc.Value,
		})
	}
	def := schedule.Definition{
		ID:         sc.ID,
		Cron:       sc.Cron,
		Channel:    notify.ChannelType(sc.Channel),
		Recipients: sc.Recipients,
		WebhookURL: sc.WebhookURL,
		Template:   sc.Template,
		Severity:   alerts.Level(sc.Severity),
		Conditions: conditions,
	}
	if sc.Severity == "" {
		def.Severity = alerts.LevelInfo
	}
	return def
}
