package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
	"github.com/eyenet/eyenet-monitor/internal/notify"
)

// captureChannel records deliveries for assertions.
type captureChannel struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *captureChannel) Type() notify.ChannelType { return notify.ChannelEmail }

func (c *captureChannel) Send(ctx context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureChannel) Test(ctx context.Context) error { return nil }

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestRunner(snapshot SnapshotFunc) (*Runner, *captureChannel) {
	ch := &captureChannel{}
	d := notify.NewDispatcher(notify.NewTemplates(), nil)
	d.SetChannel(ch)
	if snapshot == nil {
		snapshot = func() metrics.Snapshot { return metrics.Snapshot{Timestamp: time.Now()} }
	}
	return NewRunner(d, snapshot), ch
}

func dailyReport(cronExpr string) Definition {
	return Definition{
		ID:         "daily-report",
		Cron:       cronExpr,
		Channel:    notify.ChannelEmail,
		Recipients: []string{"ops@example.com"},
		Template:   "daily-summary",
	}
}

func TestRegisterReplacesSameID(t *testing.T) {
	r, _ := newTestRunner(nil)

	if err := r.Register(dailyReport("0 9 * * *")); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Rescheduling from 9:00 to 10:00 must leave exactly one job.
	if err := r.Register(dailyReport("0 10 * * *")); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	jobs := r.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after re-registration, got %d", len(jobs))
	}
	if jobs[0].Cron != "0 10 * * *" {
		t.Errorf("expected new cron expression, got %q", jobs[0].Cron)
	}
	if len(r.cron.Entries()) != 1 {
		t.Errorf("expected 1 cron entry, got %d", len(r.cron.Entries()))
	}
}

func TestRegisterRejectsMalformedCron(t *testing.T) {
	r, _ := newTestRunner(nil)
	if err := r.Register(dailyReport("not a cron expr")); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
	if len(r.Jobs()) != 0 {
		t.Error("failed registration should not install a job")
	}
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRunner(nil)

	def := dailyReport("0 9 * * *")
	def.Recipients = nil
	if err := r.Register(def); err == nil {
		t.Error("email schedule without recipients should be rejected")
	}

	def = dailyReport("0 9 * * *")
	def.Template = "no-such-template"
	if err := r.Register(def); err == nil {
		t.Error("unknown template should be rejected at registration")
	}

	def = dailyReport("0 9 * * *")
	def.ID = ""
	if err := r.Register(def); err == nil {
		t.Error("empty ID should be rejected")
	}

	def = Definition{
		ID:         "hook",
		Cron:       "0 9 * * *",
		Channel:    notify.ChannelDiscord,
		Template:   "alert",
		WebhookURL: "",
	}
	if err := r.Register(def); err == nil {
		t.Error("discord schedule without webhook URL should be rejected")
	}
}

func TestFireSendsWhenConditionsMet(t *testing.T) {
	snap := metrics.Snapshot{
		Timestamp: time.Now(),
		Current: map[metrics.Category]map[string]any{
			metrics.CategorySystem: {
				"memory": map[string]any{"usedPercent": 92.0},
			},
		},
	}
	r, ch := newTestRunner(func() metrics.Snapshot { return snap })

	def := dailyReport("0 9 * * *")
	def.Conditions = []alerts.Condition{
		{MetricPath: "system.memory.usedPercent", Operator: alerts.OpGreaterThan, Value: 85},
	}

	r.fire(def)
	if ch.count() != 1 {
		t.Fatalf("expected delivery when conditions hold, got %d", ch.count())
	}
}

func TestFireSkipsWhenConditionsNotMet(t *testing.T) {
	snap := metrics.Snapshot{
		Timestamp: time.Now(),
		Current: map[metrics.Category]map[string]any{
			metrics.CategorySystem: {
				"memory": map[string]any{"usedPercent": 30.0},
			},
		},
	}
	r, ch := newTestRunner(func() metrics.Snapshot { return snap })

	def := dailyReport("0 9 * * *")
	def.Conditions = []alerts.Condition{
		{MetricPath: "system.memory.usedPercent", Operator: alerts.OpGreaterThan, Value: 85},
	}

	r.fire(def)
	if ch.count() != 0 {
		t.Fatalf("expected skip when conditions fail, got %d deliveries", ch.count())
	}
}

func TestFireMissingConditionPathSkips(t *testing.T) {
	r, ch := newTestRunner(nil) // empty snapshot

	def := dailyReport("0 9 * * *")
	def.Conditions = []alerts.Condition{
		{MetricPath: "system.disk.usedPercent", Operator: alerts.OpLessThan, Value: 99},
	}

	r.fire(def)
	if ch.count() != 0 {
		t.Fatalf("unresolvable condition path must skip the send, got %d", ch.count())
	}
}

func TestUnregister(t *testing.T) {
	r, _ := newTestRunner(nil)
	if err := r.Register(dailyReport("0 9 * * *")); err != nil {
		t.Fatal(err)
	}

	r.Unregister("daily-report")
	if len(r.Jobs()) != 0 {
		t.Error("job still listed after unregister")
	}
	if len(r.cron.Entries()) != 0 {
		t.Error("cron entry still present after unregister")
	}

	r.Unregister("never-existed") // no-op, no panic
}
