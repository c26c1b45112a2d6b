package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/notify"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAlertStoreRoundTrip(t *testing.T) {
	store := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	a := alerts.NewAlert(alerts.LevelWarning, "High memory usage", "92% used")
	if err := store.SaveAlert(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	if got[0].ID != a.ID || got[0].Level != alerts.LevelWarning || got[0].Title != a.Title {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if got[0].Acknowledged {
		t.Error("new alert should not be acknowledged")
	}
}

func TestAlertStoreMarkAcknowledged(t *testing.T) {
	store := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	a := alerts.NewAlert(alerts.LevelError, "Backup failed", "m")
	if err := store.SaveAlert(ctx, a); err != nil {
		t.Fatal(err)
	}

	if err := store.MarkAcknowledged(ctx, a.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	got, _ := store.Recent(ctx, 1)
	if !got[0].Acknowledged {
		t.Error("acknowledged flag not persisted")
	}

	err := store.MarkAcknowledged(ctx, "missing-id")
	var notFound *alerts.AlertNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected AlertNotFoundError, got %v", err)
	}
}

func TestAlertStoreRecentOrdering(t *testing.T) {
	store := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	old := alerts.NewAlert(alerts.LevelInfo, "old", "m")
	old.Timestamp = time.Now().Add(-time.Hour)
	recent := alerts.NewAlert(alerts.LevelInfo, "recent", "m")

	if err := store.SaveAlert(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAlert(ctx, recent); err != nil {
		t.Fatal(err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Title != "recent" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}

func TestNotificationStoreRoundTrip(t *testing.T) {
	store := NewNotificationStore(openTestDB(t))
	ctx := context.Background()

	rec := &notify.Record{
		ID:        "rec-1",
		Timestamp: time.Now(),
		Channel:   notify.ChannelEmail,
		Target:    "ops@example.com",
		Template:  "alert",
		Severity:  alerts.LevelWarning,
		Status:    notify.StatusSuccess,
		BatchSize: 3,
		Conditions: []alerts.ConditionResult{{
			Condition: alerts.Condition{
				MetricPath: "system.memory.usedPercent",
				Operator:   alerts.OpGreaterThan,
				Value:      85,
			},
			Resolved: true,
			Actual:   92.3,
			Met:      true,
		}},
	}
	if err := store.SaveNotification(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	r := got[0]
	if r.Channel != notify.ChannelEmail || r.Status != notify.StatusSuccess || r.BatchSize != 3 {
		t.Errorf("round trip mismatch: %+v", r)
	}
	if len(r.Conditions) != 1 || r.Conditions[0].Actual != 92.3 || !r.Conditions[0].Met {
		t.Errorf("condition audit lost: %+v", r.Conditions)
	}
}

func TestNotificationStoreFailureRecord(t *testing.T) {
	store := NewNotificationStore(openTestDB(t))
	ctx := context.Background()

	rec := &notify.Record{
		ID:        "rec-fail",
		Timestamp: time.Now(),
		Channel:   notify.ChannelDiscord,
		Target:    "https://example.com/hook",
		Template:  "alert",
		Severity:  alerts.LevelCritical,
		Status:    notify.StatusFailure,
		Error:     "status 502",
	}
	if err := store.SaveNotification(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Recent(ctx, 1)
	if got[0].Status != notify.StatusFailure || got[0].Error != "status 502" {
		t.Errorf("failure details lost: %+v", got[0])
	}
}

func TestPruneBefore(t *testing.T) {
	db := openTestDB(t)
	store := NewAlertStore(db)
	ctx := context.Background()

	old := alerts.NewAlert(alerts.LevelInfo, "old", "m")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	recent := alerts.NewAlert(alerts.LevelInfo, "recent", "m")

	if err := store.SaveAlert(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAlert(ctx, recent); err != nil {
		t.Fatal(err)
	}

	removed, err := store.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row pruned, got %d", removed)
	}

	got, _ := store.Recent(ctx, 10)
	if len(got) != 1 || got[0].Title != "recent" {
		t.Fatalf("wrong survivor after prune: %+v", got)
	}
}
