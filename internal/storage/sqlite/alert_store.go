package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
)

// AlertStore persists alerts for inspection beyond the in-memory ring.
type AlertStore struct {
	db *DB
}

// NewAlertStore creates an alert store over the shared database.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// SaveAlert inserts one alert.
func (s *AlertStore) SaveAlert(ctx context.Context, a alerts.Alert) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO alert_history (id, timestamp, level, title, message, acknowledged)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Timestamp.UnixMilli(),
		a.Level.String(),
		a.Title,
		a.Message,
		boolToInt(a.Acknowledged),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// MarkAcknowledged flips the acknowledged flag for a persisted alert.
func (s *AlertStore) MarkAcknowledged(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE alert_history SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &alerts.AlertNotFoundError{ID: id}
	}
	return nil
}

// Recent returns up to limit alerts, newest first.
func (s *AlertStore) Recent(ctx context.Context, limit int) ([]alerts.Alert, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, timestamp, level, title, message, acknowledged
		 FROM alert_history
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		var (
			a     alerts.Alert
			ts    int64
			level string
			ack   int
		)
		if err := rows.Scan(&a.ID, &ts, &level, &a.Title, &a.Message, &ack); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Timestamp = time.UnixMilli(ts)
		a.Level = alerts.Level(level)
		a.Acknowledged = ack != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneBefore deletes alerts older than cutoff in batches so a large
// backlog never holds the write lock for long. Returns total rows removed.
func (s *AlertStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return pruneBefore(ctx, s.db, "alert_history", cutoff)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
