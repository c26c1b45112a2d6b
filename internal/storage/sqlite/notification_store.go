package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/notify"
)

// NotificationStore persists delivery attempts, including the resolved
// condition values that gated each send.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a notification store over the shared database.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// SaveNotification inserts one delivery record.
func (s *NotificationStore) SaveNotification(ctx context.Context, rec *notify.Record) error {
	conditions, err := json.Marshal(rec.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO notification_history
		 (id, timestamp, channel, target, template, severity, status, error, conditions, batch_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UnixMilli(),
		string(rec.Channel),
		rec.Target,
		rec.Template,
		rec.Severity.String(),
		string(rec.Status),
		rec.Error,
		string(conditions),
		rec.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Recent returns up to limit delivery records, newest first.
func (s *NotificationStore) Recent(ctx context.Context, limit int) ([]notify.Record, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, timestamp, channel, target, template, severity, status, error, conditions, batch_size
		 FROM notification_history
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []notify.Record
	for rows.Next() {
		var (
			rec        notify.Record
			ts         int64
			channel    string
			severity   string
			status     string
			conditions string
		)
		if err := rows.Scan(&rec.ID, &ts, &channel, &rec.Target, &rec.Template,
			&severity, &status, &rec.Error, &conditions, &rec.BatchSize); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		rec.Channel = notify.ChannelType(channel)
		rec.Severity = alerts.Level(severity)
		rec.Status = notify.Status(status)
		if err := json.Unmarshal([]byte(conditions), &rec.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneBefore deletes notification records older than cutoff.
func (s *NotificationStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return pruneBefore(ctx, s.db, "notification_history", cutoff)
}
