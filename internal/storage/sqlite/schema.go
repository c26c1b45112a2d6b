package sqlite

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS alert_history (
	id          TEXT PRIMARY KEY,
	timestamp   INTEGER NOT NULL,
	level       TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_alert_history_timestamp
	ON alert_history (timestamp);

CREATE TABLE IF NOT EXISTS notification_history (
	id          TEXT PRIMARY KEY,
	timestamp   INTEGER NOT NULL,
	channel     TEXT NOT NULL,
	target      TEXT NOT NULL,
	template    TEXT NOT NULL,
	severity    TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	conditions  TEXT NOT NULL DEFAULT '[]',
	batch_size  INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_notification_history_timestamp
	ON notification_history (timestamp);
`

func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
