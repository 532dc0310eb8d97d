package sqlitestore

// migration is one forward-only schema step. Versions must increase.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE TABLE channels (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	created_by           TEXT NOT NULL,
	permissions          TEXT NOT NULL,
	metadata             TEXT NOT NULL,
	subscriber_count     INTEGER NOT NULL DEFAULT 0,
	notification_count   INTEGER NOT NULL DEFAULT 0,
	last_notification_at TEXT
);

CREATE TABLE subscriptions (
	pos           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	client_id     TEXT NOT NULL,
	channel       TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	subscribed_at TEXT NOT NULL,
	filter        TEXT NOT NULL
);
CREATE INDEX idx_subscriptions_channel ON subscriptions(channel, pos);
CREATE INDEX idx_subscriptions_client ON subscriptions(client_id, pos);

CREATE TABLE notifications (
	channel        TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	sequence       INTEGER NOT NULL,
	id             TEXT NOT NULL,
	priority       TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	sender         TEXT NOT NULL,
	context        TEXT NOT NULL,
	information    TEXT NOT NULL,
	metadata       TEXT NOT NULL,
	actions        TEXT NOT NULL,
	visibility     TEXT NOT NULL,
	PRIMARY KEY (channel, sequence)
);
CREATE INDEX idx_notifications_id ON notifications(id);
CREATE INDEX idx_notifications_priority ON notifications(channel, priority);
`,
	},
}
