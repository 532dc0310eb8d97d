package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Store implements notify.Storage on an embedded SQLite file.
//
// Writes are serialised in-process; readers run concurrently thanks to WAL
// and always see a notification insert together with its trim.
type Store struct {
	db         *sqlx.DB
	maxHistory int
	logger     *slog.Logger

	writeMu sync.Mutex
}

var (
	_ notify.Storage        = (*Store)(nil)
	_ notify.SequenceSource = (*Store)(nil)
)

type Option func(*Store)

// WithMaxHistory sets how many notifications each channel keeps.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", notify.ErrConfiguration)
	}

	s := &Store{
		maxHistory: notify.DefaultMaxHistory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, notify.StorageError("open sqlite", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, notify.StorageError("open sqlite", err)
	}

	s.db = db
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, notify.StorageError("migrate sqlite", err)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "sqlite storage ready",
		logger.Backend("sqlite"),
		slog.String("path", path),
		logger.Count("max_history", s.maxHistory),
	)
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers. It doubles as a readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) runMigrations(ctx context.Context) error {
	currentVersion := 0

	var tableCount int
	err := s.db.GetContext(ctx, &tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "sqlite migration applied",
			slog.Int("version", m.version),
		)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		m.version, formatTime(time.Now()),
	); err != nil {
		return err
	}
	return tx.Commit()
}

type channelRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Description        string         `db:"description"`
	CreatedAt          string         `db:"created_at"`
	CreatedBy          string         `db:"created_by"`
	Permissions        string         `db:"permissions"`
	Metadata           string         `db:"metadata"`
	SubscriberCount    int            `db:"subscriber_count"`
	NotificationCount  int            `db:"notification_count"`
	LastNotificationAt sql.NullString `db:"last_notification_at"`
}

const channelColumns = `id, name, description, created_at, created_by, permissions, metadata,
	subscriber_count, notification_count, last_notification_at`

func (r channelRow) toChannel() (notify.Channel, error) {
	ch := notify.Channel{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		CreatedBy:         r.CreatedBy,
		SubscriberCount:   r.SubscriberCount,
		NotificationCount: r.NotificationCount,
	}
	var err error
	if ch.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return ch, fmt.Errorf("channel %s created_at: %w", r.ID, err)
	}
	if r.LastNotificationAt.Valid {
		t, err := parseTime(r.LastNotificationAt.String)
		if err != nil {
			return ch, fmt.Errorf("channel %s last_notification_at: %w", r.ID, err)
		}
		ch.LastNotificationAt = &t
	}
	if err := json.Unmarshal([]byte(r.Permissions), &ch.Permissions); err != nil {
		return ch, fmt.Errorf("channel %s permissions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &ch.Metadata); err != nil {
		return ch, fmt.Errorf("channel %s metadata: %w", r.ID, err)
	}
	return ch, nil
}

func (s *Store) SaveChannel(ctx context.Context, ch notify.Channel) error {
	perms, err := json.Marshal(ch.Permissions)
	if err != nil {
		return notify.StorageError("save channel", err)
	}
	meta := ch.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return notify.StorageError("save channel", err)
	}
	var last sql.NullString
	if ch.LastNotificationAt != nil {
		last = sql.NullString{String: formatTime(*ch.LastNotificationAt), Valid: true}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// An upsert, not INSERT OR REPLACE: a replace deletes the row first and
	// would cascade into the channel's subscriptions and history.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			created_at = excluded.created_at,
			created_by = excluded.created_by,
			permissions = excluded.permissions,
			metadata = excluded.metadata,
			subscriber_count = excluded.subscriber_count,
			notification_count = excluded.notification_count,
			last_notification_at = excluded.last_notification_at`,
		ch.ID, ch.Name, ch.Description, formatTime(ch.CreatedAt), ch.CreatedBy,
		string(perms), string(metaJSON),
		ch.SubscriberCount, ch.NotificationCount, last,
	)
	if err != nil {
		return notify.StorageError("save channel", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*notify.Channel, error) {
	var row channelRow
	err := s.db.GetContext(ctx, &row, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, notify.StorageError("get channel", err)
	}
	ch, err := row.toChannel()
	if err != nil {
		return nil, notify.StorageError("get channel", err)
	}
	return &ch, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id); err != nil {
		return notify.StorageError("delete channel", err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context) ([]notify.Channel, error) {
	var rows []channelRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+channelColumns+" FROM channels ORDER BY id"); err != nil {
		return nil, notify.StorageError("list channels", err)
	}
	out := make([]notify.Channel, 0, len(rows))
	for _, r := range rows {
		ch, err := r.toChannel()
		if err != nil {
			return nil, notify.StorageError("list channels", err)
		}
		out = append(out, ch)
	}
	return out, nil
}

type subscriptionRow struct {
	ID           string `db:"id"`
	ClientID     string `db:"client_id"`
	Channel      string `db:"channel"`
	SubscribedAt string `db:"subscribed_at"`
	Filter       string `db:"filter"`
}

func (r subscriptionRow) toSubscription() (notify.Subscription, error) {
	sub := notify.Subscription{ID: r.ID, ClientID: r.ClientID, Channel: r.Channel}
	var err error
	if sub.SubscribedAt, err = parseTime(r.SubscribedAt); err != nil {
		return sub, fmt.Errorf("subscription %s subscribed_at: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Filter), &sub.Filter); err != nil {
		return sub, fmt.Errorf("subscription %s filter: %w", r.ID, err)
	}
	return sub, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	filter, err := json.Marshal(sub.Filter)
	if err != nil {
		return notify.StorageError("save subscription", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO subscriptions (id, client_id, channel, subscribed_at, filter) VALUES (?, ?, ?, ?, ?)",
		sub.ID, sub.ClientID, sub.Channel, formatTime(sub.SubscribedAt), string(filter),
	)
	if err != nil {
		return notify.StorageError("save subscription", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id); err != nil {
		return notify.StorageError("delete subscription", err)
	}
	return nil
}

func (s *Store) SubscriptionsByChannel(ctx context.Context, channel string) ([]notify.Subscription, error) {
	return s.selectSubscriptions(ctx, "channel", channel)
}

func (s *Store) SubscriptionsByClient(ctx context.Context, clientID string) ([]notify.Subscription, error) {
	return s.selectSubscriptions(ctx, "client_id", clientID)
}

// selectSubscriptions lists subscriptions in insertion order. column is
// always a constant from this package.
func (s *Store) selectSubscriptions(ctx context.Context, column, value string) ([]notify.Subscription, error) {
	var rows []subscriptionRow
	query := "SELECT id, client_id, channel, subscribed_at, filter FROM subscriptions WHERE " + column + " = ? ORDER BY pos"
	if err := s.db.SelectContext(ctx, &rows, query, value); err != nil {
		return nil, notify.StorageError("list subscriptions", err)
	}
	out := make([]notify.Subscription, 0, len(rows))
	for _, r := range rows {
		sub, err := r.toSubscription()
		if err != nil {
			return nil, notify.StorageError("list subscriptions", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

// notificationRow keeps each substructure in its own JSON column next to
// the flattened query columns.
type notificationRow struct {
	Channel       string `db:"channel"`
	Sequence      int64  `db:"sequence"`
	ID            string `db:"id"`
	Priority      string `db:"priority"`
	Timestamp     string `db:"timestamp"`
	SchemaVersion string `db:"schema_version"`
	Sender        string `db:"sender"`
	Context       string `db:"context"`
	Information   string `db:"information"`
	Metadata      string `db:"metadata"`
	Actions       string `db:"actions"`
	Visibility    string `db:"visibility"`
}

const notificationColumns = "channel, sequence, id, priority, timestamp, schema_version, " +
	"sender, context, information, metadata, actions, visibility"

func newNotificationRow(n notify.Notification) (notificationRow, error) {
	row := notificationRow{
		Channel:       n.Metadata.Channel,
		Sequence:      n.Metadata.Sequence,
		ID:            n.Metadata.ID,
		Priority:      string(n.Context.Priority),
		Timestamp:     formatTime(n.Metadata.Timestamp),
		SchemaVersion: n.SchemaVersion,
	}
	parts := []struct {
		dst *string
		src any
	}{
		{&row.Sender, n.Sender},
		{&row.Context, n.Context},
		{&row.Information, n.Information},
		{&row.Metadata, n.Metadata},
		{&row.Actions, n.Actions},
		{&row.Visibility, n.Visibility},
	}
	for _, p := range parts {
		b, err := json.Marshal(p.src)
		if err != nil {
			return notificationRow{}, err
		}
		*p.dst = string(b)
	}
	return row, nil
}

func (r notificationRow) toNotification() (notify.Notification, error) {
	n := notify.Notification{SchemaVersion: r.SchemaVersion}
	parts := []struct {
		src string
		dst any
	}{
		{r.Sender, &n.Sender},
		{r.Context, &n.Context},
		{r.Information, &n.Information},
		{r.Metadata, &n.Metadata},
		{r.Actions, &n.Actions},
		{r.Visibility, &n.Visibility},
	}
	for _, p := range parts {
		if err := json.Unmarshal([]byte(p.src), p.dst); err != nil {
			return notify.Notification{}, err
		}
	}
	return n, nil
}

// SaveNotification inserts n and trims the channel to the newest
// maxHistory sequences in one transaction. A second notification with the
// same channel and sequence is rejected, never swapped in.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	row, err := newNotificationRow(n)
	if err != nil {
		return notify.StorageError("save notification", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return notify.StorageError("save notification", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES ("+
			":channel, :sequence, :id, :priority, :timestamp, :schema_version, "+
			":sender, :context, :information, :metadata, :actions, :visibility)",
		row,
	)
	if err != nil {
		return notify.StorageError("save notification", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE channel = ? AND sequence < (
			SELECT MIN(sequence) FROM (
				SELECT sequence FROM notifications WHERE channel = ? ORDER BY sequence DESC LIMIT ?
			)
		)`,
		n.Metadata.Channel, n.Metadata.Channel, s.maxHistory,
	)
	if err != nil {
		return notify.StorageError("trim history", err)
	}

	if err := tx.Commit(); err != nil {
		return notify.StorageError("save notification", err)
	}

	if trimmed, err := res.RowsAffected(); err == nil && trimmed > 0 {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "channel history trimmed",
			logger.ChannelID(n.Metadata.Channel),
			slog.Int64("trimmed", trimmed),
		)
	}
	return nil
}

func (s *Store) RecentNotifications(ctx context.Context, channel string, limit int) ([]notify.Notification, error) {
	if limit <= 0 {
		limit = s.maxHistory
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+notificationColumns+" FROM notifications WHERE channel = ? ORDER BY sequence DESC LIMIT ?",
		channel, limit,
	)
	if err != nil {
		return nil, notify.StorageError("recent notifications", err)
	}
	out := make([]notify.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toNotification()
		if err != nil {
			return nil, notify.StorageError("decode notification", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, channel string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE channel = ?", channel); err != nil {
		return 0, notify.StorageError("count notifications", err)
	}
	return count, nil
}

// LastSequence returns the highest stored sequence of channel, so numbering
// resumes after a restart.
func (s *Store) LastSequence(ctx context.Context, channel string) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, "SELECT COALESCE(MAX(sequence), 0) FROM notifications WHERE channel = ?", channel)
	if err != nil {
		return 0, notify.StorageError("last sequence", err)
	}
	return seq, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
