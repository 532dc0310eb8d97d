package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements notify.Storage on PostgreSQL.
//
// SaveNotification takes a per-channel advisory lock so that concurrent
// inserts and trims on one channel never leave more than maxHistory rows.
type Store struct {
	pool       *pgxpool.Pool
	maxHistory int
	logger     *slog.Logger
}

var (
	_ notify.Storage        = (*Store)(nil)
	_ notify.SequenceSource = (*Store)(nil)
)

type Option func(*Store)

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

// New wraps an open pool. The caller owns the pool; call Migrate before use.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:       pool,
		maxHistory: notify.DefaultMaxHistory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, table string) error {
	if err := pg.Migrate(ctx, s.pool, migrationsFS, "migrations", table, s.logger); err != nil {
		return notify.StorageError("migrate postgres", err)
	}
	return nil
}

type channelRow struct {
	ID                 string                    `db:"id"`
	Name               string                    `db:"name"`
	Description        string                    `db:"description"`
	CreatedAt          time.Time                 `db:"created_at"`
	CreatedBy          string                    `db:"created_by"`
	Permissions        notify.ChannelPermissions `db:"permissions"`
	Metadata           map[string]any            `db:"metadata"`
	SubscriberCount    int                       `db:"subscriber_count"`
	NotificationCount  int                       `db:"notification_count"`
	LastNotificationAt *time.Time                `db:"last_notification_at"`
}

const channelColumns = `id, name, description, created_at, created_by, permissions, metadata,
	subscriber_count, notification_count, last_notification_at`

func (r channelRow) toChannel() notify.Channel {
	ch := notify.Channel{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		CreatedAt:         r.CreatedAt.UTC(),
		CreatedBy:         r.CreatedBy,
		Permissions:       r.Permissions,
		Metadata:          r.Metadata,
		SubscriberCount:   r.SubscriberCount,
		NotificationCount: r.NotificationCount,
	}
	if r.LastNotificationAt != nil {
		t := r.LastNotificationAt.UTC()
		ch.LastNotificationAt = &t
	}
	if ch.Metadata == nil {
		ch.Metadata = map[string]any{}
	}
	return ch
}

func (s *Store) SaveChannel(ctx context.Context, ch notify.Channel) error {
	meta := ch.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			created_at = EXCLUDED.created_at,
			created_by = EXCLUDED.created_by,
			permissions = EXCLUDED.permissions,
			metadata = EXCLUDED.metadata,
			subscriber_count = EXCLUDED.subscriber_count,
			notification_count = EXCLUDED.notification_count,
			last_notification_at = EXCLUDED.last_notification_at`,
		ch.ID, ch.Name, ch.Description, ch.CreatedAt, ch.CreatedBy,
		ch.Permissions, meta,
		ch.SubscriberCount, ch.NotificationCount, ch.LastNotificationAt,
	)
	if err != nil {
		return notify.StorageError("save channel", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*notify.Channel, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = $1", id)
	if err != nil {
		return nil, notify.StorageError("get channel", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[channelRow])
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, notify.StorageError("get channel", err)
	}
	ch := row.toChannel()
	return &ch, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM channels WHERE id = $1", id); err != nil {
		return notify.StorageError("delete channel", err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context) ([]notify.Channel, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+channelColumns+" FROM channels ORDER BY id")
	if err != nil {
		return nil, notify.StorageError("list channels", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[channelRow])
	if err != nil {
		return nil, notify.StorageError("list channels", err)
	}
	out := make([]notify.Channel, 0, len(list))
	for _, r := range list {
		out = append(out, r.toChannel())
	}
	return out, nil
}

type subscriptionRow struct {
	ID           string                    `db:"id"`
	ClientID     string                    `db:"client_id"`
	Channel      string                    `db:"channel"`
	SubscribedAt time.Time                 `db:"subscribed_at"`
	Filter       notify.SubscriptionFilter `db:"filter"`
}

func (s *Store) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO subscriptions (id, client_id, channel, subscribed_at, filter) VALUES ($1, $2, $3, $4, $5)",
		sub.ID, sub.ClientID, sub.Channel, sub.SubscribedAt, sub.Filter,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return notify.StorageError("save subscription", errors.Join(notify.ErrChannelNotFound, err))
		}
		return notify.StorageError("save subscription", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM subscriptions WHERE id = $1", id); err != nil {
		return notify.StorageError("delete subscription", err)
	}
	return nil
}

func (s *Store) SubscriptionsByChannel(ctx context.Context, channel string) ([]notify.Subscription, error) {
	return s.selectSubscriptions(ctx,
		"SELECT id, client_id, channel, subscribed_at, filter FROM subscriptions WHERE channel = $1 ORDER BY pos", channel)
}

func (s *Store) SubscriptionsByClient(ctx context.Context, clientID string) ([]notify.Subscription, error) {
	return s.selectSubscriptions(ctx,
		"SELECT id, client_id, channel, subscribed_at, filter FROM subscriptions WHERE client_id = $1 ORDER BY pos", clientID)
}

func (s *Store) selectSubscriptions(ctx context.Context, query, arg string) ([]notify.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, notify.StorageError("list subscriptions", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[subscriptionRow])
	if err != nil {
		return nil, notify.StorageError("list subscriptions", err)
	}
	out := make([]notify.Subscription, 0, len(list))
	for _, r := range list {
		out = append(out, notify.Subscription{
			ID:           r.ID,
			ClientID:     r.ClientID,
			Channel:      r.Channel,
			SubscribedAt: r.SubscribedAt.UTC(),
			Filter:       r.Filter,
		})
	}
	return out, nil
}

// notificationRow mirrors the notifications table: one JSONB column per
// substructure plus the flattened query columns.
type notificationRow struct {
	Channel       string    `db:"channel"`
	Sequence      int64     `db:"sequence"`
	ID            string    `db:"id"`
	Priority      string    `db:"priority"`
	Timestamp     time.Time `db:"timestamp"`
	SchemaVersion string    `db:"schema_version"`
	Sender        []byte    `db:"sender"`
	Context       []byte    `db:"context"`
	Information   []byte    `db:"information"`
	Metadata      []byte    `db:"metadata"`
	Actions       []byte    `db:"actions"`
	Visibility    []byte    `db:"visibility"`
}

const notificationColumns = "channel, sequence, id, priority, timestamp, schema_version, " +
	"sender, context, information, metadata, actions, visibility"

func newNotificationRow(n notify.Notification) (notificationRow, error) {
	row := notificationRow{
		Channel:       n.Metadata.Channel,
		Sequence:      n.Metadata.Sequence,
		ID:            n.Metadata.ID,
		Priority:      string(n.Context.Priority),
		Timestamp:     n.Metadata.Timestamp,
		SchemaVersion: n.SchemaVersion,
	}
	parts := []struct {
		dst *[]byte
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
		*p.dst = b
	}
	return row, nil
}

func (r notificationRow) toNotification() (notify.Notification, error) {
	n := notify.Notification{SchemaVersion: r.SchemaVersion}
	parts := []struct {
		src []byte
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
		if err := json.Unmarshal(p.src, p.dst); err != nil {
			return notify.Notification{}, err
		}
	}
	return n, nil
}

// SaveNotification inserts n and trims the channel to the newest maxHistory
// sequences in one transaction. A second notification with the same channel
// and sequence fails on the primary key instead of replacing the first.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	row, err := newNotificationRow(n)
	if err != nil {
		return notify.StorageError("save notification", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return notify.StorageError("save notification", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", n.Metadata.Channel); err != nil {
		return notify.StorageError("lock channel", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO notifications ("+notificationColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		row.Channel, row.Sequence, row.ID, row.Priority, row.Timestamp, row.SchemaVersion,
		row.Sender, row.Context, row.Information, row.Metadata, row.Actions, row.Visibility,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return notify.StorageError("save notification", errors.Join(notify.ErrChannelNotFound, err))
		}
		return notify.StorageError("save notification", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM notifications
		WHERE channel = $1 AND sequence < (
			SELECT MIN(sequence) FROM (
				SELECT sequence FROM notifications WHERE channel = $1 ORDER BY sequence DESC LIMIT $2
			) AS newest
		)`,
		n.Metadata.Channel, s.maxHistory,
	)
	if err != nil {
		return notify.StorageError("trim history", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return notify.StorageError("save notification", err)
	}

	if trimmed := tag.RowsAffected(); trimmed > 0 {
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
	rows, err := s.pool.Query(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE channel = $1 ORDER BY sequence DESC LIMIT $2",
		channel, limit,
	)
	if err != nil {
		return nil, notify.StorageError("recent notifications", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[notificationRow])
	if err != nil {
		return nil, notify.StorageError("recent notifications", err)
	}
	out := make([]notify.Notification, 0, len(records))
	for _, r := range records {
		n, err := r.toNotification()
		if err != nil {
			return nil, notify.StorageError("decode notification", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, channel string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE channel = $1", channel).Scan(&count); err != nil {
		return 0, notify.StorageError("count notifications", err)
	}
	return count, nil
}

func (s *Store) LastSequence(ctx context.Context, channel string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM notifications WHERE channel = $1", channel).Scan(&seq)
	if err != nil {
		return 0, notify.StorageError("last sequence", err)
	}
	return seq, nil
}
