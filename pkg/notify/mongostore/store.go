package mongostore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

const (
	channelsCollection      = "channels"
	subscriptionsCollection = "subscriptions"
	notificationsCollection = "notifications"
	countersCollection      = "counters"
)

// Store implements notify.Storage on MongoDB.
//
// Notifications are stored as native subdocuments, see notificationDoc.
// Writes are serialised in-process, which keeps a channel within
// maxHistory+1 entries for readers and stops a save from landing after the
// channel is deleted, as long as one hub instance writes to the database.
type Store struct {
	db         *mongo.Database
	maxHistory int
	logger     *slog.Logger

	writeMu sync.Mutex
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

// New wraps db and makes sure the indexes exist.
func New(ctx context.Context, db *mongo.Database, opts ...Option) (*Store, error) {
	s := &Store{
		db:         db,
		maxHistory: notify.DefaultMaxHistory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, notify.StorageError("create mongo indexes", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(subscriptionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel", Value: 1}, {Key: "pos", Value: 1}}},
		{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "pos", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel", Value: 1}, {Key: "sequence", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "notificationId", Value: 1}}},
		{Keys: bson.D{{Key: "channel", Value: 1}, {Key: "priority", Value: 1}}},
	})
	return err
}

type channelDoc struct {
	ID                 string                    `bson:"_id"`
	Name               string                    `bson:"name"`
	Description        string                    `bson:"description"`
	CreatedAt          time.Time                 `bson:"createdAt"`
	CreatedBy          string                    `bson:"createdBy"`
	Permissions        notify.ChannelPermissions `bson:"permissions"`
	Metadata           map[string]any            `bson:"metadata"`
	SubscriberCount    int                       `bson:"subscriberCount"`
	NotificationCount  int                       `bson:"notificationCount"`
	LastNotificationAt *time.Time                `bson:"lastNotificationAt,omitempty"`
}

func (d channelDoc) toChannel() notify.Channel {
	ch := notify.Channel{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		CreatedAt:         d.CreatedAt.UTC(),
		CreatedBy:         d.CreatedBy,
		Permissions:       d.Permissions,
		Metadata:          d.Metadata,
		SubscriberCount:   d.SubscriberCount,
		NotificationCount: d.NotificationCount,
	}
	if d.LastNotificationAt != nil {
		t := d.LastNotificationAt.UTC()
		ch.LastNotificationAt = &t
	}
	if ch.Metadata == nil {
		ch.Metadata = map[string]any{}
	}
	return ch
}

func (s *Store) SaveChannel(ctx context.Context, ch notify.Channel) error {
	doc := channelDoc{
		ID:                 ch.ID,
		Name:               ch.Name,
		Description:        ch.Description,
		CreatedAt:          ch.CreatedAt,
		CreatedBy:          ch.CreatedBy,
		Permissions:        ch.Permissions,
		Metadata:           ch.Metadata,
		SubscriberCount:    ch.SubscriberCount,
		NotificationCount:  ch.NotificationCount,
		LastNotificationAt: ch.LastNotificationAt,
	}
	_, err := s.db.Collection(channelsCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: ch.ID}}, doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return notify.StorageError("save channel", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*notify.Channel, error) {
	var doc channelDoc
	err := s.db.Collection(channelsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, notify.StorageError("get channel", err)
	}
	ch := doc.toChannel()
	return &ch, nil
}

// DeleteChannel removes history and subscriptions before the channel
// itself, so a failure part-way leaves the channel visible for a retry.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	filter := bson.D{{Key: "channel", Value: id}}
	if _, err := s.db.Collection(notificationsCollection).DeleteMany(ctx, filter); err != nil {
		return notify.StorageError("delete channel history", err)
	}
	if _, err := s.db.Collection(subscriptionsCollection).DeleteMany(ctx, filter); err != nil {
		return notify.StorageError("delete channel subscriptions", err)
	}
	if _, err := s.db.Collection(channelsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return notify.StorageError("delete channel", err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context) ([]notify.Channel, error) {
	cur, err := s.db.Collection(channelsCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, notify.StorageError("list channels", err)
	}
	var docs []channelDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, notify.StorageError("list channels", err)
	}
	out := make([]notify.Channel, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toChannel())
	}
	return out, nil
}

type subscriptionDoc struct {
	ID           string                    `bson:"_id"`
	Pos          int64                     `bson:"pos"`
	ClientID     string                    `bson:"clientId"`
	Channel      string                    `bson:"channel"`
	SubscribedAt time.Time                 `bson:"subscribedAt"`
	Filter       notify.SubscriptionFilter `bson:"filters"`
}

// SaveSubscription stamps the document with a counter value so listings
// come back in insertion order.
func (s *Store) SaveSubscription(ctx context.Context, sub notify.Subscription) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.requireChannel(ctx, "save subscription", sub.Channel); err != nil {
		return err
	}
	pos, err := s.increment(ctx, subscriptionsCollection)
	if err != nil {
		return notify.StorageError("save subscription", err)
	}
	_, err = s.db.Collection(subscriptionsCollection).InsertOne(ctx, subscriptionDoc{
		ID:           sub.ID,
		Pos:          pos,
		ClientID:     sub.ClientID,
		Channel:      sub.Channel,
		SubscribedAt: sub.SubscribedAt,
		Filter:       sub.Filter,
	})
	if err != nil {
		return notify.StorageError("save subscription", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := s.db.Collection(subscriptionsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return notify.StorageError("delete subscription", err)
	}
	return nil
}

func (s *Store) SubscriptionsByChannel(ctx context.Context, channel string) ([]notify.Subscription, error) {
	return s.findSubscriptions(ctx, bson.D{{Key: "channel", Value: channel}})
}

func (s *Store) SubscriptionsByClient(ctx context.Context, clientID string) ([]notify.Subscription, error) {
	return s.findSubscriptions(ctx, bson.D{{Key: "clientId", Value: clientID}})
}

func (s *Store) findSubscriptions(ctx context.Context, filter bson.D) ([]notify.Subscription, error) {
	cur, err := s.db.Collection(subscriptionsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "pos", Value: 1}}),
	)
	if err != nil {
		return nil, notify.StorageError("list subscriptions", err)
	}
	var docs []subscriptionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, notify.StorageError("list subscriptions", err)
	}
	out := make([]notify.Subscription, 0, len(docs))
	for _, d := range docs {
		out = append(out, notify.Subscription{
			ID:           d.ID,
			ClientID:     d.ClientID,
			Channel:      d.Channel,
			SubscribedAt: d.SubscribedAt.UTC(),
			Filter:       d.Filter,
		})
	}
	return out, nil
}

// SaveNotification inserts n, then deletes everything older than the
// channel's newest maxHistory sequences. A second notification with the same
// channel and sequence fails on the _id instead of replacing the first.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	doc := newNotificationDoc(n)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.requireChannel(ctx, "save notification", doc.Channel); err != nil {
		return err
	}
	coll := s.db.Collection(notificationsCollection)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return notify.StorageError("save notification", err)
	}

	// The maxHistory-th newest sequence is the oldest one kept.
	var oldestKept struct {
		Sequence int64 `bson:"sequence"`
	}
	err := coll.FindOne(ctx, bson.D{{Key: "channel", Value: doc.Channel}},
		options.FindOne().
			SetSort(bson.D{{Key: "sequence", Value: -1}}).
			SetSkip(int64(s.maxHistory-1)).
			SetProjection(bson.D{{Key: "sequence", Value: 1}}),
	).Decode(&oldestKept)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return notify.StorageError("trim history", err)
	}

	res, err := coll.DeleteMany(ctx, bson.D{
		{Key: "channel", Value: doc.Channel},
		{Key: "sequence", Value: bson.D{{Key: "$lt", Value: oldestKept.Sequence}}},
	})
	if err != nil {
		return notify.StorageError("trim history", err)
	}
	if res.DeletedCount > 0 {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "channel history trimmed",
			logger.ChannelID(doc.Channel),
			slog.Int64("trimmed", res.DeletedCount),
		)
	}
	return nil
}

func (s *Store) RecentNotifications(ctx context.Context, channel string, limit int) ([]notify.Notification, error) {
	if limit <= 0 {
		limit = s.maxHistory
	}
	cur, err := s.db.Collection(notificationsCollection).Find(ctx,
		bson.D{{Key: "channel", Value: channel}},
		options.Find().
			SetSort(bson.D{{Key: "sequence", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, notify.StorageError("recent notifications", err)
	}
	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, notify.StorageError("recent notifications", err)
	}
	out := make([]notify.Notification, 0, len(docs))
	for _, d := range docs {
		n, err := d.toNotification()
		if err != nil {
			return nil, notify.StorageError("decode notification", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, channel string) (int, error) {
	count, err := s.db.Collection(notificationsCollection).CountDocuments(ctx, bson.D{{Key: "channel", Value: channel}})
	if err != nil {
		return 0, notify.StorageError("count notifications", err)
	}
	return int(count), nil
}

func (s *Store) LastSequence(ctx context.Context, channel string) (int64, error) {
	var last struct {
		Sequence int64 `bson:"sequence"`
	}
	err := s.db.Collection(notificationsCollection).FindOne(ctx,
		bson.D{{Key: "channel", Value: channel}},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, notify.StorageError("last sequence", err)
	}
	return last.Sequence, nil
}

// requireChannel fails when channel has no document. Callers hold writeMu so
// DeleteChannel cannot run between the check and the write.
func (s *Store) requireChannel(ctx context.Context, op, channel string) error {
	n, err := s.db.Collection(channelsCollection).CountDocuments(ctx,
		bson.D{{Key: "_id", Value: channel}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return notify.StorageError(op, err)
	}
	if n == 0 {
		return notify.StorageError(op, notify.ErrChannelNotFound)
	}
	return nil
}

// increment atomically bumps the named counter and returns its new value.
func (s *Store) increment(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}
