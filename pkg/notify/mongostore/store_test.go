package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	mongoclient "github.com/dmitrymomot/notifyhub/pkg/mongo"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/notify/mongostore"
	"github.com/dmitrymomot/notifyhub/pkg/notify/storagetest"
)

var dbCounter atomic.Int64

func connect(t *testing.T) *mongo.Client {
	t.Helper()
	url := os.Getenv("NOTIFY_TEST_MONGO_URL")
	if url == "" {
		t.Skip("NOTIFY_TEST_MONGO_URL not set")
	}
	client, err := mongoclient.New(context.Background(), mongoclient.Config{
		ConnectionURL: url,
		RetryAttempts: 1,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func freshStore(t *testing.T, client *mongo.Client, maxHistory int) *mongostore.Store {
	t.Helper()
	ctx := context.Background()
	db := client.Database(fmt.Sprintf("notifyhub_test_%d_%d", os.Getpid(), dbCounter.Add(1)))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	s, err := mongostore.New(ctx, db,
		mongostore.WithMaxHistory(maxHistory),
		mongostore.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	client := connect(t)
	storagetest.Run(t, func(t *testing.T, maxHistory int) notify.Storage {
		return freshStore(t, client, maxHistory)
	})
}

func TestSequencer(t *testing.T) {
	client := connect(t)
	ctx := context.Background()
	seq := freshStore(t, client, 10).Sequencer()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := seq.Next(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestStore_NotificationFieldsAreQueryable(t *testing.T) {
	client := connect(t)
	ctx := context.Background()
	db := client.Database(fmt.Sprintf("notifyhub_test_%d_%d", os.Getpid(), dbCounter.Add(1)))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	s, err := mongostore.New(ctx, db, mongostore.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, s.SaveChannel(ctx, storagetest.Channel("ops")))
	n := storagetest.Notification("ops", 1)
	require.NoError(t, s.SaveNotification(ctx, n))

	var raw struct {
		Priority string `bson:"priority"`
		Sender   struct {
			ID string `bson:"id"`
		} `bson:"sender"`
		Information struct {
			Title string `bson:"title"`
		} `bson:"information"`
	}
	err = db.Collection("notifications").FindOne(ctx, bson.D{
		{Key: "priority", Value: string(n.Context.Priority)},
		{Key: "sender.id", Value: n.Sender.ID},
	}).Decode(&raw)
	require.NoError(t, err)
	assert.Equal(t, string(n.Context.Priority), raw.Priority)
	assert.Equal(t, n.Sender.ID, raw.Sender.ID)
	assert.Equal(t, n.Information.Title, raw.Information.Title)
}
