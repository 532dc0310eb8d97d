package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/notify/httpapi"
)

type envelope[T any] struct {
	Data  T                    `json:"data"`
	Meta  map[string]any       `json:"meta"`
	Error *handler.ErrorDetail `json:"error"`
}

type fixture struct {
	hub     *notify.Hub
	streams *notify.BroadcastDeliverer
	handler http.Handler
}

func newFixture(t *testing.T, opts ...httpapi.Option) *fixture {
	t.Helper()
	streams := notify.NewBroadcastDeliverer(8, notify.WithBroadcastLogger(logger.Discard()))
	t.Cleanup(func() { _ = streams.Close() })

	hub := notify.NewHub(notify.NewMemoryStorage(notify.DefaultMaxHistory),
		notify.WithHubLogger(logger.Discard()),
		notify.WithRouterOptions(notify.WithDeliverer(streams)),
	)
	opts = append([]httpapi.Option{
		httpapi.WithLogger(logger.Discard()),
		httpapi.WithStreams(streams),
	}, opts...)

	return &fixture{
		hub:     hub,
		streams: streams,
		handler: httpapi.New(hub, opts...).Handle(),
	}
}

func (f *fixture) do(t *testing.T, method, path, clientID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if clientID != "" {
		r.Header.Set(httpapi.ClientIDHeader, clientID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func notificationBody(priority notify.Priority) map[string]any {
	return map[string]any{
		"sender":      map[string]any{"id": "alice", "name": "Alice", "role": "dev"},
		"context":     map[string]any{"theme": "alert", "priority": priority, "tags": []string{"db"}},
		"information": map[string]any{"title": "Disk almost full", "body": "db-1 is at 91%"},
	}
}

func TestServer_FilteredFanOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/channels", "", map[string]any{
		"id": "ops", "name": "Operations", "description": "on-call alerts",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[notify.Channel](t, rec).Data
	assert.Equal(t, "ops", created.ID)
	assert.Equal(t, notify.SystemCreator, created.CreatedBy)

	rec = f.do(t, http.MethodPost, "/channels/ops/subscriptions", "client-a", map[string]any{
		"filter": map[string]any{"priority": []string{"high", "critical"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []notify.Priority{notify.PriorityHigh, notify.PriorityCritical},
		decode[notify.Subscription](t, rec).Data.Filter.Priorities)

	rec = f.do(t, http.MethodPost, "/channels/ops/subscriptions", "client-b", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/channels/ops/notifications", "", notificationBody(notify.PriorityMedium))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[notify.PublishResult](t, rec).Data
	assert.Equal(t, int64(1), res.Sequence)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Filtered)
	assert.Zero(t, res.Failed)
	assert.NotEmpty(t, res.ID)

	rec = f.do(t, http.MethodPost, "/channels/ops/notifications", "", notificationBody(notify.PriorityCritical))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res = decode[notify.PublishResult](t, rec).Data
	assert.Equal(t, int64(2), res.Sequence)
	assert.Equal(t, 2, res.Delivered)
	assert.Zero(t, res.Filtered)

	rec = f.do(t, http.MethodGet, "/channels/ops/notifications?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recent := decode[[]notify.Notification](t, rec)
	require.Len(t, recent.Data, 2)
	assert.Equal(t, int64(2), recent.Data[0].Metadata.Sequence)
	assert.Equal(t, notify.PriorityCritical, recent.Data[0].Context.Priority)
	assert.Equal(t, "ops", recent.Data[0].Metadata.Channel)
	assert.EqualValues(t, 2, recent.Meta["count"])

	rec = f.do(t, http.MethodGet, "/channels/ops", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[notify.Channel](t, rec).Data
	assert.Equal(t, 2, info.SubscriberCount)
	assert.Equal(t, 2, info.NotificationCount)
}

func TestServer_Channels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/channels", "client-a", map[string]any{
		"id":          "deploys",
		"permissions": map[string]any{"subscribe": []string{"dev"}, "publish": []string{"dev"}, "admin": []string{"dev"}},
		"metadata":    map[string]any{"team": "platform"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ch := decode[notify.Channel](t, rec).Data
	assert.Equal(t, "client-a", ch.CreatedBy)
	assert.Equal(t, "deploys", ch.Name)
	assert.Equal(t, []string{"dev"}, ch.Permissions.Subscribe)
	assert.Equal(t, "platform", ch.Metadata["team"])

	rec = f.do(t, http.MethodPost, "/channels", "", map[string]any{"id": "deploys"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[any](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, "/channels", "", map[string]any{"name": "No id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/channels", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notify.Channel](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "deploys", list.Data[0].ID)

	rec = f.do(t, http.MethodDelete, "/channels/deploys", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/channels/deploys", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[any](t, rec).Error.Code)

	rec = f.do(t, http.MethodDelete, "/channels/deploys", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting a missing channel is a no-op")
}

func TestServer_Subscriptions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.hub.CreateChannel(context.Background(), "ops", "Operations", "")
	require.NoError(t, err)

	for range 2 {
		rec := f.do(t, http.MethodPost, "/channels/ops/subscriptions", "client-a", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/subscriptions", "client-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decode[[]notify.Subscription](t, rec).Data
	require.Len(t, subs, 2, "duplicate subscriptions are kept")
	first := subs[0].ID

	rec = f.do(t, http.MethodDelete, "/channels/ops/subscriptions", "client-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"removed": true}, decode[map[string]bool](t, rec).Data)

	subs = decode[[]notify.Subscription](t, f.do(t, http.MethodGet, "/subscriptions", "client-a", nil)).Data
	require.Len(t, subs, 1)
	assert.NotEqual(t, first, subs[0].ID, "the oldest subscription goes first")

	f.do(t, http.MethodDelete, "/channels/ops/subscriptions", "client-a", nil)
	rec = f.do(t, http.MethodDelete, "/channels/ops/subscriptions", "client-a", nil)
	assert.Equal(t, map[string]bool{"removed": false}, decode[map[string]bool](t, rec).Data)

	rec = f.do(t, http.MethodGet, "/subscriptions", "client-b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]notify.Subscription](t, rec).Data)
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.hub.CreateChannel(context.Background(), "ops", "Operations", "")
	require.NoError(t, err)

	invalid := notificationBody(notify.PriorityHigh)
	invalid["information"] = map[string]any{"title": "", "body": ""}

	tests := []struct {
		name       string
		method     string
		path       string
		clientID   string
		body       any
		rawBody    string
		wantStatus int
		wantCode   string
	}{
		{"unknown channel", http.MethodGet, "/channels/nope", "", nil, "", http.StatusNotFound, "not_found"},
		{"publish to unknown channel", http.MethodPost, "/channels/nope/notifications", "", notificationBody(notify.PriorityLow), "", http.StatusNotFound, "not_found"},
		{"subscribe to unknown channel", http.MethodPost, "/channels/nope/subscriptions", "client-a", nil, "", http.StatusNotFound, "not_found"},
		{"history of unknown channel", http.MethodGet, "/channels/nope/notifications", "", nil, "", http.StatusNotFound, "not_found"},
		{"invalid notification", http.MethodPost, "/channels/ops/notifications", "", invalid, "", http.StatusUnprocessableEntity, "validation_error"},
		{"unknown enum value", http.MethodPost, "/channels/ops/notifications", "", nil, `{"sender":{"id":"a","name":"A","role":"wizard"}}`, http.StatusUnprocessableEntity, "unprocessable_entity"},
		{"malformed body", http.MethodPost, "/channels/ops/notifications", "", nil, `{"sender":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, "/channels/ops/notifications", "", map[string]any{"reply_to": "x"}, "", http.StatusBadRequest, "bad_request"},
		{"bad limit", http.MethodGet, "/channels/ops/notifications?limit=many", "", nil, "", http.StatusBadRequest, "bad_request"},
		{"subscribe without client", http.MethodPost, "/channels/ops/subscriptions", "", nil, "", http.StatusBadRequest, "bad_request"},
		{"list without client", http.MethodGet, "/subscriptions", "", nil, "", http.StatusBadRequest, "bad_request"},
		{"unknown route", http.MethodGet, "/nope", "", nil, "", http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodPatch, "/channels/ops", "", nil, "", http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var rec *httptest.ResponseRecorder
			if tt.rawBody != "" {
				r := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.rawBody))
				r.Header.Set("Content-Type", "application/json")
				rec = httptest.NewRecorder()
				f.handler.ServeHTTP(rec, r)
			} else {
				rec = f.do(t, tt.method, tt.path, tt.clientID, tt.body)
			}
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			env := decode[any](t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}

	t.Run("validation details name each field", func(t *testing.T) {
		t.Parallel()
		rec := f.do(t, http.MethodPost, "/channels/ops/notifications", "", invalid)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		details := decode[any](t, rec).Error.Details
		assert.Contains(t, details, "information.title")
		assert.Contains(t, details, "information.body")
	})

	t.Run("rejected publish takes no sequence", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		_, err := f.hub.CreateChannel(ctx, "fresh", "Fresh", "")
		require.NoError(t, err)

		f.do(t, http.MethodPost, "/channels/fresh/notifications", "", invalid)
		rec := f.do(t, http.MethodPost, "/channels/fresh/notifications", "", notificationBody(notify.PriorityLow))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, int64(1), decode[notify.PublishResult](t, rec).Data.Sequence)
	})

	t.Run("unsupported media type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/channels", bytes.NewBufferString(`id=ops`))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	healthy := newFixture(t, httpapi.WithReadinessProbes(func(context.Context) error { return nil }))
	rec := healthy.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())
	rec = healthy.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := newFixture(t, httpapi.WithReadinessProbes(func(context.Context) error { return errors.New("db down") }))
	rec = broken.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", rec.Body.String())
}

func TestServer_Schema(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/schema/notification", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec).Data
	assert.Equal(t, notify.SchemaVersion, doc["schemaVersion"])
}

func TestServer_RequestID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(httpapi.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	assert.Equal(t, "req-42", rec.Header().Get(httpapi.RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(httpapi.RequestIDHeader, "bad id with spaces")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	generated := rec.Header().Get(httpapi.RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "bad id with spaces", generated)
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()
	extract := httpapi.RequestIDExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)
}
