package httpapi

import (
	"log/slog"
	"strconv"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// NotificationEvent names stream events carrying a notification.
const NotificationEvent = "notification"

// stream forwards everything delivered to the caller until the client
// disconnects or the stream is dropped as a slow consumer.
func (s *Server) stream(ctx handler.Context, req clientRequest) handler.Response {
	if s.streams == nil {
		return s.fail(ctx, handler.ErrNotFound)
	}
	if req.ClientID == "" {
		return s.fail(ctx, errClientIDRequired)
	}

	sub := s.streams.Subscribe(ctx, req.ClientID)
	events := make(chan handler.Event)
	go func() {
		defer close(events)
		for n := range sub.Receive() {
			ev := handler.Event{
				ID:   n.Metadata.Channel + ":" + strconv.FormatInt(n.Metadata.Sequence, 10),
				Name: NotificationEvent,
				Data: n,
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.LogAttrs(ctx, slog.LevelDebug, "stream opened", logger.ClientID(req.ClientID))
	return handler.Stream(events,
		handler.WithHeartbeat(s.heartbeat),
		handler.WithOnClose(func() {
			_ = sub.Close()
			s.logger.LogAttrs(ctx, slog.LevelDebug, "stream closed", logger.ClientID(req.ClientID))
		}),
	)
}
