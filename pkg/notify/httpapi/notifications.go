package httpapi

import (
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

type recentRequest struct {
	ChannelID string `path:"id"`
	Limit     int    `query:"limit"`
}

// publishRequest takes the target channel from the path; a channel field in
// the body is ignored.
type publishRequest struct {
	ChannelID string `path:"id" json:"-"`
	notify.PublishRequest
}

func (s *Server) recentNotifications(ctx handler.Context, req recentRequest) handler.Response {
	ch, err := s.hub.GetChannel(ctx, req.ChannelID)
	if err != nil {
		return s.fail(ctx, err)
	}
	if ch == nil {
		return s.fail(ctx, notify.ErrChannelNotFound)
	}

	list, err := s.hub.RecentNotifications(ctx, req.ChannelID, req.Limit)
	if err != nil {
		return s.fail(ctx, err)
	}
	if list == nil {
		list = []notify.Notification{}
	}
	return handler.JSON(list, handler.WithJSONMeta(map[string]any{"count": len(list)}))
}

func (s *Server) publish(ctx handler.Context, req publishRequest) handler.Response {
	req.Channel = req.ChannelID
	res, err := s.hub.Publish(ctx, req.PublishRequest)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(res, handler.WithJSONStatus(http.StatusCreated))
}
