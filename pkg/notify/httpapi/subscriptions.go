package httpapi

import (
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

type clientRequest struct {
	ClientID string `header:"X-Client-ID"`
}

type clientChannelRequest struct {
	ChannelID string `path:"id"`
	ClientID  string `header:"X-Client-ID"`
}

type subscribeRequest struct {
	ChannelID string                     `path:"id" json:"-"`
	ClientID  string                     `header:"X-Client-ID" json:"-"`
	Filter    *notify.SubscriptionFilter `json:"filter"`
}

// subscribe always adds a subscription; repeating the call leaves the
// client with several.
func (s *Server) subscribe(ctx handler.Context, req subscribeRequest) handler.Response {
	if req.ClientID == "" {
		return s.fail(ctx, errClientIDRequired)
	}
	sub, err := s.hub.Subscribe(ctx, req.ClientID, req.ChannelID, req.Filter)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(sub, handler.WithJSONStatus(http.StatusCreated))
}

// unsubscribe removes the caller's oldest subscription to the channel.
func (s *Server) unsubscribe(ctx handler.Context, req clientChannelRequest) handler.Response {
	if req.ClientID == "" {
		return s.fail(ctx, errClientIDRequired)
	}
	removed, err := s.hub.Unsubscribe(ctx, req.ClientID, req.ChannelID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(map[string]bool{"removed": removed})
}

func (s *Server) listSubscriptions(ctx handler.Context, req clientRequest) handler.Response {
	if req.ClientID == "" {
		return s.fail(ctx, errClientIDRequired)
	}
	subs, err := s.hub.ListSubscriptions(ctx, req.ClientID)
	if err != nil {
		return s.fail(ctx, err)
	}
	if subs == nil {
		subs = []notify.Subscription{}
	}
	return handler.JSON(subs, handler.WithJSONMeta(map[string]any{"count": len(subs)}))
}
