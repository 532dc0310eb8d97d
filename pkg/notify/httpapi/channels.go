package httpapi

import (
	"net/http"

	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

type createChannelRequest struct {
	ClientID    string                     `header:"X-Client-ID" json:"-"`
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Permissions *notify.ChannelPermissions `json:"permissions"`
	Metadata    map[string]any             `json:"metadata"`
}

type channelRequest struct {
	ID string `path:"id"`
}

func (s *Server) listChannels(ctx handler.Context, _ struct{}) handler.Response {
	channels, err := s.hub.ListChannels(ctx)
	if err != nil {
		return s.fail(ctx, err)
	}
	if channels == nil {
		channels = []notify.Channel{}
	}
	return handler.JSON(channels, handler.WithJSONMeta(map[string]any{"count": len(channels)}))
}

// createChannel records the caller as creator when X-Client-ID is set.
func (s *Server) createChannel(ctx handler.Context, req createChannelRequest) handler.Response {
	ch, err := s.hub.CreateChannelWithOptions(ctx, notify.CreateChannelParams{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.ClientID,
		Permissions: req.Permissions,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(ch, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Server) getChannel(ctx handler.Context, req channelRequest) handler.Response {
	ch, err := s.hub.ChannelInfo(ctx, req.ID)
	if err != nil {
		return s.fail(ctx, err)
	}
	if ch == nil {
		return s.fail(ctx, notify.ErrChannelNotFound)
	}
	return handler.JSON(ch)
}

func (s *Server) deleteChannel(ctx handler.Context, req channelRequest) handler.Response {
	if err := s.hub.DeleteChannel(ctx, req.ID); err != nil {
		return s.fail(ctx, err)
	}
	return handler.Empty()
}

func (s *Server) schema(_ handler.Context, _ struct{}) handler.Response {
	return handler.JSON(notify.SchemaDocument())
}
