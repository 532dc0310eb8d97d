package httpapi

import (
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

var (
	errClientIDRequired = handler.ErrBadRequest.WithMessage("%s header is required", ClientIDHeader)
	errChannelNotFound  = handler.ErrNotFound.WithMessage("channel not found")
)

// toHTTPError maps hub and binder errors onto the response envelope.
func toHTTPError(err error) error {
	var verr *notify.ValidationError
	switch {
	case errors.As(err, &verr):
		return handler.ValidationError(verr.Errors.Map())
	case errors.Is(err, notify.ErrInvalidNotification):
		// Enum values are checked while decoding the body.
		return handler.ErrUnprocessableEntity.WithMessage("%s", err.Error())
	case errors.Is(err, notify.ErrAlreadyExists):
		return handler.ErrConflict.WithMessage("channel already exists")
	case errors.Is(err, notify.ErrChannelNotFound):
		return errChannelNotFound
	case errors.Is(err, notify.ErrChannelRequired):
		return handler.ErrBadRequest.WithMessage("channel id is required")
	case errors.Is(err, binder.ErrMissingContentType), errors.Is(err, binder.ErrUnsupportedMediaType):
		return handler.ErrUnsupportedMediaType.WithMessage("%s", err.Error())
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath),
		errors.Is(err, binder.ErrFailedToParseHeader):
		return handler.ErrBadRequest.WithMessage("%s", err.Error())
	}

	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return handler.ErrInternalServerError
}

// fail logs unexpected errors and hides their text from the client.
func (s *Server) fail(ctx handler.Context, err error) handler.Response {
	mapped := toHTTPError(err)
	if errors.Is(mapped, handler.ErrInternalServerError) {
		s.logger.LogAttrs(ctx, slog.LevelError, "request failed",
			slog.String("method", ctx.Request().Method),
			slog.String("path", ctx.Request().URL.Path),
			logger.Error(err),
		)
	}
	return handler.JSONError(mapped)
}
