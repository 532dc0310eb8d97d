// Package handler turns typed handler functions into http.HandlerFunc.
//
// A handler receives a Context and a request value filled by binders, and
// returns a Response:
//
//	type getChannelInput struct {
//	    ID string `path:"id"`
//	}
//
//	func getChannel(ctx handler.Context, in getChannelInput) handler.Response {
//	    ch, err := hub.GetChannel(ctx, in.ID)
//	    if err != nil {
//	        return handler.JSONError(err)
//	    }
//	    return handler.JSON(ch)
//	}
//
//	r.Get("/channels/{id}", handler.Wrap(getChannel,
//	    handler.WithBinders[handler.Context, getChannelInput](binder.Path(chi.URLParam)),
//	))
//
// JSON responses share one envelope: {"data": ..., "meta": ..., "error":
// {"code", "message", "details"}}. Errors that are neither HTTPError nor
// ValidationError render as 500. Stream renders a text/event-stream
// response from a channel.
package handler
