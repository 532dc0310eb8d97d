// Package httpapi exposes the notification hub over HTTP with a chi router.
//
// Callers identify themselves with the X-Client-ID header. Identity is
// advisory: it picks whose subscriptions are listed, created or removed and
// which stream a GET /stream attaches to, but nothing is authenticated.
//
//	GET    /channels
//	POST   /channels
//	GET    /channels/{id}
//	DELETE /channels/{id}
//	GET    /channels/{id}/notifications?limit=N
//	POST   /channels/{id}/notifications
//	POST   /channels/{id}/subscriptions
//	DELETE /channels/{id}/subscriptions
//	GET    /subscriptions
//	GET    /stream
//	GET    /schema/notification
//	GET    /healthz
//	GET    /readyz
//
// JSON bodies use the handler envelope. Errors map to status codes as
// follows: duplicate channel 409, unknown channel 404, invalid
// notification 422 with one details entry per field path, missing channel
// or client id 400, anything else 500.
package httpapi
