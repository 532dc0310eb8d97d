// Package logger builds *slog.Logger instances for the notification hub and
// provides attribute helpers so every component names the same things the
// same way (channel_id, client_id, notification_id, sequence, ...).
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "notifyhub"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelInfo, "notification routed",
//	    logger.ChannelID("ops"),
//	    logger.Sequence(42),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
