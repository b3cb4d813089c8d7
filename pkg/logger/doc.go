// Package logger builds *slog.Logger instances for the daemon and its
// components and provides attribute constructors for the subscription
// domain.
//
// New takes functional options; FromConfig maps the LOG_* and APP_ENV
// variables onto them:
//
//	cfg, _ := config.Load[logger.Config]()
//	log, err := logger.FromConfig(cfg, logger.WithContextExtractors(api.RequestIDExtractor()))
//
// Components accept a *slog.Logger through a WithLogger option and fall back
// to Discard. Domain attributes keep keys consistent across packages:
//
//	log.WarnContext(ctx, "status fetch failed",
//	    logger.Operation("get_status"),
//	    logger.ErrorKind(kind),
//	    logger.Error(err))
//
// ContextExtractor callbacks registered on the factory run on every record,
// which is how request ids reach log lines emitted deep inside services.
package logger
