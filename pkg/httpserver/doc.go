// Package httpserver runs an http.Handler with graceful shutdown and
// exposes liveness and readiness handlers.
//
// Run blocks until the context is cancelled or the process receives
// SIGINT/SIGTERM, then drains connections for at most ShutdownTimeout.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//
//	r := chi.NewRouter()
//	r.Get("/health/live", httpserver.Liveness())
//	r.Get("/health/ready", httpserver.Readiness(log,
//	    httpserver.Check{Name: "store", Fn: store.Ping},
//	))
//
//	if err := srv.Run(ctx, r); err != nil {
//	    log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
