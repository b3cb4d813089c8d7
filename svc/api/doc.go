// Package api exposes the entitlement engine over HTTP.
//
// Every response uses the envelope {"data": ..., "error": {...}}. Errors
// from the billing platform carry the error kind as code together with a
// user-facing message and recovery suggestions.
//
//	a := api.New(gate, svc, sync, api.WithLogger(log), api.WithWebhooks(paddle))
//	srv.Run(ctx, a.Router())
//
// Checkout and portal links produced while handling a request are returned
// as redirect_url when the platform was built with api.LinkCollector().
package api
