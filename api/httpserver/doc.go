// Package httpserver provides a reusable HTTP server implementation with
// common functionality for FheDataHub components.
//
// The BaseServer bundles the pieces every service binary needs: a chi
// router with standard middleware, request logging, health endpoints
// (/livez, /readyz), drain control for load balancers (/drain, /undrain),
// an optional metrics server, optional pprof, and graceful shutdown.
//
// Components implement RouteRegistrar to mount their own endpoints:
//
//	func (h *HubHandler) RegisterRoutes(r chi.Router) {
//	    r.Post("/api/v1/submit", h.handleSubmit)
//	}
//
//	srv, err := httpserver.New(cfg, handler)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
