// Package server provides HTTP routing, middleware, and the operator handlers of the scrobble engine.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Operator Endpoints
//
// [NewRouter] wires the endpoints served by the long-running process:
//   - GET /healthz pings the database
//   - GET /metrics exposes the prometheus collectors
//   - GET /api/scrobble/events lists events, filtered by user, series, type and status
//   - GET /api/scrobble/errors lists quarantine and credential records
//   - DELETE /api/scrobble/errors?series_id= clears a series' records so its events are delivered again
//   - POST /api/scrobble/sync triggers a sync run and returns its report
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// [Service] adapts the HTTP server to the supervisor's Serve contract.
package server
