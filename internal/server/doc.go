// Package server provides HTTP routing, middleware, and the handlers of the analytics web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Recovery], [Logging], [Metrics.Middleware] and the session middleware make up the stack of [App.Handler].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Endpoints
//
// [App] serves the OAuth endpoints (/authorize, /callback, /getAccessToken, /debug), the library
// sync (/sync) and the reports (/getFrequent, /report, /getTracksFromPlaylistDB), plus /healthz
// and /metrics.
//
// Errors are answered as {"detail": "..."} with the status chosen by [StatusFor].
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves the single callback of a CLI login started by [Authorize]. It validates the
// state parameter, exchanges the authorization code for tokens, and sends the result through a
// channel. It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
