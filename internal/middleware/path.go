package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EscapedPath makes chi route on the escaped request path. URL parameters then
// keep their percent-encoding, so "%2F" inside a file name never splits a
// segment and handlers decode each parameter exactly once.
func EscapedPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}
