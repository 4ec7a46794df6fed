package middleware

import (
	"net/http"
	"slices"
)

// Chain wraps h so that requests pass through middlewares in the order
// given. routes.SetupRoutes puts RequestID first so every later layer,
// including the request log, sees the id.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, mw := range slices.Backward(middlewares) {
		h = mw(h)
	}
	return h
}
