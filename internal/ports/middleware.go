package ports

import (
	"net/http"

	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/Amund211/fetchlight/internal/ratelimiting"
)

// Middleware wraps a handler
type Middleware = func(http.HandlerFunc) http.HandlerFunc

const rateLimitExceededBody = `{"success":false,"cause":"rate limit exceeded"}`

// NewRateLimitMiddleware answers 429 when rateLimiter has no tokens left for the request
func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter.Consume(r) {
				next(w, r)
				return
			}

			ctx := r.Context()
			logging.FromContext(ctx).InfoContext(ctx, "Rate limit exceeded", "key", rateLimiter.KeyFor(r))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(rateLimitExceededBody))
		}
	}
}

// ComposeMiddlewares applies middlewares outermost first
func ComposeMiddlewares(middlewares ...Middleware) Middleware {
	return func(handler http.HandlerFunc) http.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}
