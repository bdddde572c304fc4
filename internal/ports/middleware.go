package ports

import (
	"log/slog"
	"net/http"

	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/ratelimiting"
	"github.com/Amund211/deckcache/internal/reporting"
)

// NewRateLimitMiddleware consumes a token for every request and reports the
// remaining budget in the response headers
func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter, onLimitExceeded http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			allowed := rateLimiter.Consume(r)
			rateLimiter.WriteHeaders(w, r, !allowed)
			if !allowed {
				onLimitExceeded(w, r)
				return
			}

			next(w, r)
		}
	}
}

// ComposeMiddlewares chains middlewares so the first one given runs outermost
func ComposeMiddlewares(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(h http.HandlerFunc) http.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

func onLimitExceeded(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusTooManyRequests, errorResponse{Success: false, Error: "rate limit exceeded"})
}

// buildMiddleware returns the middleware chain shared by every endpoint
func buildMiddleware(
	port string,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
	rateLimiter ratelimiting.RateLimiter,
) func(http.HandlerFunc) http.HandlerFunc {
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(rateLimiter, ratelimiting.IPKeyFunc)

	return ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware(port),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, onLimitExceeded),
	)
}
