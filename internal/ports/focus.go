package ports

import (
	"log/slog"
	"net/http"

	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/ratelimiting"
)

type focusResponse struct {
	Success bool `json:"success"`
	Started int  `json:"started"`
}

func MakeFocusHandler(
	revalidateOnFocus app.RevalidateOnFocus,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("focus", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		started := revalidateOnFocus(ctx)

		writeJSON(ctx, w, http.StatusOK, focusResponse{Success: true, Started: started})
	}

	return middleware(handler)
}
