package ports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/cachekey"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/ratelimiting"
	"github.com/Amund211/deckcache/internal/reporting"
	"github.com/Amund211/deckcache/internal/responsecache"
)

const maxMutationSize = 1 << 20

func writeResource(w http.ResponseWriter, r *http.Request, data json.RawMessage, etag string, xCache string, errMessage string) {
	w.Header().Set("X-Cache", xCache)
	if etag != "" {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	writeJSON(r.Context(), w, http.StatusOK, resourceResponse{
		Success: true,
		Data:    data,
		Error:   errMessage,
	})
}

func MakeGetResourceHandler(
	getResource app.GetResource,
	responseCache *responsecache.Cache,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("resource", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		path := r.URL.Query().Get("path")

		kind, err := app.ParseResourcePath(path)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		cacheKey := responsecache.Key(responsecache.CategoryFor(kind), cachekey.ForCaller(path, r.Header.Get("Authorization")))
		data, etag, ok := responseCache.Get(cacheKey, r.Header.Get("If-None-Match"))
		if ok {
			logging.FromContext(ctx).InfoContext(ctx, "Serving resource", "cache", "hit")
			writeResource(w, r, data, etag, "HIT", "")
			return
		}

		resource, err := getResource(ctx, path, upstreamRequest(r))
		if err != nil {
			// NOTE: GetResource implementations handle their own error reporting
			writeError(ctx, w, err)
			return
		}
		logging.FromContext(ctx).InfoContext(ctx, "Serving resource", "cache", "miss", "stale", resource.Err != nil)

		etag = responsecache.ETag(resource.Data)
		if resource.Err == nil {
			// Stale data served after a failed revalidation is not cached
			etag, err = responseCache.Put(cacheKey, resource.Data, responsecache.CategoryFor(kind))
			if err != nil {
				reporting.Report(ctx, fmt.Errorf("failed to cache response: %w", err))
			}
		}

		writeResource(w, r, resource.Data, etag, "MISS", errorMessage(resource.Err))
	}

	return middleware(handler)
}

func MakeMutateResourceHandler(
	mutateResource app.MutateResource,
	responseCache *responsecache.Cache,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("mutate", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		path := r.URL.Query().Get("path")

		kind, err := app.ParseResourcePath(path)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMutationSize))
		if err != nil {
			writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Success: false, Error: "body too large"})
			return
		}

		// List views of the category may embed the mutated resource
		responseCache.InvalidateCategory(responsecache.CategoryFor(kind))

		resource, err := mutateResource(ctx, path, upstreamRequest(r), bytes.TrimSpace(body))
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		writeJSON(ctx, w, http.StatusOK, resourceResponse{
			Success: true,
			Data:    resource.Data,
			Error:   errorMessage(resource.Err),
		})
	}

	return middleware(handler)
}
