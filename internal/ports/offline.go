package ports

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/ratelimiting"
)

type pendingChangeResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type queueChangeRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type queueChangeResponse struct {
	Success bool                  `json:"success"`
	Change  pendingChangeResponse `json:"change"`
}

type setOnlineRequest struct {
	Online *bool `json:"online"`
}

type offlineStatusResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Pending     int    `json:"pending"`
	SyncPending bool   `json:"syncPending"`
}

type syncResponse struct {
	Success bool   `json:"success"`
	Synced  int    `json:"synced"`
	Error   string `json:"error,omitempty"`
}

func offlineStatusToResponse(status app.OfflineStatus) offlineStatusResponse {
	return offlineStatusResponse{
		Success:     true,
		Status:      string(status.Status),
		Pending:     status.Pending,
		SyncPending: status.SyncPending,
	}
}

func decodeBody(r *http.Request, w http.ResponseWriter, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMutationSize))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidBody, err)
	}
	return nil
}

func MakeQueueChangeHandler(
	queueChange app.QueueChange,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("offlinechanges", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var request queueChangeRequest
		if err := decodeBody(r, w, &request); err != nil {
			writeError(ctx, w, err)
			return
		}

		change, err := queueChange(ctx, domain.ChangeType(request.Type), request.Data)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		writeJSON(ctx, w, http.StatusAccepted, queueChangeResponse{
			Success: true,
			Change: pendingChangeResponse{
				ID:        change.ID,
				Type:      string(change.Type),
				Data:      change.Data,
				Timestamp: change.Timestamp,
			},
		})
	}

	return middleware(handler)
}

func MakeSetOnlineHandler(
	setOnline app.SetOnline,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("offlineonline", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var request setOnlineRequest
		if err := decodeBody(r, w, &request); err != nil {
			writeError(ctx, w, err)
			return
		}
		if request.Online == nil {
			writeError(ctx, w, fmt.Errorf("%w: missing online", domain.ErrInvalidBody))
			return
		}

		status := setOnline(ctx, *request.Online)

		writeJSON(ctx, w, http.StatusOK, offlineStatusToResponse(status))
	}

	return middleware(handler)
}

func MakeSyncChangesHandler(
	syncChanges app.SyncChanges,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStrictRateLimiter()

	middleware := buildMiddleware("offlinesync", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		synced, err := syncChanges(ctx)
		if err != nil {
			statusCode, cause := statusForError(err)
			writeJSON(ctx, w, statusCode, syncResponse{Success: false, Synced: synced, Error: cause})
			return
		}

		writeJSON(ctx, w, http.StatusOK, syncResponse{Success: true, Synced: synced})
	}

	return middleware(handler)
}

func MakeGetOfflineStatusHandler(
	getStatus app.GetOfflineStatus,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("offlinestatus", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		writeJSON(ctx, w, http.StatusOK, offlineStatusToResponse(getStatus(ctx)))
	}

	return middleware(handler)
}
