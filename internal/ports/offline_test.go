package ports_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/offline"
	"github.com/Amund211/deckcache/internal/ports"
)

func TestMakeQueueChangeHandler(t *testing.T) {
	t.Parallel()

	allowedOrigins, testLogger, noopMiddleware := testHandlerDeps(t)
	timestamp := time.Date(2026, time.March, 4, 12, 30, 0, 0, time.UTC)

	t.Run("queued", func(t *testing.T) {
		t.Parallel()

		handler := ports.MakeQueueChangeHandler(
			func(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error) {
				require.Equal(t, domain.ChangeUpdate, changeType)
				require.JSONEq(t, `{"id":7,"name":"Burn"}`, string(data))
				return domain.PendingChange{
					ID:        "a3c1b7f2-5a4e-4a0a-9c57-0c9d1c8f6c1e",
					Type:      changeType,
					Data:      data,
					Timestamp: timestamp,
				}, nil
			},
			allowedOrigins, testLogger, noopMiddleware,
		)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(
			http.MethodPost, "/v1/offline/changes",
			strings.NewReader(`{"type":"update","data":{"id":7,"name":"Burn"}}`),
		))

		require.Equal(t, http.StatusAccepted, w.Code)
		require.JSONEq(t, `{
			"success": true,
			"change": {
				"id": "a3c1b7f2-5a4e-4a0a-9c57-0c9d1c8f6c1e",
				"type": "update",
				"data": {"id":7,"name":"Burn"},
				"timestamp": "2026-03-04T12:30:00Z"
			}
		}`, w.Body.String())
	})

	t.Run("rejected change", func(t *testing.T) {
		t.Parallel()

		handler := ports.MakeQueueChangeHandler(
			func(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error) {
				return domain.PendingChange{}, fmt.Errorf("could not queue change: %w: update without id", offline.ErrInvalidChange)
			},
			allowedOrigins, testLogger, noopMiddleware,
		)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(
			http.MethodPost, "/v1/offline/changes",
			strings.NewReader(`{"type":"update","data":{"name":"Burn"}}`),
		))

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.JSONEq(t, `{"success":false,"error":"invalid body"}`, w.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		called := false
		handler := ports.MakeQueueChangeHandler(
			func(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error) {
				called = true
				return domain.PendingChange{}, nil
			},
			allowedOrigins, testLogger, noopMiddleware,
		)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/changes", strings.NewReader(`{"type":`)))

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.False(t, called)
	})
}

func TestMakeSetOnlineHandler(t *testing.T) {
	t.Parallel()

	allowedOrigins, testLogger, noopMiddleware := testHandlerDeps(t)

	var received []bool
	handler := ports.MakeSetOnlineHandler(
		func(ctx context.Context, online bool) app.OfflineStatus {
			received = append(received, online)
			if online {
				return app.OfflineStatus{Status: offline.StatusOnline}
			}
			return app.OfflineStatus{Status: offline.StatusOfflineWithChanges, Pending: 2, SyncPending: true}
		},
		allowedOrigins, testLogger, noopMiddleware,
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/online", strings.NewReader(`{"online":false}`)))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"status":"offline-with-changes","pending":2,"syncPending":true}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/online", strings.NewReader(`{"online":true}`)))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"status":"online","pending":0,"syncPending":false}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/online", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, []bool{false, true}, received)
}

func TestMakeSyncChangesHandler(t *testing.T) {
	t.Parallel()

	allowedOrigins, testLogger, noopMiddleware := testHandlerDeps(t)

	t.Run("synced", func(t *testing.T) {
		t.Parallel()

		handler := ports.MakeSyncChangesHandler(
			func(ctx context.Context) (int, error) {
				return 3, nil
			},
			allowedOrigins, testLogger, noopMiddleware,
		)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/sync", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"success":true,"synced":3}`, w.Body.String())
	})

	t.Run("partially synced", func(t *testing.T) {
		t.Parallel()

		handler := ports.MakeSyncChangesHandler(
			func(ctx context.Context) (int, error) {
				return 1, fmt.Errorf("could not sync changes: %w", &domain.HTTPStatusError{StatusCode: 500})
			},
			allowedOrigins, testLogger, noopMiddleware,
		)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/offline/sync", nil))

		require.Equal(t, http.StatusBadGateway, w.Code)
		require.JSONEq(t, `{"success":false,"synced":1,"error":"upstream error"}`, w.Body.String())
	})
}

func TestMakeGetOfflineStatusHandler(t *testing.T) {
	t.Parallel()

	allowedOrigins, testLogger, noopMiddleware := testHandlerDeps(t)

	handler := ports.MakeGetOfflineStatusHandler(
		func(ctx context.Context) app.OfflineStatus {
			return app.OfflineStatus{Status: offline.StatusOffline}
		},
		allowedOrigins, testLogger, noopMiddleware,
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/offline/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"status":"offline","pending":0,"syncPending":false}`, w.Body.String())
}
