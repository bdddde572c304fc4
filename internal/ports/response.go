package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/offline"
	"github.com/Amund211/deckcache/internal/reporting"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type resourceResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal response: %w", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

// statusForError maps a failure to the status code and cause returned to the client
func statusForError(err error) (int, string) {
	var statusErr *domain.HTTPStatusError

	switch {
	case errors.Is(err, domain.ErrInvalidPath):
		return http.StatusBadRequest, "invalid path"
	case errors.Is(err, domain.ErrInvalidBody), errors.Is(err, offline.ErrInvalidChange):
		return http.StatusBadRequest, "invalid body"
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrTemporarilyUnavailable),
		errors.Is(err, domain.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		return http.StatusBadGateway, "upstream error"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode, cause := statusForError(err)
	writeJSON(ctx, w, statusCode, errorResponse{Success: false, Error: cause})
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// upstreamRequest forwards the caller's credentials to the upstream
func upstreamRequest(r *http.Request) domain.Request {
	request := domain.Request{}
	if authorization := r.Header.Get("Authorization"); authorization != "" {
		request.Header = http.Header{}
		request.Header.Set("Authorization", authorization)
	}
	return request
}
