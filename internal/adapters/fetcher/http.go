package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Amund211/deckcache/internal/constants"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/reporting"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error)
}

type HTTP struct {
	httpClient HttpClient
	token      string
}

// NewHTTP creates a fetcher for the upstream JSON API
//
// A non-empty token is sent as a bearer token unless the request already
// carries an Authorization header.
func NewHTTP(httpClient HttpClient, token string) *HTTP {
	return &HTTP{
		httpClient: httpClient,
		token:      token,
	}
}

func (f *HTTP) Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error) {
	if f.token != "" && request.Header.Get("Authorization") == "" {
		request = request.WithBearerToken(f.token)
	}

	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, request.MethodOrDefault(), url, body)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err, map[string]string{"url": url})
		return nil, err
	}

	for key, values := range request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "application/json")
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", domain.ErrTransport, err)
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"Upstream request completed",
		slog.String("url", url),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.String("duration", time.Since(start).String()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &domain.HTTPStatusError{StatusCode: resp.StatusCode}
		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: %w", domain.ErrTemporarilyUnavailable, statusErr)
		}
		return nil, statusErr
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	if !json.Valid(data) {
		err := fmt.Errorf("%w: upstream returned invalid JSON", domain.ErrInvalidResponse)
		reporting.Report(ctx, err, map[string]string{
			"url":    url,
			"status": strconv.Itoa(resp.StatusCode),
			"data":   string(data),
		})
		return nil, err
	}

	return json.RawMessage(data), nil
}
