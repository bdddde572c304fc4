package ports

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Amund211/deckcache/internal/ratelimiting"
)

type mockedRateLimiter struct {
	t           *testing.T
	allow       bool
	expectedKey string
}

func (m *mockedRateLimiter) Consume(key string) bool {
	m.t.Helper()
	require.Equal(m.t, m.expectedKey, key)
	return m.allow
}

func (m *mockedRateLimiter) Remaining(key string) int {
	m.t.Helper()
	require.Equal(m.t, m.expectedKey, key)
	if m.allow {
		return 7
	}
	return 0
}

func (m *mockedRateLimiter) RetryAfter(key string) time.Duration {
	m.t.Helper()
	require.Equal(m.t, m.expectedKey, key)
	return 1500 * time.Millisecond
}

func (m *mockedRateLimiter) Burst() int {
	return 8
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	runTest := func(t *testing.T, allow bool) {
		t.Helper()
		handlerCalled := false
		onLimitExceededCalled := false
		rateLimiter := &mockedRateLimiter{
			t:           t,
			allow:       allow,
			expectedKey: "ip: 169.254.169.126",
		}
		ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
			rateLimiter, ratelimiting.IPKeyFunc,
		)

		w := httptest.NewRecorder()
		middleware := NewRateLimitMiddleware(
			ipRateLimiter,
			func(w http.ResponseWriter, r *http.Request) {
				onLimitExceededCalled = true
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			},
		)
		handler := middleware(
			func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			},
		)

		req, err := http.NewRequest("GET", "http://example.com/test", nil)
		require.NoError(t, err)
		req.RemoteAddr = "169.254.169.126:58418"

		handler(w, req)

		require.Equal(t, "8", w.Header().Get("X-RateLimit-Limit"))
		if allow {
			require.True(t, handlerCalled, "Expected handler to be called")
			require.False(t, onLimitExceededCalled)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "7", w.Header().Get("X-RateLimit-Remaining"))
			require.Empty(t, w.Header().Get("Retry-After"))
		} else {
			require.True(t, onLimitExceededCalled)
			require.False(t, handlerCalled, "Expected handler to not be called")
			require.Equal(t, http.StatusTooManyRequests, w.Code)
			require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
			require.Equal(t, "2", w.Header().Get("Retry-After"))
		}
	}

	t.Run("allowed", func(t *testing.T) {
		t.Parallel()

		runTest(t, true)
	})

	t.Run("not allowed", func(t *testing.T) {
		t.Parallel()

		runTest(t, false)
	})
}

func TestOnLimitExceeded(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	onLimitExceeded(w, httptest.NewRequest(http.MethodGet, "/v1/resource", nil))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, w.Body.String())
}

func TestComposeMiddlewares(t *testing.T) {
	t.Parallel()

	// Each middleware records when it runs so the nesting can be checked
	recording := func(trace *[]string, name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				*trace = append(*trace, name+" pre")
				next(w, r)
				*trace = append(*trace, name+" post")
			}
		}
	}

	run := func(t *testing.T, middlewares func(trace *[]string) []func(http.HandlerFunc) http.HandlerFunc) []string {
		t.Helper()

		trace := []string{}
		handler := ComposeMiddlewares(middlewares(&trace)...)(
			func(w http.ResponseWriter, r *http.Request) {
				trace = append(trace, "handler")
			},
		)
		handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/resource", nil))
		return trace
	}

	t.Run("no middleware", func(t *testing.T) {
		t.Parallel()

		trace := run(t, func(trace *[]string) []func(http.HandlerFunc) http.HandlerFunc {
			return nil
		})
		require.Equal(t, []string{"handler"}, trace)
	})

	t.Run("single middleware", func(t *testing.T) {
		t.Parallel()

		trace := run(t, func(trace *[]string) []func(http.HandlerFunc) http.HandlerFunc {
			return []func(http.HandlerFunc) http.HandlerFunc{recording(trace, "metrics")}
		})
		require.Equal(t, []string{"metrics pre", "handler", "metrics post"}, trace)
	})

	t.Run("first middleware is outermost", func(t *testing.T) {
		t.Parallel()

		trace := run(t, func(trace *[]string) []func(http.HandlerFunc) http.HandlerFunc {
			return []func(http.HandlerFunc) http.HandlerFunc{
				recording(trace, "metrics"),
				recording(trace, "logger"),
				recording(trace, "cors"),
			}
		})
		require.Equal(t, []string{
			"metrics pre",
			"logger pre",
			"cors pre",
			"handler",
			"cors post",
			"logger post",
			"metrics post",
		}, trace)
	})

	t.Run("short circuit", func(t *testing.T) {
		t.Parallel()

		trace := run(t, func(trace *[]string) []func(http.HandlerFunc) http.HandlerFunc {
			return []func(http.HandlerFunc) http.HandlerFunc{
				recording(trace, "metrics"),
				func(next http.HandlerFunc) http.HandlerFunc {
					return func(w http.ResponseWriter, r *http.Request) {
						*trace = append(*trace, "limited")
					}
				},
				recording(trace, "cors"),
			}
		})
		require.Equal(t, []string{"metrics pre", "limited", "metrics post"}, trace)
	})
}
