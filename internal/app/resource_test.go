package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/cachekey"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/events"
	"github.com/Amund211/deckcache/internal/inflight"
	"github.com/Amund211/deckcache/internal/swr"
)

const baseURL = "https://api.example.com"

type mockedFetcher struct {
	t *testing.T

	lock     sync.Mutex
	urls     []string
	requests []domain.Request
	data     json.RawMessage
	err      error
}

func (f *mockedFetcher) Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.urls = append(f.urls, url)
	f.requests = append(f.requests, request)
	return f.data, f.err
}

func (f *mockedFetcher) URLs() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]string{}, f.urls...)
}

func newClient(t *testing.T, fetcher swr.Fetcher, nowFunc func() time.Time) (*swr.Client, store.Store) {
	t.Helper()

	s := store.NewMemoryStore()
	tracker := inflight.NewTracker[json.RawMessage]()
	t.Cleanup(tracker.Stop)

	return swr.NewClient(s, fetcher, tracker, events.NewBus(), nowFunc), s
}

func TestBuildGetResource(t *testing.T) {
	t.Parallel()

	t.Run("fetches through the cache", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{"cards":[]}`)}
		client, _ := newClient(t, fetcher, time.Now)
		getResource := app.BuildGetResource(client, baseURL)

		request := domain.Request{}.WithBearerToken("user-token")
		resource, err := getResource(t.Context(), "/api/decks/1", request)
		require.NoError(t, err)
		require.Equal(t, cachekey.ForCaller(baseURL+"/api/decks/1", "Bearer user-token"), resource.CacheKey)
		require.Equal(t, domain.ResourceDecks, resource.Kind)
		require.JSONEq(t, `{"cards":[]}`, string(resource.Data))
		require.NoError(t, resource.Err)

		resource, err = getResource(t.Context(), "/api/decks/1", request)
		require.NoError(t, err)
		require.JSONEq(t, `{"cards":[]}`, string(resource.Data))

		require.Equal(t, []string{baseURL + "/api/decks/1"}, fetcher.URLs())
		require.Equal(t, "Bearer user-token", fetcher.requests[0].Header.Get("Authorization"))
	})

	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t}
		client, _ := newClient(t, fetcher, time.Now)
		getResource := app.BuildGetResource(client, baseURL)

		_, err := getResource(t.Context(), "/api/../secrets", domain.Request{})
		require.ErrorIs(t, err, domain.ErrInvalidPath)
		require.Empty(t, fetcher.URLs())
	})

	t.Run("miss with failing fetch", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t, err: &domain.HTTPStatusError{StatusCode: 404}}
		client, _ := newClient(t, fetcher, time.Now)
		getResource := app.BuildGetResource(client, baseURL)

		_, err := getResource(t.Context(), "/api/cards/missing", domain.Request{})
		require.ErrorIs(t, err, domain.ErrHTTPStatus)

		var statusErr *domain.HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, 404, statusErr.StatusCode)
	})

	t.Run("expired entry with failing fetch serves cached data", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
		fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{"v":1}`)}
		s := store.NewMemoryStore()

		newGetResource := func(nowFunc func() time.Time) app.GetResource {
			// A fresh tracker so the second read is not deduplicated with the first
			tracker := inflight.NewTracker[json.RawMessage]()
			t.Cleanup(tracker.Stop)
			return app.BuildGetResource(swr.NewClient(s, fetcher, tracker, events.NewBus(), nowFunc), baseURL)
		}

		_, err := newGetResource(func() time.Time { return now })(t.Context(), "/api/trades/1", domain.Request{})
		require.NoError(t, err)

		fetcher.lock.Lock()
		fetcher.err = &domain.HTTPStatusError{StatusCode: 503}
		fetcher.lock.Unlock()

		// Trades expire after 15 minutes
		later := now.Add(time.Hour)
		resource, err := newGetResource(func() time.Time { return later })(t.Context(), "/api/trades/1", domain.Request{})
		require.NoError(t, err)
		require.JSONEq(t, `{"v":1}`, string(resource.Data))
		require.ErrorIs(t, resource.Err, domain.ErrHTTPStatus)
		require.Len(t, fetcher.URLs(), 2)
	})
}

func TestBuildMutateResource(t *testing.T) {
	t.Parallel()

	t.Run("optimistic write", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{"name":"old"}`)}
		client, s := newClient(t, fetcher, time.Now)
		mutateResource := app.BuildMutateResource(client, baseURL)

		resource, err := mutateResource(t.Context(), "/api/decks/1", domain.Request{}, json.RawMessage(`{"name":"new"}`))
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"new"}`, string(resource.Data))

		record, err := s.Get(t.Context(), store.PartitionAPICache, baseURL+"/api/decks/1")
		require.NoError(t, err)
		var entry domain.CacheEntry
		require.NoError(t, json.Unmarshal(record.Value, &entry))
		require.JSONEq(t, `{"name":"new"}`, string(entry.Data))
	})

	t.Run("empty body refetches", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{"name":"upstream"}`)}
		client, _ := newClient(t, fetcher, time.Now)
		mutateResource := app.BuildMutateResource(client, baseURL)

		resource, err := mutateResource(t.Context(), "/api/decks/1", domain.Request{}, nil)
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"upstream"}`, string(resource.Data))
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockedFetcher{t: t}
		client, _ := newClient(t, fetcher, time.Now)
		mutateResource := app.BuildMutateResource(client, baseURL)

		_, err := mutateResource(t.Context(), "/api/decks/1", domain.Request{}, json.RawMessage(`{`))
		require.ErrorIs(t, err, domain.ErrInvalidBody)
		require.Empty(t, fetcher.URLs())
	})
}

func TestBuildSubscribeResource(t *testing.T) {
	t.Parallel()

	fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{"name":"first"}`)}
	client, _ := newClient(t, fetcher, time.Now)
	subscribe := app.BuildSubscribeResource(client, baseURL)
	mutateResource := app.BuildMutateResource(client, baseURL)

	h, kind, err := subscribe(t.Context(), "/api/pods/3", domain.Request{})
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, domain.ResourcePods, kind)

	updates, unsubscribe := h.Data().Subscribe()
	defer unsubscribe()
	require.JSONEq(t, `{"name":"first"}`, string(<-updates))

	_, err = mutateResource(t.Context(), "/api/pods/3", domain.Request{}, json.RawMessage(`{"name":"second"}`))
	require.NoError(t, err)

	select {
	case data := <-updates:
		require.JSONEq(t, `{"name":"second"}`, string(data))
	case <-time.After(time.Second):
		require.Fail(t, "subscriber was not notified")
	}

	_, _, err = subscribe(t.Context(), "/nope", domain.Request{})
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestBuildRevalidateOnFocus(t *testing.T) {
	t.Parallel()

	fetcher := &mockedFetcher{t: t, data: json.RawMessage(`{}`)}
	client, _ := newClient(t, fetcher, time.Now)
	subscribe := app.BuildSubscribeResource(client, baseURL)
	focus := app.BuildRevalidateOnFocus(client)

	require.Equal(t, 0, focus(t.Context()))

	h, _, err := subscribe(t.Context(), "/api/collection", domain.Request{})
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, 1, focus(t.Context()))
}
