package swr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/events"
	"github.com/Amund211/deckcache/internal/inflight"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error)
}

// strategy drives handles in a given environment
type strategy interface {
	open(ctx context.Context, r *reader)
	mutate(ctx context.Context, r *reader, data json.RawMessage)
	refetch(ctx context.Context, r *reader)
	close(r *reader)
	focus(ctx context.Context) int
}

// Client holds everything a handle needs to read through the cache
type Client struct {
	strategy strategy
}

// NewClient returns a client that reads through s and revalidates using fetcher
//
// Handles created from the same client share in-flight requests through
// tracker and are notified of each other's writes through bus.
func NewClient(
	s store.Store,
	fetcher Fetcher,
	tracker *inflight.Tracker[json.RawMessage],
	bus *events.Bus,
	nowFunc func() time.Time,
) *Client {
	return &Client{
		strategy: &interactive{
			store:   s,
			fetcher: fetcher,
			tracker: tracker,
			bus:     bus,
			nowFunc: nowFunc,
			readers: make(map[*reader]struct{}),
		},
	}
}

// NewInertClient returns a client for contexts where nothing should be fetched
//
// Its handles never touch the network or the store and never receive data.
func NewInertClient() *Client {
	return &Client{strategy: inert{}}
}

// Focus revalidates every open handle that revalidates on focus
//
// Keys that are already being revalidated are skipped. Returns the number of
// revalidations started.
func (c *Client) Focus(ctx context.Context) int {
	return c.strategy.focus(ctx)
}
