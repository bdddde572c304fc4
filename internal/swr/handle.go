package swr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Amund211/deckcache/internal/cachekey"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/strutils"
)

// Handle is a reader of a single cached resource
type Handle[T any] struct {
	reader   *reader
	strategy strategy

	data       *Value[T]
	err        *Value[error]
	validating *Value[bool]

	lock      sync.Mutex
	raw       json.RawMessage
	hasData   bool
	closeOnce sync.Once
}

// Use opens a handle for url and loads it through the cache
//
// When nothing usable is cached Use blocks until the upstream responds. Stale
// data is returned at once and revalidated in the background. Errors are never
// returned, they are set on the Err observable and passed to OnError.
//
// Entries are keyed by url, body and the Authorization header of request, so
// callers with different credentials never share data. Data is only emitted
// when it changes: a revalidation that returns the same JSON document toggles
// IsValidating without a second value on Data.
func Use[T any](ctx context.Context, client *Client, url string, request domain.Request, opts ...PolicyOption) *Handle[T] {
	h := &Handle[T]{
		strategy:   client.strategy,
		data:       newValue[T](),
		err:        newValueOf[error](nil),
		validating: newValueOf(false),
	}
	h.reader = &reader{
		key:     cachekey.ForCaller(cachekey.FromRequest(url, request.Body), request.Header.Get("Authorization")),
		url:     url,
		request: request,
		policy:  NewPolicy(opts...),
		sink:    h,
	}

	client.strategy.open(ctx, h.reader)

	return h
}

func (h *Handle[T]) Key() string {
	return h.reader.key
}

func (h *Handle[T]) Data() *Value[T] {
	return h.data
}

func (h *Handle[T]) Err() *Value[error] {
	return h.err
}

func (h *Handle[T]) IsValidating() *Value[bool] {
	return h.validating
}

// Mutate writes data through to the cache without a network call
//
// A nil data forces a refetch that ignores staleness.
func (h *Handle[T]) Mutate(ctx context.Context, data *T) {
	if data == nil {
		h.strategy.refetch(ctx, h.reader)
		return
	}

	raw, err := json.Marshal(*data)
	if err != nil {
		h.reader.fail(ctx, fmt.Errorf("failed to encode mutation: %w", err))
		return
	}

	h.strategy.mutate(ctx, h.reader, raw)
}

// Close stops the handle from receiving further updates
func (h *Handle[T]) Close() {
	h.closeOnce.Do(func() {
		h.strategy.close(h.reader)
		h.data.close()
		h.err.close()
		h.validating.close()
	})
}

func (h *Handle[T]) setData(raw json.RawMessage) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.hasData && strutils.SameJSON(h.raw, raw) {
		return
	}

	var value T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			h.err.store(fmt.Errorf("%w: %w", domain.ErrInvalidResponse, err))
			return
		}
	}

	h.raw = raw
	h.hasData = true
	h.data.store(value)
}

func (h *Handle[T]) setErr(err error) {
	h.err.store(err)
}

func (h *Handle[T]) setValidating(validating bool) {
	h.validating.store(validating)
}
