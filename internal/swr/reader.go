package swr

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/events"
	"github.com/Amund211/deckcache/internal/inflight"
	"github.com/Amund211/deckcache/internal/logging"
)

type sink interface {
	setData(raw json.RawMessage)
	setErr(err error)
	setValidating(validating bool)
}

// reader is the untyped state of a handle
type reader struct {
	key     string
	url     string
	request domain.Request
	policy  Policy
	sink    sink

	lock        sync.Mutex
	validations int
	unsubscribe func()
}

func (r *reader) startValidating() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.validations++
	if r.validations == 1 {
		r.sink.setValidating(true)
	}
}

func (r *reader) stopValidating() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.validations--
	if r.validations == 0 {
		r.sink.setValidating(false)
	}
}

func (r *reader) succeed(data json.RawMessage) {
	r.sink.setErr(nil)
	r.sink.setData(data)
}

func (r *reader) fail(ctx context.Context, err error) {
	logging.FromContext(ctx).WarnContext(ctx, "Revalidation failed", "key", r.key, "error", err.Error())

	r.sink.setErr(err)
	if r.policy.OnError != nil {
		r.policy.OnError(r.key, err)
	}
}

// interactive reads through the store and revalidates against the upstream
type interactive struct {
	store   store.Store
	fetcher Fetcher
	tracker *inflight.Tracker[json.RawMessage]
	bus     *events.Bus
	nowFunc func() time.Time

	lock    sync.Mutex
	readers map[*reader]struct{}
}

func (i *interactive) open(ctx context.Context, r *reader) {
	updates, unsubscribe := i.bus.Subscribe(r.key)
	r.unsubscribe = unsubscribe
	go func() {
		for update := range updates {
			r.sink.setErr(update.Err)
			r.sink.setData(update.Data)
		}
	}()

	i.lock.Lock()
	i.readers[r] = struct{}{}
	i.lock.Unlock()

	i.initialise(ctx, r)
}

func (i *interactive) initialise(ctx context.Context, r *reader) {
	entry, ok := i.load(ctx, r.key)
	if !ok {
		metrics.lookupCount.Add(ctx, 1, outcomeOption("miss"))
		i.revalidateInto(ctx, r)
		return
	}

	r.sink.setData(entry.Data)
	if storedErr := domain.StoredError(entry.Error); storedErr != nil {
		r.sink.setErr(storedErr)
	}

	now := i.nowFunc()
	switch {
	case entry.IsExpired(now):
		metrics.lookupCount.Add(ctx, 1, outcomeOption("expired"))
		i.revalidateInto(ctx, r)
	case entry.IsStale(now, r.policy.StaleTime):
		metrics.lookupCount.Add(ctx, 1, outcomeOption("stale"))
		i.revalidateInBackground(ctx, r)
	default:
		metrics.lookupCount.Add(ctx, 1, outcomeOption("fresh"))
	}
}

func (i *interactive) mutate(ctx context.Context, r *reader, data json.RawMessage) {
	r.succeed(data)

	entry := domain.NewCacheEntry(r.key, data, i.nowFunc(), r.policy.MaxAge)
	i.save(ctx, entry)
	i.bus.Publish(events.Update{Key: r.key, Data: entry.Data})
}

func (i *interactive) refetch(ctx context.Context, r *reader) {
	i.revalidateInto(ctx, r)
}

func (i *interactive) close(r *reader) {
	i.lock.Lock()
	delete(i.readers, r)
	i.lock.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (i *interactive) focus(ctx context.Context) int {
	i.lock.Lock()
	readers := make([]*reader, 0, len(i.readers))
	for r := range i.readers {
		readers = append(readers, r)
	}
	i.lock.Unlock()

	started := make(map[string]struct{})
	for _, r := range readers {
		if !r.policy.RevalidateOnFocus {
			continue
		}
		if _, ok := started[r.key]; ok {
			continue
		}
		if i.tracker.InFlight(r.key) {
			continue
		}

		started[r.key] = struct{}{}
		i.revalidateInBackground(ctx, r)
	}

	return len(started)
}

// revalidateInto revalidates the key of r and writes the outcome to r
func (i *interactive) revalidateInto(ctx context.Context, r *reader) {
	r.startValidating()
	i.finishRevalidation(ctx, r)
}

// revalidateInBackground marks r as validating before returning
func (i *interactive) revalidateInBackground(ctx context.Context, r *reader) {
	r.startValidating()
	go i.finishRevalidation(context.WithoutCancel(ctx), r)
}

func (i *interactive) finishRevalidation(ctx context.Context, r *reader) {
	defer r.stopValidating()

	data, shared, err := i.tracker.Do(ctx, r.key, r.policy.DedupingInterval, func(ctx context.Context) (json.RawMessage, error) {
		return i.revalidate(ctx, r)
	})
	if shared {
		metrics.deduplicatedCount.Add(ctx, 1)
	}

	if err != nil {
		if data != nil {
			// Serve the cached fallback together with the error
			r.sink.setData(data)
		}
		r.fail(ctx, err)
		return
	}

	r.succeed(data)
}

// revalidate fetches the key of r from the upstream and updates the entry
//
// On failure the cached entry, if any, is rewritten with the error and its
// data is returned alongside the error.
func (i *interactive) revalidate(ctx context.Context, r *reader) (json.RawMessage, error) {
	data, err := i.fetcher.Fetch(ctx, r.url, r.request)
	if err != nil {
		metrics.revalidationCount.Add(ctx, 1, outcomeOption("failure"))

		entry, ok := i.load(ctx, r.key)
		if !ok {
			return nil, err
		}

		entry = entry.WithError(err)
		i.save(ctx, entry)
		i.bus.Publish(events.Update{Key: r.key, Data: entry.Data, Err: err})

		return entry.Data, err
	}

	metrics.revalidationCount.Add(ctx, 1, outcomeOption("success"))

	entry := domain.NewCacheEntry(r.key, data, i.nowFunc(), r.policy.MaxAge)
	i.save(ctx, entry)
	i.bus.Publish(events.Update{Key: r.key, Data: entry.Data})

	return entry.Data, nil
}

func (i *interactive) load(ctx context.Context, key string) (domain.CacheEntry, bool) {
	logger := logging.FromContext(ctx)

	record, err := i.store.Get(ctx, store.PartitionAPICache, key)
	if errors.Is(err, store.ErrNotFound) {
		return domain.CacheEntry{}, false
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to load from cache", "key", key, "error", err.Error())
		return domain.CacheEntry{}, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(record.Value, &entry); err != nil {
		logger.WarnContext(ctx, "Failed to decode cache entry", "key", key, "error", err.Error())
		return domain.CacheEntry{}, false
	}

	return entry, true
}

func (i *interactive) save(ctx context.Context, entry domain.CacheEntry) {
	logger := logging.FromContext(ctx)

	value, err := json.Marshal(entry)
	if err != nil {
		logger.WarnContext(ctx, "Failed to encode cache entry", "key", entry.CacheKey, "error", err.Error())
		return
	}

	err = i.store.Put(ctx, store.PartitionAPICache, store.Record{
		Key:       entry.CacheKey,
		Value:     value,
		ExpiresAt: entry.ExpiresAt,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to save to cache", "key", entry.CacheKey, "error", err.Error())
	}
}
