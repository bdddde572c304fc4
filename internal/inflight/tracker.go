package inflight

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func (c *call[T]) running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Tracker deduplicates concurrent calls per key
//
// The first caller for a key runs the call. Everyone arriving while it runs, or
// within the dedupe interval after it completes, gets the same result.
type Tracker[T any] struct {
	calls *ttlcache.Cache[string, *call[T]]
}

func NewTracker[T any]() *Tracker[T] {
	calls := ttlcache.New[string, *call[T]](
		ttlcache.WithDisableTouchOnHit[string, *call[T]](),
	)
	go calls.Start()
	return &Tracker[T]{calls: calls}
}

// Stop the background cleanup of completed calls
func (t *Tracker[T]) Stop() {
	t.calls.Stop()
}

// Do returns the result of fn for key, shared with concurrent callers
//
// fn runs on a context detached from the caller's cancellation, so a caller
// giving up never cancels the shared call. A caller whose ctx is done stops
// waiting and gets ctx.Err().
func (t *Tracker[T]) Do(ctx context.Context, key string, dedupe time.Duration, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	candidate := &call[T]{done: make(chan struct{})}
	item, existed := t.calls.GetOrSet(key, candidate)
	c := item.Value()

	if !existed {
		go t.run(context.WithoutCancel(ctx), key, dedupe, c, fn)
	}

	select {
	case <-c.done:
		return c.value, existed, c.err
	case <-ctx.Done():
		var empty T
		return empty, existed, ctx.Err()
	}
}

func (t *Tracker[T]) run(ctx context.Context, key string, dedupe time.Duration, c *call[T], fn func(ctx context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("call for %s panicked: %v", key, r)
		}

		close(c.done)

		if dedupe <= 0 {
			t.calls.Delete(key)
			return
		}
		t.calls.Set(key, c, dedupe)
	}()

	c.value, c.err = fn(ctx)
}

// InFlight reports whether a call for key is currently running
func (t *Tracker[T]) InFlight(key string) bool {
	item := t.calls.Get(key)
	if item == nil {
		return false
	}
	return item.Value().running()
}
