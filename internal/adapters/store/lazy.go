package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type unavailableStore struct {
	reason error
}

// NewUnavailable returns a store where every operation fails with ErrUnavailable
func NewUnavailable(reason error) Store {
	return &unavailableStore{reason: reason}
}

func (s *unavailableStore) err() error {
	if s.reason == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, s.reason)
}

func (s *unavailableStore) Get(ctx context.Context, partition string, key string) (Record, error) {
	return Record{}, s.err()
}

func (s *unavailableStore) Put(ctx context.Context, partition string, record Record) error {
	return s.err()
}

func (s *unavailableStore) Delete(ctx context.Context, partition string, key string) error {
	return s.err()
}

func (s *unavailableStore) List(ctx context.Context, partition string) ([]Record, error) {
	return nil, s.err()
}

func (s *unavailableStore) Clear(ctx context.Context, partition string) error {
	return s.err()
}

func (s *unavailableStore) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	return 0, s.err()
}

type lazyStore struct {
	open func(ctx context.Context) (Store, error)

	once  sync.Once
	inner Store
}

// NewLazy opens the underlying store on first use
//
// open is called at most once. If it fails, every operation on the returned
// store fails with ErrUnavailable wrapping the cause.
func NewLazy(open func(ctx context.Context) (Store, error)) Store {
	return &lazyStore{open: open}
}

func (s *lazyStore) get(ctx context.Context) Store {
	s.once.Do(func() {
		inner, err := s.open(ctx)
		if err != nil {
			s.inner = NewUnavailable(fmt.Errorf("failed to open store: %w", err))
			return
		}
		s.inner = inner
	})
	return s.inner
}

func (s *lazyStore) Get(ctx context.Context, partition string, key string) (Record, error) {
	return s.get(ctx).Get(ctx, partition, key)
}

func (s *lazyStore) Put(ctx context.Context, partition string, record Record) error {
	return s.get(ctx).Put(ctx, partition, record)
}

func (s *lazyStore) Delete(ctx context.Context, partition string, key string) error {
	return s.get(ctx).Delete(ctx, partition, key)
}

func (s *lazyStore) List(ctx context.Context, partition string) ([]Record, error) {
	return s.get(ctx).List(ctx, partition)
}

func (s *lazyStore) Clear(ctx context.Context, partition string) error {
	return s.get(ctx).Clear(ctx, partition)
}

func (s *lazyStore) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	return s.get(ctx).DeleteExpired(ctx, partition, now)
}
