package ratelimiting

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrWouldExceedDeadline = errors.New("waiting for a request slot would exceed the deadline")

// WindowLimiter allows at most limit operations to finish within any window
type WindowLimiter struct {
	limit     int
	window    time.Duration
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	slots    chan struct{}
	finished []time.Time
	lock     sync.Mutex
}

func NewWindowLimiter(
	limit int,
	window time.Duration,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *WindowLimiter {
	slots := make(chan struct{}, limit)
	for range limit {
		slots <- struct{}{}
	}

	// Pretend every slot finished a full window ago so the first requests don't wait
	finished := make([]time.Time, limit)
	longAgo := nowFunc().Add(-window)
	for i := range finished {
		finished[i] = longAgo
	}

	return &WindowLimiter{
		limit:     limit,
		window:    window,
		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		slots:    slots,
		finished: finished,
	}
}

// Do waits for a free slot and runs operation
//
// If ctx has a deadline and the wait plus maxOperationTime would pass it, Do
// returns ErrWouldExceedDeadline without waiting. The operation's error is
// returned as is.
func (l *WindowLimiter) Do(ctx context.Context, maxOperationTime time.Duration, operation func() error) error {
	select {
	case <-l.slots:
		defer func() {
			l.slots <- struct{}{}
		}()
	case <-ctx.Done():
		return ctx.Err()
	}

	oldest, err := l.takeOldest(ctx, maxOperationTime)
	if err != nil {
		return err
	}
	// Put the slot back unchanged unless the operation runs
	reinsert := oldest
	defer func() {
		l.insert(reinsert)
	}()

	if wait := l.waitFor(oldest); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.afterFunc(wait):
		}
	}

	err = operation()
	reinsert = l.nowFunc()
	return err
}

func (l *WindowLimiter) waitFor(finishedAt time.Time) time.Duration {
	return l.window - l.nowFunc().Sub(finishedAt)
}

func (l *WindowLimiter) insert(finishedAt time.Time) {
	l.lock.Lock()
	defer l.lock.Unlock()

	i, _ := slices.BinarySearchFunc(l.finished, finishedAt, func(a, b time.Time) int {
		return a.Compare(b)
	})
	l.finished = slices.Insert(l.finished, i, finishedAt)
}

func (l *WindowLimiter) takeOldest(ctx context.Context, maxOperationTime time.Duration) (time.Time, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	oldest := l.finished[0]
	if deadline, ok := ctx.Deadline(); ok {
		if l.waitFor(oldest)+maxOperationTime > deadline.Sub(l.nowFunc()) {
			return time.Time{}, ErrWouldExceedDeadline
		}
	}

	l.finished = l.finished[1:]
	return oldest, nil
}
