package swr

import "sync"

// Value is an observable value
//
// Subscribers receive the current value first (when set) and then every
// change. A slow subscriber only ever sees the latest value.
type Value[T any] struct {
	lock        sync.Mutex
	current     T
	set         bool
	closed      bool
	subscribers map[chan T]struct{}
}

func newValue[T any]() *Value[T] {
	return &Value[T]{subscribers: make(map[chan T]struct{})}
}

func newValueOf[T any](initial T) *Value[T] {
	v := newValue[T]()
	v.current = initial
	v.set = true
	return v
}

// Get returns the current value and whether it has been set
func (v *Value[T]) Get() (T, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.current, v.set
}

// Subscribe returns a channel of values and a function to stop receiving them
//
// The channel is closed on unsubscribe or when the owning handle is closed.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	v.lock.Lock()
	defer v.lock.Unlock()

	if v.set {
		ch <- v.current
	}

	if v.closed {
		close(ch)
		return ch, func() {}
	}

	v.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.lock.Lock()
			defer v.lock.Unlock()

			if _, ok := v.subscribers[ch]; ok {
				delete(v.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (v *Value[T]) store(value T) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.current = value
	v.set = true

	for ch := range v.subscribers {
		replaceLatest(ch, value)
	}
}

func (v *Value[T]) close() {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.closed = true
	for ch := range v.subscribers {
		delete(v.subscribers, ch)
		close(ch)
	}
}

// replaceLatest must be called with the value lock held
func replaceLatest[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
