package events

import (
	"encoding/json"
	"sync"
)

const subscriberBuffer = 16

// Update notifies readers of a cache key that its entry changed
type Update struct {
	Key  string
	Data json.RawMessage
	// Set when the revalidation failed and Data is the cached fallback
	Err error
}

type subscription struct {
	ch   chan Update
	lock sync.Mutex
}

// deliver never blocks. When the buffer is full the oldest update is dropped.
func (s *subscription) deliver(update Update) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for {
		select {
		case s.ch <- update:
			return
		default:
		}

		select {
		case <-s.ch:
		default:
		}
	}
}

// Bus broadcasts updates to every subscriber of a cache key
type Bus struct {
	lock          sync.RWMutex
	subscriptions map[string]map[*subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]map[*subscription]struct{}),
	}
}

// Subscribe returns a channel of updates for key and a function to stop them
//
// The channel is closed when unsubscribe is called. Calling unsubscribe more
// than once is fine.
func (b *Bus) Subscribe(key string) (<-chan Update, func()) {
	sub := &subscription{ch: make(chan Update, subscriberBuffer)}

	b.lock.Lock()
	if _, ok := b.subscriptions[key]; !ok {
		b.subscriptions[key] = make(map[*subscription]struct{})
	}
	b.subscriptions[key][sub] = struct{}{}
	b.lock.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.lock.Lock()
			defer b.lock.Unlock()

			if subs, ok := b.subscriptions[key]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.subscriptions, key)
				}
			}
			close(sub.ch)
		})
	}

	return sub.ch, unsubscribe
}

func (b *Bus) Publish(update Update) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for sub := range b.subscriptions[update.Key] {
		sub.deliver(update)
	}
}

func (b *Bus) SubscriberCount(key string) int {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return len(b.subscriptions[key])
}
