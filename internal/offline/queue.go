// Package offline queues deck changes made while the upstream is unreachable
// and replays them in order once it is reachable again.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/reporting"
)

var ErrInvalidChange = errors.New("invalid change")

type Status string

const (
	StatusOnline             Status = "online"
	StatusOfflineWithChanges Status = "offline-with-changes"
	StatusOffline            Status = "offline"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error)
}

type Queue struct {
	store   store.Store
	fetcher Fetcher
	baseURL string
	nowFunc func() time.Time

	lock        sync.Mutex
	online      bool
	syncPending bool
	changes     []domain.PendingChange

	// Held for the duration of a sync
	syncLock sync.Mutex
}

// NewQueue loads the changes persisted in s, oldest first
func NewQueue(ctx context.Context, s store.Store, fetcher Fetcher, baseURL string, online bool, nowFunc func() time.Time) (*Queue, error) {
	logger := logging.FromContext(ctx)

	records, err := s.List(ctx, store.PartitionPendingChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending changes: %w", err)
	}

	changes := make([]domain.PendingChange, 0, len(records))
	for _, record := range records {
		var change domain.PendingChange
		err := json.Unmarshal(record.Value, &change)
		if err == nil {
			err = validateChange(change.Type, change.Data)
		}
		if err != nil {
			logger.WarnContext(ctx, "Dropping unreadable pending change", "key", record.Key, "error", err.Error())
			if err := s.Delete(ctx, store.PartitionPendingChanges, record.Key); err != nil {
				reporting.Report(ctx, fmt.Errorf("failed to delete unreadable pending change: %w", err), map[string]string{
					"key": record.Key,
				})
			}
			continue
		}
		changes = append(changes, change)
	}
	sortChanges(changes)

	return &Queue{
		store:       s,
		fetcher:     fetcher,
		baseURL:     baseURL,
		nowFunc:     nowFunc,
		online:      online,
		syncPending: len(changes) > 0,
		changes:     changes,
	}, nil
}

func sortChanges(changes []domain.PendingChange) {
	slices.SortStableFunc(changes, func(a, b domain.PendingChange) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// deckID returns the id field of the deck in data
func deckID(data json.RawMessage) (string, error) {
	var deck struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(data, &deck); err != nil {
		return "", fmt.Errorf("%w: data is not a json object: %w", ErrInvalidChange, err)
	}

	switch id := deck.ID.(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}

	return "", fmt.Errorf("%w: data has no id", ErrInvalidChange)
}

func validateChange(changeType domain.ChangeType, data json.RawMessage) error {
	if !changeType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidChange, changeType)
	}
	if changeType == domain.ChangeCreate {
		if !json.Valid(data) {
			return fmt.Errorf("%w: data is not valid json", ErrInvalidChange)
		}
		return nil
	}
	_, err := deckID(data)
	return err
}

// endpoint returns the method and url that apply change upstream
func (q *Queue) endpoint(change domain.PendingChange) (string, string, error) {
	switch change.Type {
	case domain.ChangeCreate:
		return "POST", q.baseURL + "/api/deck", nil
	case domain.ChangeUpdate, domain.ChangeDelete:
		id, err := deckID(change.Data)
		if err != nil {
			return "", "", err
		}
		method := "PUT"
		if change.Type == domain.ChangeDelete {
			method = "DELETE"
		}
		return method, q.baseURL + "/api/deck/" + url.PathEscape(id), nil
	}
	return "", "", fmt.Errorf("%w: unknown type %q", ErrInvalidChange, change.Type)
}

// Enqueue persists a change and syncs right away when online
//
// A failed sync is logged, the change stays queued.
func (q *Queue) Enqueue(ctx context.Context, changeType domain.ChangeType, data json.RawMessage) (domain.PendingChange, error) {
	if err := validateChange(changeType, data); err != nil {
		return domain.PendingChange{}, err
	}

	change := domain.PendingChange{
		ID:        uuid.NewString(),
		Type:      changeType,
		Data:      data,
		Timestamp: q.nowFunc(),
	}

	value, err := json.Marshal(change)
	if err != nil {
		return domain.PendingChange{}, fmt.Errorf("failed to encode pending change: %w", err)
	}

	err = q.store.Put(ctx, store.PartitionPendingChanges, store.Record{
		Key:   change.ID,
		Value: value,
	})
	if err != nil {
		return domain.PendingChange{}, fmt.Errorf("failed to persist pending change: %w", err)
	}

	q.lock.Lock()
	q.changes = append(q.changes, change)
	online := q.online
	q.lock.Unlock()

	if online {
		if _, err := q.Sync(ctx); err != nil {
			logging.FromContext(ctx).WarnContext(ctx, "Sync after enqueue failed", "error", err.Error())
		}
	}

	return change, nil
}

// SetOnline records the connectivity and syncs when coming back online
func (q *Queue) SetOnline(ctx context.Context, online bool) {
	q.lock.Lock()
	cameOnline := online && !q.online
	q.online = online
	q.lock.Unlock()

	if !cameOnline {
		return
	}

	if _, err := q.Sync(ctx); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Sync after coming online failed", "error", err.Error())
	}
}

// Sync sends the queued changes upstream in order
//
// Each change is removed once the upstream accepts it. The first failure
// stops the sync and keeps the rest of the queue. Returns the number of
// changes synced.
func (q *Queue) Sync(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)

	q.syncLock.Lock()
	defer q.syncLock.Unlock()

	q.lock.Lock()
	if !q.online || len(q.changes) == 0 {
		q.lock.Unlock()
		return 0, nil
	}
	changes := slices.Clone(q.changes)
	q.syncPending = true
	q.lock.Unlock()

	defer func() {
		q.lock.Lock()
		q.syncPending = false
		q.lock.Unlock()
	}()

	synced := 0
	for _, change := range changes {
		method, changeURL, err := q.endpoint(change)
		if err != nil {
			return synced, fmt.Errorf("failed to build request for change %s: %w", change.ID, err)
		}

		_, err = q.fetcher.Fetch(ctx, changeURL, domain.Request{
			Method: method,
			Body:   change.Data,
		})
		if err != nil {
			logger.WarnContext(ctx, "Sync failed, will retry", "changeId", change.ID, "error", err.Error())
			return synced, fmt.Errorf("failed to sync change %s: %w", change.ID, err)
		}

		if err := q.store.Delete(ctx, store.PartitionPendingChanges, change.ID); err != nil {
			err = fmt.Errorf("failed to delete synced change %s: %w", change.ID, err)
			reporting.Report(ctx, err)
			return synced, err
		}

		q.lock.Lock()
		q.changes = slices.DeleteFunc(q.changes, func(c domain.PendingChange) bool {
			return c.ID == change.ID
		})
		q.lock.Unlock()

		synced++
	}

	logger.InfoContext(ctx, "Changes synchronized with upstream", "count", synced)

	return synced, nil
}

func (q *Queue) Status() Status {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.online {
		return StatusOnline
	}
	if len(q.changes) > 0 {
		return StatusOfflineWithChanges
	}
	return StatusOffline
}

// Pending returns the queued changes, oldest first
func (q *Queue) Pending() []domain.PendingChange {
	q.lock.Lock()
	defer q.lock.Unlock()

	return slices.Clone(q.changes)
}

func (q *Queue) SyncPending() bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.syncPending
}
