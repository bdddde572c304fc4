package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	partitions map[string]map[string]Record
	lock       sync.RWMutex
}

func NewMemoryStore() *memoryStore {
	stored := make(map[string]map[string]Record, len(partitions))
	for _, partition := range partitions {
		stored[partition] = make(map[string]Record)
	}
	return &memoryStore{
		partitions: stored,
	}
}

func (s *memoryStore) Get(ctx context.Context, partition string, key string) (Record, error) {
	if err := checkPartition(partition); err != nil {
		return Record{}, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	record, ok := s.partitions[partition][key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *memoryStore) Put(ctx context.Context, partition string, record Record) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.partitions[partition][record.Key] = cloneRecord(record)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, partition string, key string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.partitions[partition], key)
	return nil
}

func (s *memoryStore) List(ctx context.Context, partition string) ([]Record, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	records := make([]Record, 0, len(s.partitions[partition]))
	for _, record := range s.partitions[partition] {
		records = append(records, cloneRecord(record))
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.Key, b.Key)
	})
	return records, nil
}

func (s *memoryStore) Clear(ctx context.Context, partition string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.partitions[partition] = make(map[string]Record)
	return nil
}

func (s *memoryStore) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	if err := checkPartition(partition); err != nil {
		return 0, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	deleted := 0
	for key, record := range s.partitions[partition] {
		if record.expiredAt(now) {
			delete(s.partitions[partition], key)
			deleted++
		}
	}
	return deleted, nil
}

func cloneRecord(record Record) Record {
	return Record{
		Key:       record.Key,
		Value:     slices.Clone(record.Value),
		ExpiresAt: record.ExpiresAt,
	}
}

var _ Store = (*memoryStore)(nil)
