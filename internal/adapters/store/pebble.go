package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// Pebble stores records in an embedded LSM tree under "partition\x00key"
type Pebble struct {
	db *pebble.DB
}

func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleValue struct {
	Value     json.RawMessage `json:"v"`
	ExpiresAt time.Time       `json:"e,omitzero"`
}

func pebbleKey(partition string, key string) []byte {
	return append(append([]byte(partition), 0), key...)
}

func pebbleBounds(partition string) ([]byte, []byte) {
	return append([]byte(partition), 0), append([]byte(partition), 1)
}

func decodePebbleRecord(key string, raw []byte) (Record, error) {
	var stored pebbleValue
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record %s: %w", key, err)
	}
	return Record{
		Key:       key,
		Value:     stored.Value,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// iterate calls fn for every record in the partition, in key order
func (p *Pebble) iterate(partition string, fn func(record Record) error) error {
	lower, upper := pebbleBounds(partition)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(lower):])
		record, err := decodePebbleRecord(key, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *Pebble) Get(ctx context.Context, partition string, key string) (Record, error) {
	if err := checkPartition(partition); err != nil {
		return Record{}, err
	}

	raw, closer, err := p.db.Get(pebbleKey(partition, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	defer closer.Close()

	return decodePebbleRecord(key, raw)
}

func (p *Pebble) Put(ctx context.Context, partition string, record Record) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	raw, err := json.Marshal(pebbleValue{
		Value:     record.Value,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := p.db.Set(pebbleKey(partition, record.Key), raw, pebble.Sync); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (p *Pebble) Delete(ctx context.Context, partition string, key string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	if err := p.db.Delete(pebbleKey(partition, key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (p *Pebble) List(ctx context.Context, partition string) ([]Record, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}

	records := []Record{}
	err := p.iterate(partition, func(record Record) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func (p *Pebble) Clear(ctx context.Context, partition string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	lower, upper := pebbleBounds(partition)
	if err := p.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return fmt.Errorf("failed to clear partition: %w", err)
	}
	return nil
}

func (p *Pebble) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	if err := checkPartition(partition); err != nil {
		return 0, err
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	deleted := 0
	err := p.iterate(partition, func(record Record) error {
		if !record.expiredAt(now) {
			return nil
		}
		deleted++
		return batch.Delete(pebbleKey(partition, record.Key), nil)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find expired records: %w", err)
	}

	if deleted == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	return deleted, nil
}

var _ Store = (*Pebble)(nil)
