package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrUnavailable      = errors.New("store unavailable")
	ErrUnknownPartition = errors.New("unknown partition")
)

const (
	PartitionCards          = "cards"
	PartitionDecks          = "decks"
	PartitionCollections    = "collections"
	PartitionAPICache       = "api_cache"
	PartitionPendingChanges = "pending_changes"
)

var partitions = []string{
	PartitionCards,
	PartitionDecks,
	PartitionCollections,
	PartitionAPICache,
	PartitionPendingChanges,
}

func Partitions() []string {
	return append([]string(nil), partitions...)
}

func checkPartition(partition string) error {
	for _, p := range partitions {
		if p == partition {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPartition, partition)
}

type Record struct {
	Key   string
	Value json.RawMessage
	// Zero value means the record never expires
	ExpiresAt time.Time
}

func (r Record) expiredAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store is durable key/value persistence scoped to named partitions
type Store interface {
	// Returns ErrNotFound if there is no record for key in the partition
	Get(ctx context.Context, partition string, key string) (Record, error)
	// Insert or replace the record with the same key
	Put(ctx context.Context, partition string, record Record) error
	// Deleting a missing key is not an error
	Delete(ctx context.Context, partition string, key string) error
	List(ctx context.Context, partition string) ([]Record, error)
	Clear(ctx context.Context, partition string) error
	// Remove every record in the partition that expired at or before now
	DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error)
}
