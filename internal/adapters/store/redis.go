package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "deckcache"

// Redis keeps each partition in a hash of key -> value, with expiry times in a
// sorted set next to it
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func valuesKey(partition string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, partition)
}

func expiryKey(partition string) string {
	return fmt.Sprintf("%s:%s:expiry", redisKeyPrefix, partition)
}

func (r *Redis) Get(ctx context.Context, partition string, key string) (Record, error) {
	if err := checkPartition(partition); err != nil {
		return Record{}, err
	}

	var valueCmd *redis.StringCmd
	var expiryCmd *redis.FloatCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		valueCmd = pipe.HGet(ctx, valuesKey(partition), key)
		expiryCmd = pipe.ZScore(ctx, expiryKey(partition), key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("failed to get record: %w", err)
	}

	value, err := valueCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read record value: %w", err)
	}

	record := Record{Key: key, Value: value}

	expiry, err := expiryCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return Record{}, fmt.Errorf("failed to read record expiry: %w", err)
	default:
		record.ExpiresAt = time.UnixMilli(int64(expiry))
	}

	return record, nil
}

func (r *Redis) Put(ctx context.Context, partition string, record Record) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, valuesKey(partition), record.Key, []byte(record.Value))
		if record.ExpiresAt.IsZero() {
			pipe.ZRem(ctx, expiryKey(partition), record.Key)
		} else {
			pipe.ZAdd(ctx, expiryKey(partition), redis.Z{
				Score:  float64(record.ExpiresAt.UnixMilli()),
				Member: record.Key,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, partition string, key string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, valuesKey(partition), key)
		pipe.ZRem(ctx, expiryKey(partition), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context, partition string) ([]Record, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}

	var valuesCmd *redis.MapStringStringCmd
	var expiryCmd *redis.ZSliceCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		valuesCmd = pipe.HGetAll(ctx, valuesKey(partition))
		expiryCmd = pipe.ZRangeWithScores(ctx, expiryKey(partition), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	expiries := make(map[string]time.Time)
	for _, z := range expiryCmd.Val() {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		expiries[member] = time.UnixMilli(int64(z.Score))
	}

	values := valuesCmd.Val()
	records := make([]Record, 0, len(values))
	for key, value := range values {
		records = append(records, Record{
			Key:       key,
			Value:     []byte(value),
			ExpiresAt: expiries[key],
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (r *Redis) Clear(ctx context.Context, partition string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}

	err := r.client.Del(ctx, valuesKey(partition), expiryKey(partition)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear partition: %w", err)
	}
	return nil
}

func (r *Redis) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	if err := checkPartition(partition); err != nil {
		return 0, err
	}

	expired, err := r.client.ZRangeByScore(ctx, expiryKey(partition), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find expired records: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	members := make([]any, len(expired))
	for i, key := range expired {
		members[i] = key
	}

	var deletedCmd *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deletedCmd = pipe.HDel(ctx, valuesKey(partition), expired...)
		pipe.ZRem(ctx, expiryKey(partition), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}

	return int(deletedCmd.Val()), nil
}

var _ Store = (*Redis)(nil)
