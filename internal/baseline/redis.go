package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

var _ service.BaselineStore = (*RedisStore)(nil)

const (
	defaultKeyPrefix   = "sentinel:"
	defaultMaxAttempts = 5
)

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps baselines in Redis so several engine processes can share
// them. Writers in one process are serialized by a KeyedMutex; writers in
// different processes are reconciled with WATCH and retried on conflict.
type RedisStore struct {
	client      *redis.Client
	locks       *KeyedMutex
	prefix      string
	maxAttempts int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithMaxAttempts bounds the optimistic transaction retries per update.
func WithMaxAttempts(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewRedisStore creates a store on an existing client. The client lifecycle
// is managed by the caller.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:      client,
		locks:       NewKeyedMutex(),
		prefix:      defaultKeyPrefix,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) baselineKey(key string) string {
	return s.prefix + "baseline:" + key
}

func (s *RedisStore) totalKey(vendorKey string) string {
	return s.prefix + "vendor_total:" + vendorKey
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "baselines"
}

// Baseline implements service.BaselineLookup.
func (s *RedisStore) Baseline(ctx context.Context, vendorKey, category string) (*model.VendorBaseline, error) {
	raw, err := s.client.Get(ctx, s.baselineKey(model.BaselineKey(vendorKey, category))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // absent baseline is a valid result
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var b model.VendorBaseline
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	return &b, nil
}

// UpdateBaseline implements service.BaselineUpdater. A conflicting write from
// another process aborts the transaction, which is then retried on fresh
// data. Exhausted retries are reported as common.ErrBusy.
func (s *RedisStore) UpdateBaseline(ctx context.Context, vendorKey, category string, amount float64, at time.Time) error {
	key := model.BaselineKey(vendorKey, category)
	unlock := s.locks.Lock(key)
	defer unlock()

	baselineKey := s.baselineKey(key)
	totalKey := s.totalKey(vendorKey)

	update := func(tx *redis.Tx) error {
		current := model.VendorBaseline{VendorKey: vendorKey, Category: category}
		raw, err := tx.Get(ctx, baselineKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("failed to decode baseline: %w", err)
			}
		}

		total, err := tx.Get(ctx, totalKey).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		next := current.Observe(amount, at)
		next.VendorTotal = total + 1
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode baseline: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, baselineKey, encoded, 0)
			pipe.Incr(ctx, totalKey)
			pipe.SAdd(ctx, s.indexKey(), key)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.client.Watch(ctx, update, baselineKey, totalKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to update baseline %s: %w", key, err)
		}
	}
	return fmt.Errorf("%w: baseline %s changed concurrently %d times", common.ErrBusy, key, s.maxAttempts)
}

// ListBaselines returns every baseline ordered by vendor key and category.
func (s *RedisStore) ListBaselines(ctx context.Context) ([]model.VendorBaseline, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	if len(keys) == 0 {
		return []model.VendorBaseline{}, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.baselineKey(k)
	}
	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read baselines: %w", err)
	}

	out := make([]model.VendorBaseline, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var b model.VendorBaseline
		if err := json.Unmarshal([]byte(str), &b); err != nil {
			return nil, fmt.Errorf("failed to decode baseline %s: %w", keys[i], err)
		}
		out = append(out, b)
	}

	sortBaselines(out)
	return out, nil
}
