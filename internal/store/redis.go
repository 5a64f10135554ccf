package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"predex.com/pkg/metrics"
)

// 乐观锁冲突重试次数
const maxTxRetries = 64

type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func observe(cmd string, start time.Time, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.StoreCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}

func (s *RedisStore) Get(ctx context.Context, key string) (b []byte, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	b, err = s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("set", start, err) }(time.Now())
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (ok bool, err error) {
	defer func(start time.Time) { observe("setnx", start, err) }(time.Now())
	return s.rdb.SetNX(ctx, key, val, ttl).Result()
}

// Update WATCH + MULTI/EXEC，key 被并发改动时重试
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (out []byte, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists, err = false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(cur, exists)
		if err != nil {
			if errors.Is(err, ErrAbort) {
				out = cur
				return nil
			}
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return out, err
		}
		// 冲突退避，错开并发写
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int64N(int64(i+1)*int64(time.Millisecond)) + 1)):
		}
	}
	return nil, fmt.Errorf("update %s: %w", key, err)
}

func (s *RedisStore) Del(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe("del", start, err) }(time.Now())
	return s.rdb.Del(ctx, key).Err()
}
