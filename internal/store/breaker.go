package store

import (
	"context"
	"errors"
	"time"

	"predex.com/pkg/ratelimit"
	"predex.com/pkg/xerr"
)

// Breaker 给 KV 包一层熔断，依赖挂掉时快速失败
type Breaker struct {
	next KV
	cbs  *ratelimit.Breakers
}

func WithBreaker(next KV, cbs *ratelimit.Breakers) *Breaker {
	return &Breaker{next: next, cbs: cbs}
}

func run[T any](b *Breaker, name string, fn func() (T, error)) (T, error) {
	var missing bool
	v, err := b.cbs.Get("store." + name).Execute(func() (any, error) {
		r, err := fn()
		// key 不存在是正常结果，不计入失败
		if errors.Is(err, ErrNotFound) {
			missing = true
			return r, nil
		}
		return r, err
	})
	var zero T
	if err != nil {
		if ratelimit.IsOpen(err) {
			return zero, xerr.Newf(xerr.StoreUnavailable, "store %s: %v", name, err)
		}
		return zero, err
	}
	if missing {
		return zero, ErrNotFound
	}
	return v.(T), nil
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	return run(b, "get", func() ([]byte, error) { return b.next.Get(ctx, key) })
}

func (b *Breaker) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_, err := run(b, "set", func() (struct{}, error) { return struct{}{}, b.next.Set(ctx, key, val, ttl) })
	return err
}

func (b *Breaker) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return run(b, "setnx", func() (bool, error) { return b.next.SetNX(ctx, key, val, ttl) })
}

func (b *Breaker) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	return run(b, "update", func() ([]byte, error) { return b.next.Update(ctx, key, fn) })
}

func (b *Breaker) Del(ctx context.Context, key string) error {
	_, err := run(b, "del", func() (struct{}, error) { return struct{}{}, b.next.Del(ctx, key) })
	return err
}
