package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memEntry struct {
	val []byte
	exp time.Time // 零值表示不过期
}

// MemStore 单进程用的 KV，一把锁保证 Update 原子
type MemStore struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]memEntry, 256), now: time.Now}
}

func (s *MemStore) getLocked(key string) ([]byte, bool) {
	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && !s.now().Before(e.exp) {
		delete(s.m, key)
		return nil, false
	}
	return e.val, true
}

func (s *MemStore) setLocked(key string, val []byte, ttl time.Duration) {
	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = s.now().Add(ttl)
	}
	s.m[key] = e
}

func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.getLocked(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.setLocked(key, val, ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) SetNX(_ context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(key); ok {
		return false, nil
	}
	s.setLocked(key, val, ttl)
	return true, nil
}

func (s *MemStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.getLocked(key)
	next, err := fn(append([]byte(nil), cur...), ok)
	if err != nil {
		if errors.Is(err, ErrAbort) {
			return cur, nil
		}
		return nil, err
	}
	// Update 保留原有过期时间
	e := s.m[key]
	e.val = append([]byte(nil), next...)
	s.m[key] = e
	return next, nil
}

func (s *MemStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}
