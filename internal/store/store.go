package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound key 不存在
var ErrNotFound = errors.New("store: key not found")

// UpdateFunc 读-改-写回调；exists=false 时 cur 为空。返回 ErrAbort 表示不写回。
type UpdateFunc func(cur []byte, exists bool) ([]byte, error)

var ErrAbort = errors.New("store: update aborted")

// KV 共享键值存储，做市状态和深度/报价快照都放这里
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// SetNX 只在 key 不存在时写入，返回是否写入
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	// Update 对单个 key 原子地读-改-写，返回最终写入的值
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// 键名
func MMStateKey(eventID string) string { return "mm:state:" + eventID }

func DepthSnapshotKey(eventID string) string { return "snap:depth:" + eventID }

func PricingSnapshotKey(eventID string) string { return "snap:pricing:" + eventID }
