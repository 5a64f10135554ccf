package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker 基于 redis pub/sub
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channels []string) (<-chan Message, error) {
	ps := b.rdb.Subscribe(ctx, channels...)
	// 等订阅确认，保证返回后不会漏掉之后的消息
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %v: %w", channels, err)
	}

	out := newSink(8192)
	in := ps.Channel()
	go func() {
		defer out.close()
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				out.offer(Message{Channel: m.Channel, Payload: []byte(m.Payload)})
			}
		}
	}()
	return out.ch, nil
}

// Close 连接由 main 统一关闭
func (b *RedisBroker) Close() error { return nil }
