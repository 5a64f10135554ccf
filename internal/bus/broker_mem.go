package bus

import (
	"context"
	"sync"
)

// MemBroker 单进程 fanout，慢订阅者直接丢（at-most-once）
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*sink]struct{}
	bufLen int
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[string]map[*sink]struct{}), bufLen: 4096}
}

func (b *MemBroker) Publish(_ context.Context, channel string, payload []byte) error {
	msg := Message{Channel: channel, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[channel] {
		s.offer(msg)
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, channels []string) (<-chan Message, error) {
	s := newSink(b.bufLen)
	b.mu.Lock()
	for _, c := range channels {
		set := b.subs[c]
		if set == nil {
			set = make(map[*sink]struct{})
			b.subs[c] = set
		}
		set[s] = struct{}{}
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, c := range channels {
			delete(b.subs[c], s)
		}
		b.mu.Unlock()
		s.close()
	}()
	return s.ch, nil
}

func (b *MemBroker) Close() error { return nil }

// Subscribers 某个频道当前的订阅数
func (b *MemBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
