package bus

import (
	"sync"

	"predex.com/pkg/metrics"
)

// sink 单个订阅者的出口，满了就丢（at-most-once）。
// 投递出去的 trade 会给随后的 depth 预留一格，所以订阅者不会只收到 trade 收不到 depth。
type sink struct {
	mu     sync.Mutex
	ch     chan Message
	owed   int // 已投递、还没等到 depth 的 trade 数
	closed bool
}

func newSink(size int) *sink {
	return &sink{ch: make(chan Message, size)}
}

// offer 不阻塞；始终保持空位 >= owed
func (s *sink) offer(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	need := s.owed + 1
	switch m.Channel {
	case ChannelTrade:
		need = s.owed + 2
	case ChannelDepth:
		need = max(s.owed, 1)
	}
	if cap(s.ch)-len(s.ch) < need {
		metrics.RelayErrors.WithLabelValues(m.Channel, "subscriber_full").Inc()
		return false
	}
	s.ch <- m
	switch m.Channel {
	case ChannelTrade:
		s.owed++
	case ChannelDepth:
		if s.owed > 0 {
			s.owed--
		}
	}
	return true
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
