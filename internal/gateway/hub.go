package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"predex.com/internal/bus"
	"predex.com/internal/store"
	"predex.com/pkg/logger"
)

// snapshot 每个 event 最近一次 depth / pricing 的预编码帧
type snapshot struct {
	depth   []byte
	pricing []byte
	// 已完整查过一次存储，缺的就是存储里也没有
	hydrated bool
}

// Hub eventId -> sessions，并缓存最新快照供新连接首帧
type Hub struct {
	kv store.KV
	sf singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	byEvent  map[string]map[*Session]struct{}
	cache    map[string]*snapshot
}

func NewHub(kv store.KV) *Hub {
	return &Hub{
		kv:       kv,
		sessions: make(map[string]*Session),
		byEvent:  make(map[string]map[*Session]struct{}),
		cache:    make(map[string]*snapshot),
	}
}

// Session 按 id 查找
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Subscribers 某个 event 上的 OPEN 会话数
func (h *Hub) Subscribers(eventID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byEvent[eventID])
}

// hydrate 缓存缺 depth 或 pricing 时从 KV 补，同一 event 并发只打一次存储
func (h *Hub) hydrate(ctx context.Context, eventID string) {
	h.mu.Lock()
	cur, ok := h.cache[eventID]
	full := ok && (cur.hydrated || cur.depth != nil && cur.pricing != nil)
	h.mu.Unlock()
	if full || h.kv == nil {
		return
	}

	_, _, _ = h.sf.Do(eventID, func() (any, error) {
		snap := &snapshot{}
		complete := true
		if b, err := h.kv.Get(ctx, store.DepthSnapshotKey(eventID)); err == nil {
			snap.depth = frame(bus.ChannelDepth, b)
		} else if !errors.Is(err, store.ErrNotFound) {
			complete = false
			logger.Warn(ctx, "hydrate depth snapshot failed", zap.String("eventId", eventID), zap.Error(err))
		}
		if b, err := h.kv.Get(ctx, store.PricingSnapshotKey(eventID)); err == nil {
			snap.pricing = frame(bus.ChannelPricing, b)
		} else if !errors.Is(err, store.ErrNotFound) {
			complete = false
			logger.Warn(ctx, "hydrate pricing snapshot failed", zap.String("eventId", eventID), zap.Error(err))
		}

		snap.hydrated = complete
		h.mu.Lock()
		cur, ok := h.cache[eventID]
		if !ok {
			// 存储失败时不缓存“无快照”，下个连接还会再试
			if complete || snap.depth != nil || snap.pricing != nil {
				h.cache[eventID] = snap
			}
		} else {
			// 期间已有实时推送，只补缺的
			if cur.depth == nil {
				cur.depth = snap.depth
			}
			if cur.pricing == nil {
				cur.pricing = snap.pricing
			}
			cur.hydrated = cur.hydrated || complete
		}
		h.mu.Unlock()

		if complete {
			HydrateTotal.WithLabelValues("ok").Inc()
		} else {
			HydrateTotal.WithLabelValues("error").Inc()
		}
		return nil, nil
	})
}

// open 注册会话并在同一把锁内入队快照，保证快照不会排在更新的实时消息之后
func (h *Hub) open(s *Session) bool {
	h.mu.Lock()
	if s.closed.Load() {
		h.mu.Unlock()
		return false
	}
	s.release = h.remove
	h.sessions[s.ID] = s
	set, ok := h.byEvent[s.EventID]
	if !ok {
		set = make(map[*Session]struct{})
		h.byEvent[s.EventID] = set
	}
	set[s] = struct{}{}
	s.setState(StateOpen)

	fine := true
	if snap := h.cache[s.EventID]; snap != nil {
		if snap.depth != nil {
			fine = fine && s.enqueue(snap.depth)
		}
		if snap.pricing != nil {
			fine = fine && s.enqueue(snap.pricing)
		}
	}
	h.mu.Unlock()

	onOpen()
	if !fine {
		s.Close(websocket.ClosePolicyViolation, "pending_bytes_limit")
		return false
	}
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.ID]; ok && cur == s {
		delete(h.sessions, s.ID)
	}
	if set, ok := h.byEvent[s.EventID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byEvent, s.EventID)
		}
	}
}

// Dispatch 一条总线消息：更新快照缓存并只转发给绑定该 event 的会话
func (h *Hub) Dispatch(ctx context.Context, m bus.Message) {
	head, err := envelopeOf(m.Payload)
	if err != nil || head.EventID == "" {
		DroppedTotal.WithLabelValues("bad_envelope").Inc()
		logger.Warn(ctx, "drop bus message without eventId", zap.String("channel", m.Channel), zap.Error(err))
		return
	}
	eventID := head.EventID
	if m.Channel == bus.ChannelPricing && head.Reset {
		// 做市 reset：存储里的快照已删，缓存也清掉，不下发给客户端
		h.mu.Lock()
		if snap, ok := h.cache[eventID]; ok {
			snap.pricing = nil
		}
		h.mu.Unlock()
		return
	}
	msg := frame(m.Channel, m.Payload)

	var slow []*Session
	h.mu.Lock()
	switch m.Channel {
	case bus.ChannelDepth, bus.ChannelPricing:
		snap, ok := h.cache[eventID]
		if !ok {
			snap = &snapshot{}
			h.cache[eventID] = snap
		}
		if m.Channel == bus.ChannelDepth {
			snap.depth = msg
		} else {
			snap.pricing = msg
		}
	}
	for s := range h.byEvent[eventID] {
		if s.State() != StateOpen {
			continue
		}
		if !s.enqueue(msg) {
			slow = append(slow, s)
		}
	}
	n := len(h.byEvent[eventID])
	h.mu.Unlock()

	if n > 0 {
		MsgsOutTotal.WithLabelValues(m.Channel).Add(float64(n - len(slow)))
	}
	for _, s := range slow {
		logger.Warn(ctx, "kick slow ws session",
			zap.String("session", s.ID),
			zap.String("eventId", s.EventID),
			zap.Int("pending", s.Pending()),
		)
		s.Close(websocket.ClosePolicyViolation, "pending_bytes_limit")
	}
}

// CloseAll 进程退出时关闭所有会话
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Close(code, reason)
	}
}
