package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"predex.com/pkg/auth"
	"predex.com/pkg/logger"
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Session 一条 ws 连接的类型化记录，hub 按 id 索引
type Session struct {
	ID       string
	EventID  string
	Identity auth.Identity

	ws        *websocket.Conn
	writeWait time.Duration
	release   func(*Session)

	state  atomic.Int32
	alive  atomic.Bool
	closed atomic.Bool

	closeCh chan struct{}
	notify  chan struct{}

	mu         sync.Mutex
	queue      [][]byte
	pending    int
	maxPending int
	kicked     bool
}

func newSession(ws *websocket.Conn, eventID string, maxPending int, writeWait time.Duration) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		EventID:    eventID,
		ws:         ws,
		writeWait:  writeWait,
		closeCh:    make(chan struct{}),
		notify:     make(chan struct{}, 1),
		maxPending: maxPending,
	}
	s.alive.Store(true)
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Done 关闭后可读
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// enqueue 不阻塞；积压超过 maxPending 返回 false，调用方负责踢掉
func (s *Session) enqueue(msg []byte) bool {
	if s.closed.Load() {
		return true
	}
	s.mu.Lock()
	if s.kicked {
		s.mu.Unlock()
		return false
	}
	if s.maxPending > 0 && s.pending+len(msg) > s.maxPending {
		s.kicked = true
		s.mu.Unlock()
		DroppedTotal.WithLabelValues("pending_bytes_limit").Inc()
		return false
	}
	s.queue = append(s.queue, msg)
	s.pending += len(msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// drain 取走整个队列，写协程批量发送
func (s *Session) drain() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	batch := s.queue
	s.queue = nil
	s.pending = 0
	return batch
}

// Pending 当前积压字节
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Close 只执行一次；code 为 0 时不发关闭帧直接断开
func (s *Session) Close(code int, reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	wasOpen := s.State() == StateOpen
	s.setState(StateClosed)
	close(s.closeCh)

	if s.ws != nil {
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
		}
		_ = s.ws.Close()
	}
	if s.release != nil {
		s.release(s)
	}
	if wasOpen {
		onClose(code, reason)
	}
	logger.Info(context.Background(), "ws session closed",
		zap.String("session", s.ID),
		zap.String("eventId", s.EventID),
		zap.String("uid", s.Identity.UserID),
		zap.Int("code", code),
		zap.String("reason", reason),
	)
}
