package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"predex.com/internal/bus"
	"predex.com/pkg/auth"
	"predex.com/pkg/logger"
	"predex.com/pkg/ratelimit"
)

type Config struct {
	PingInterval    time.Duration `mapstructure:"pingInterval"`
	PingJitter      time.Duration `mapstructure:"pingJitter"`
	WriteWait       time.Duration `mapstructure:"writeWait"`
	ReadLimit       int64         `mapstructure:"readLimit"`
	MaxPendingBytes int           `mapstructure:"maxPendingBytes"`
	MaxFlush        int           `mapstructure:"maxFlush"`
	InboundRate     float64       `mapstructure:"inboundRate"`
	InboundBurst    int           `mapstructure:"inboundBurst"`
	Cookie          string        `mapstructure:"cookie"`
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4 << 10
	}
	if c.MaxPendingBytes <= 0 {
		c.MaxPendingBytes = 1 << 20
	}
	if c.MaxFlush <= 0 {
		c.MaxFlush = 256 // 单次最多写多少条
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 10
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 20
	}
	if c.Cookie == "" {
		c.Cookie = DefaultCookie
	}
	return c
}

type Server struct {
	hub      *Hub
	verifier auth.Verifier
	limiter  *ratelimit.Store
	upgrader websocket.Upgrader
	cfg      Config
	ctx      context.Context
}

func NewServer(ctx context.Context, h *Hub, v auth.Verifier, cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		hub:      h,
		verifier: v,
		limiter:  ratelimit.NewStore(rate.Limit(cfg.InboundRate), cfg.InboundBurst, 10*time.Minute),
		cfg:      cfg,
		ctx:      ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteBufferPool: &writeBufPool,
			Subprotocols:    []string{bearerProtocol},
			// 鉴权靠 token，不校验 Origin；cookie 场景由前置 CORS 兜住
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP 先升级再鉴权，失败用应用关闭码告知客户端
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	token, src := extractCredential(r, s.cfg.Cookie)

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}
	sess := newSession(wsConn, eventID, s.cfg.MaxPendingBytes, s.cfg.WriteWait)
	sess.setState(StateAuthenticating)

	if eventID == "" {
		AuthFailTotal.WithLabelValues("missing_event").Inc()
		sess.Close(CloseBadRequest, "missing eventId")
		return
	}
	if token == "" {
		AuthFailTotal.WithLabelValues("missing_credential").Inc()
		sess.Close(CloseUnauthorized, "unauthorized")
		return
	}
	id, err := s.verifier.Verify(token)
	if err != nil {
		AuthFailTotal.WithLabelValues("invalid_credential").Inc()
		logger.Debug(r.Context(), "ws credential rejected", zap.String("source", string(src)), zap.Error(err))
		sess.Close(CloseUnauthorized, "unauthorized")
		return
	}
	sess.Identity = id
	sess.setState(StateAuthenticated)

	ctx := logger.WithEventID(s.ctx, eventID)
	s.hub.hydrate(ctx, eventID)
	if !s.hub.open(sess) {
		return
	}
	logger.Info(ctx, "ws session open",
		zap.String("session", sess.ID),
		zap.String("uid", id.UserID),
		zap.String("source", string(src)),
	)

	go s.writePump(sess)
	go s.readPump(sess)
}

func (s *Server) readPump(c *Session) {
	defer func() {
		s.limiter.Forget(c.ID)
		c.Close(websocket.CloseNormalClosure, "read_closed")
	}()

	pongWait := 2*s.cfg.PingInterval + s.cfg.WriteWait
	c.ws.SetReadLimit(s.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logger.Debug(s.ctx, "ws read timeout", zap.String("session", c.ID))
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed.Load() {
				logger.Debug(s.ctx, "ws read error", zap.String("session", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if !s.limiter.Allow(c.ID) {
			DroppedTotal.WithLabelValues("inbound_rate").Inc()
			continue
		}
		var msg ClientMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			logger.Warn(s.ctx, "ignore malformed ws message", zap.String("session", c.ID), zap.Error(err))
			continue
		}
		switch msg.Type {
		case "ping":
			if !c.enqueue(pongFrame) {
				c.Close(websocket.ClosePolicyViolation, "pending_bytes_limit")
				return
			}
		default:
			logger.Debug(s.ctx, "ignore ws message", zap.String("session", c.ID), zap.String("type", msg.Type))
		}
	}
}

func (s *Server) writePump(c *Session) {
	if s.cfg.PingJitter > 0 {
		t := time.NewTimer(rand.N(s.cfg.PingJitter))
		select {
		case <-t.C:
		case <-c.closeCh:
			t.Stop()
			return
		}
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.notify:
			for {
				batch := c.drain()
				if len(batch) == 0 {
					break
				}
				if err := s.write(c, batch); err != nil {
					logger.Debug(s.ctx, "ws write failed", zap.String("session", c.ID), zap.Error(err))
					c.Close(0, "write_error")
					return
				}
			}
		case <-ticker.C:
			// 上一次 ping 之后没收到 pong，直接断开
			if !c.alive.Swap(false) {
				PongTimeoutTotal.Inc()
				c.Close(0, "pong_timeout")
				return
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				c.Close(0, "ping_error")
				return
			}
			PingSentTotal.Inc()
		case <-c.closeCh:
			return
		case <-s.ctx.Done():
			c.Close(websocket.CloseGoingAway, "shutdown")
			return
		}
	}
}

// write 每条消息一帧，客户端按 JSON 逐条解析
func (s *Server) write(c *Session, batch [][]byte) error {
	start := time.Now()
	n := 0
	var err error
	for len(batch) > 0 && err == nil {
		chunk := batch
		if len(chunk) > s.cfg.MaxFlush {
			chunk = chunk[:s.cfg.MaxFlush]
		}
		batch = batch[len(chunk):]
		_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		for _, m := range chunk {
			if err = c.ws.WriteMessage(websocket.TextMessage, m); err != nil {
				break
			}
			n += len(m)
		}
		observeWrite(len(chunk), n, time.Since(start), err)
	}
	return err
}

// Run 进程级唯一的总线订阅，断开后退避重订
func (s *Server) Run(ctx context.Context, b bus.Broker) error {
	backoff := 100 * time.Millisecond
	for {
		msgs, err := b.Subscribe(ctx, bus.AllChannels)
		if err != nil {
			logger.Error(ctx, "gateway subscribe failed", zap.Error(err))
		} else {
			backoff = 100 * time.Millisecond
			for m := range msgs {
				s.hub.Dispatch(ctx, m)
			}
		}
		if ctx.Err() != nil {
			s.hub.CloseAll(websocket.CloseGoingAway, "shutdown")
			return nil
		}
		logger.Warn(ctx, "gateway subscription ended, resubscribing", zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			s.hub.CloseAll(websocket.CloseGoingAway, "shutdown")
			return nil
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}
