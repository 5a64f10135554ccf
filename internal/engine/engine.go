package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"predex.com/internal/matching"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
	"predex.com/pkg/safe"
)

// BookFactory 按事件创建订单薄
type BookFactory func(eventID string) (OrderBook, error)

type Config struct {
	EventBusSize int         `mapstructure:"busSize"`
	MaxLevels    int         `mapstructure:"maxLevels"`
	Actor        ActorConfig `mapstructure:",squash"`
	BookFactory  BookFactory `mapstructure:"-"`
}

// Engine 事件 id -> actor 的注册表，每个事件一个持有者
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	actors map[string]*EventActor
	bus    *ChanBus
	cfg    Config

	stopped atomic.Bool
}

func NewEngine(cfg Config) *Engine {
	if cfg.EventBusSize <= 0 {
		cfg.EventBusSize = 1 << 16
	}
	if cfg.BookFactory == nil {
		maxLevels := cfg.MaxLevels
		cfg.BookFactory = func(eventID string) (OrderBook, error) {
			return matching.NewBook(eventID, matching.WithMaxLevels(maxLevels)), nil
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*EventActor, 64),
		bus:    NewChanBus(cfg.EventBusSize),
		cfg:    cfg,
	}
}

// Events relay 消费的出站事件
func (e *Engine) Events() <-chan Event { return e.bus.C() }

func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

func (e *Engine) lookup(eventID string) *EventActor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actors[eventID]
}

func (e *Engine) getOrCreateActor(eventID string) (*EventActor, error) {
	if eventID == "" {
		return nil, ErrNoEvent
	}
	// 1) 快路径：读锁查
	if a := e.lookup(eventID); a != nil {
		return a, nil
	}

	// 2) 慢路径：写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if a := e.actors[eventID]; a != nil {
		return a, nil
	}
	if e.stopped.Load() {
		return nil, ErrStopped
	}
	book, err := e.cfg.BookFactory(eventID)
	if err != nil {
		return nil, err
	}
	a := NewEventActor(eventID, book, e.bus, e.cfg.Actor)
	e.actors[eventID] = a
	metrics.ActiveBooks.Inc()
	logger.Info(logger.WithEventID(e.ctx, eventID), "event book created")

	e.wg.Add(1)
	safe.GoCtx(e.ctx, "engine.actor", func(ctx context.Context) {
		defer e.wg.Done()
		a.Run(ctx)
	})
	return a, nil
}

func (e *Engine) call(ctx context.Context, a *EventActor, cmd Command) (Reply, error) {
	cmd.reply = make(chan Reply, 1)
	if err := a.TryEnqueue(cmd); err != nil {
		logger.Warn(ctx, "engine mailbox full", zap.String("event_id", a.eventID))
		return Reply{}, err
	}
	select {
	case rep := <-cmd.reply:
		return rep, rep.Err
	case <-ctx.Done():
		// 命令已入队，actor 仍会执行；reply 有缓冲不会阻塞 actor
		return Reply{}, ctx.Err()
	case <-e.ctx.Done():
		return Reply{}, ErrStopped
	}
}

// Submit 下单，同步拿到撮合结果
func (e *Engine) Submit(ctx context.Context, eventID, reqID string, req matching.OrderRequest, opts ...matching.AddOption) (matching.Result, error) {
	a, err := e.getOrCreateActor(eventID)
	if err != nil {
		return matching.Result{}, err
	}
	rep, err := e.call(ctx, a, Command{Type: CmdSubmit, ReqID: reqID, Order: req, Opts: opts})
	return rep.Result, err
}

// Cancel 订单不存在或已成交返回 false
func (e *Engine) Cancel(ctx context.Context, eventID, reqID, orderID string) (bool, error) {
	if eventID == "" {
		return false, ErrNoEvent
	}
	a := e.lookup(eventID)
	if a == nil {
		return false, nil
	}
	rep, err := e.call(ctx, a, Command{Type: CmdCancel, ReqID: reqID, CancelOrderID: orderID})
	return rep.Cancelled, err
}

// Depth 没有订单薄的事件返回空深度，不会创建 actor
func (e *Engine) Depth(ctx context.Context, eventID string) (matching.Depth, error) {
	if eventID == "" {
		return matching.Depth{}, ErrNoEvent
	}
	a := e.lookup(eventID)
	if a == nil {
		return matching.Depth{Bids: []matching.DepthRow{}, Asks: []matching.DepthRow{}}, nil
	}
	rep, err := e.call(ctx, a, Command{Type: CmdDepth})
	return rep.Depth, err
}

type Stats struct {
	Books         int    `json:"books"`
	MailboxFull   uint64 `json:"mailboxFull"`
	EventsDropped uint64 `json:"eventsDropped"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{Books: len(e.actors), EventsDropped: e.bus.Dropped()}
	for _, a := range e.actors {
		s.MailboxFull += a.MailboxFull()
	}
	return s
}

// Stop 停掉所有 actor 并等待退出
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped.Swap(true) {
		e.mu.Unlock()
		return
	}
	n := len(e.actors)
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
	metrics.ActiveBooks.Sub(float64(n))
}
