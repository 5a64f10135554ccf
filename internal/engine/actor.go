package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"predex.com/internal/matching"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
	"predex.com/pkg/xerr"
)

type ActorConfig struct {
	MailboxSize int `mapstructure:"mailboxSize"` // mailbox 容量
	BatchMax    int `mapstructure:"batchMax"`    // 一次最多处理多少条
}

// EventActor 单个事件订单薄的唯一持有者
type EventActor struct {
	eventID string
	book    OrderBook
	in      chan Command
	out     EventSink
	cfg     ActorConfig
	now     func() time.Time

	seq uint64

	mailboxFull uint64
}

func NewEventActor(eventID string, book OrderBook, out EventSink, cfg ActorConfig) *EventActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	return &EventActor{
		eventID: eventID,
		book:    book,
		in:      make(chan Command, cfg.MailboxSize),
		out:     out,
		cfg:     cfg,
		now:     time.Now,
	}
}

// TryEnqueue chan 满了直接走 default，用来限制单个事件的积压
func (a *EventActor) TryEnqueue(cmd Command) error {
	select {
	case a.in <- cmd:
		return nil
	default:
		atomic.AddUint64(&a.mailboxFull, 1)
		metrics.MailboxFullTotal.Inc()
		return ErrEngineBusy
	}
}

func (a *EventActor) MailboxFull() uint64 { return atomic.LoadUint64(&a.mailboxFull) }

func (a *EventActor) Run(ctx context.Context) {
	ctx = logger.WithEventID(ctx, a.eventID)
	// 复用 batch slice，避免每轮分配
	batch := make([]Command, 0, a.cfg.BatchMax)
	for {
		// 先阻塞拿 1 条，再尽量多拿几条（不阻塞）
		select {
		case <-ctx.Done():
			return
		case first := <-a.in:
			batch = append(batch[:0], first)
		}
	drain:
		for len(batch) < a.cfg.BatchMax {
			select {
			case cmd := <-a.in:
				batch = append(batch, cmd)
			default:
				break drain
			}
		}
		for i := range batch {
			a.handle(ctx, batch[i])
			batch[i] = Command{}
		}
	}
}

func (a *EventActor) handle(ctx context.Context, cmd Command) {
	var rep Reply
	defer func() {
		// 单条命令 panic 不拖垮整个事件
		if r := recover(); r != nil {
			metrics.GoroutinePanics.WithLabelValues("engine.actor").Inc()
			logger.Error(ctx, "engine command panic",
				zap.String("req_id", cmd.ReqID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			rep = Reply{Err: xerr.New(xerr.Internal, fmt.Sprint(r))}
		}
		if cmd.reply != nil {
			cmd.reply <- rep
		}
	}()

	switch cmd.Type {
	case CmdSubmit:
		res, err := a.book.Add(cmd.Order, cmd.Opts...)
		if err != nil {
			rep.Err = err
			return
		}
		rep.Result = res
		a.emit(ctx, cmd.ReqID, res.Trades)
	case CmdCancel:
		rep.Cancelled = a.book.Cancel(cmd.CancelOrderID)
		if rep.Cancelled {
			a.emit(ctx, cmd.ReqID, nil)
		}
	case CmdDepth:
		rep.Depth = a.book.Snapshot()
	default:
		rep.Err = ErrBadCommand
	}
}

// emit 每次改动订单薄后发一条事件：成交 + 改动后的深度
func (a *EventActor) emit(ctx context.Context, reqID string, trades []matching.Trade) {
	a.seq++
	ev := Event{
		EventID: a.eventID,
		Seq:     a.seq,
		ReqID:   reqID,
		Trades:  trades,
		Depth:   a.book.Snapshot(),
		At:      a.now(),
	}
	if !a.out.TryPublish(ev) {
		logger.Warn(ctx, "engine event dropped, bus full",
			zap.Uint64("seq", ev.Seq),
			zap.Int("trades", len(trades)),
		)
	}
}
