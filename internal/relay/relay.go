package relay

import (
	"context"
	"errors"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"predex.com/internal/bus"
	"predex.com/internal/engine"
	"predex.com/internal/marketmaker"
	"predex.com/internal/matching"
	"predex.com/internal/store"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
)

// 频道 payload
type TradeMsg struct {
	EventID string           `json:"eventId"`
	Trades  []matching.Trade `json:"trades"`
}

type DepthMsg struct {
	EventID string         `json:"eventId"`
	Depth   matching.Depth `json:"depth"`
}

// PricingReset pricing 频道上的墓碑：做市被 reset，网关丢掉缓存的报价
type PricingReset struct {
	EventID string `json:"eventId"`
	Reset   bool   `json:"reset"`
}

// Pricer 按成交推价
type Pricer interface {
	ApplyTrades(ctx context.Context, eventID string, trades []matching.Trade) (marketmaker.State, error)
}

type Config struct {
	QuoteQueue int `mapstructure:"quoteQueue"`
}

// Relay 消费 engine 事件：先 trade 后 depth 发到共享频道并落快照；成交再交给做市推价
type Relay struct {
	events <-chan engine.Event
	broker bus.Broker
	kv     store.KV
	pricer Pricer
	quotes chan engine.Event
}

func New(events <-chan engine.Event, broker bus.Broker, kv store.KV, pricer Pricer, cfg Config) *Relay {
	if cfg.QuoteQueue <= 0 {
		cfg.QuoteQueue = 4096
	}
	return &Relay{
		events: events,
		broker: broker,
		kv:     kv,
		pricer: pricer,
		quotes: make(chan engine.Event, cfg.QuoteQueue),
	}
}

// Run 阻塞到 ctx 结束或 engine 事件流关闭
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(r.quotes)
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-r.events:
				if !ok {
					return nil
				}
				r.handle(ctx, ev)
			}
		}
	})
	g.Go(func() error {
		for ev := range r.quotes {
			r.reprice(ctx, ev)
		}
		return nil
	})
	return g.Wait()
}

func (r *Relay) handle(ctx context.Context, ev engine.Event) {
	ctx = logger.WithEventID(ctx, ev.EventID)
	// 同一 goroutine 里先 trade 后 depth，顺序不会乱
	if len(ev.Trades) > 0 {
		r.publish(ctx, bus.ChannelTrade, TradeMsg{EventID: ev.EventID, Trades: ev.Trades}, "")
	}
	r.publish(ctx, bus.ChannelDepth, DepthMsg{EventID: ev.EventID, Depth: ev.Depth}, store.DepthSnapshotKey(ev.EventID))

	if len(ev.Trades) > 0 && r.pricer != nil {
		select {
		case r.quotes <- ev:
		case <-ctx.Done():
		}
	}
}

func (r *Relay) reprice(ctx context.Context, ev engine.Event) {
	ctx = logger.WithEventID(ctx, ev.EventID)
	st, err := r.pricer.ApplyTrades(ctx, ev.EventID, ev.Trades)
	if err != nil {
		// 做市状态暂时不可用，报价保持旧值
		metrics.RelayErrors.WithLabelValues(bus.ChannelPricing, "reprice").Inc()
		logger.Warn(ctx, "reprice failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}
	r.PublishQuote(ctx, st.Quote())
}

// PublishQuote seed / reprice 后推 pricing 并落快照
func (r *Relay) PublishQuote(ctx context.Context, q marketmaker.Quote) {
	r.publish(ctx, bus.ChannelPricing, q, store.PricingSnapshotKey(q.EventID))
}

// ForgetQuote 做市状态被 reset 后删掉旧快照，并通知网关清缓存
func (r *Relay) ForgetQuote(ctx context.Context, eventID string) {
	ctx = logger.WithEventID(ctx, eventID)
	if err := r.kv.Del(ctx, store.PricingSnapshotKey(eventID)); err != nil {
		metrics.RelayErrors.WithLabelValues(bus.ChannelPricing, "persist").Inc()
		logger.Warn(ctx, "drop pricing snapshot failed", zap.Error(err))
	}
	r.publish(ctx, bus.ChannelPricing, PricingReset{EventID: eventID, Reset: true}, "")
}

func (r *Relay) publish(ctx context.Context, channel string, v any, snapKey string) {
	payload, err := json.Marshal(v)
	if err != nil {
		metrics.RelayErrors.WithLabelValues(channel, "marshal").Inc()
		logger.Error(ctx, "relay marshal failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if snapKey != "" {
		// 快照先写，再推送
		if err := r.kv.Set(ctx, snapKey, payload, 0); err != nil && !errors.Is(err, context.Canceled) {
			metrics.RelayErrors.WithLabelValues(channel, "persist").Inc()
			logger.Warn(ctx, "relay persist snapshot failed", zap.String("key", snapKey), zap.Error(err))
		}
	}
	if err := r.broker.Publish(ctx, channel, payload); err != nil {
		metrics.RelayErrors.WithLabelValues(channel, "publish").Inc()
		logger.Warn(ctx, "relay publish failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	metrics.RelayPublished.WithLabelValues(channel).Inc()
}
