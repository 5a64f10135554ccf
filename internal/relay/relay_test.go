package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"predex.com/internal/bus"
	"predex.com/internal/engine"
	"predex.com/internal/marketmaker"
	"predex.com/internal/matching"
	"predex.com/internal/store"
)

type fixture struct {
	eng    *engine.Engine
	broker *bus.MemBroker
	kv     *store.MemStore
	mm     *marketmaker.Service
	relay  *Relay
	msgs   <-chan bus.Message
}

func newFixture(t *testing.T, pricer Pricer) *fixture {
	t.Helper()
	f := &fixture{
		eng:    engine.NewEngine(engine.Config{}),
		broker: bus.NewMemBroker(),
		kv:     store.NewMemStore(),
	}
	mm, err := marketmaker.New(f.kv, marketmaker.DefaultConfig())
	require.NoError(t, err)
	f.mm = mm
	if pricer == nil {
		pricer = mm
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := f.broker.Subscribe(ctx, bus.AllChannels)
	require.NoError(t, err)
	f.msgs = msgs

	f.relay = New(f.eng.Events(), f.broker, f.kv, pricer, Config{})
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		f.eng.Stop()
	})
	return f
}

func (f *fixture) next(t *testing.T) bus.Message {
	t.Helper()
	select {
	case m := <-f.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for bus message")
		return bus.Message{}
	}
}

func limit(id, user string, side matching.Side, price float64, qty int64) matching.OrderRequest {
	return matching.OrderRequest{ID: id, UserID: user, Side: side, Kind: matching.Limit, Price: price, Qty: qty}
}

func TestRelay_TradeThenDepthThenPricing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.Submit(ctx, "ev1", "r1", limit("n1", "maker", matching.SideNo, 6, 50))
	require.NoError(t, err)
	m := f.next(t)
	assert.Equal(t, bus.ChannelDepth, m.Channel, "resting order publishes depth only")

	_, err = f.eng.Submit(ctx, "ev1", "r2", limit("y1", "taker", matching.SideYes, 5, 30))
	require.NoError(t, err)

	m = f.next(t)
	require.Equal(t, bus.ChannelTrade, m.Channel)
	var tm TradeMsg
	require.NoError(t, json.Unmarshal(m.Payload, &tm))
	assert.Equal(t, "ev1", tm.EventID)
	require.Len(t, tm.Trades, 1)
	assert.Equal(t, int64(40), tm.Trades[0].Price)
	assert.Equal(t, int64(20), tm.Trades[0].MakerRemaining)

	m = f.next(t)
	require.Equal(t, bus.ChannelDepth, m.Channel)
	assert.JSONEq(t, `{"eventId":"ev1","depth":{"bids":[],"asks":[{"price":6,"qty":20}]}}`, string(m.Payload))

	m = f.next(t)
	require.Equal(t, bus.ChannelPricing, m.Channel)
	var q marketmaker.Quote
	require.NoError(t, json.Unmarshal(m.Payload, &q))
	assert.Equal(t, "ev1", q.EventID)
	// 30/10000*0.5 = 0.0015 -> 5.0015 -> 两位小数 5.00
	assert.Equal(t, 5.0, q.PriceYes)
	assert.Equal(t, int64(30), q.State.NetYesExposure)

	depthSnap, err := f.kv.Get(ctx, store.DepthSnapshotKey("ev1"))
	require.NoError(t, err)
	assert.Contains(t, string(depthSnap), `"qty":20`)
	require.Eventually(t, func() bool {
		_, err := f.kv.Get(ctx, store.PricingSnapshotKey("ev1"))
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

type failingPricer struct{}

func (failingPricer) ApplyTrades(context.Context, string, []matching.Trade) (marketmaker.State, error) {
	return marketmaker.State{}, errors.New("store down")
}

func TestRelay_RepriceFailureKeepsStreaming(t *testing.T) {
	f := newFixture(t, failingPricer{})
	ctx := context.Background()

	_, err := f.eng.Submit(ctx, "ev1", "r1", limit("n1", "a", matching.SideNo, 5, 1))
	require.NoError(t, err)
	_, err = f.eng.Submit(ctx, "ev1", "r2", limit("y1", "b", matching.SideYes, 5, 1))
	require.NoError(t, err)

	var channels []string
	for i := 0; i < 3; i++ {
		channels = append(channels, f.next(t).Channel)
	}
	assert.Equal(t, []string{bus.ChannelDepth, bus.ChannelTrade, bus.ChannelDepth}, channels)

	select {
	case m := <-f.msgs:
		t.Fatalf("unexpected message on %s", m.Channel)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelay_PublishAndForgetQuote(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	q, err := f.mm.GetQuote(ctx, "ev2")
	require.NoError(t, err)
	f.relay.PublishQuote(ctx, q)
	m := f.next(t)
	assert.Equal(t, bus.ChannelPricing, m.Channel)

	_, err = f.kv.Get(ctx, store.PricingSnapshotKey("ev2"))
	require.NoError(t, err)
	f.relay.ForgetQuote(ctx, "ev2")
	_, err = f.kv.Get(ctx, store.PricingSnapshotKey("ev2"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	m = f.next(t)
	assert.Equal(t, bus.ChannelPricing, m.Channel)
	assert.JSONEq(t, `{"eventId":"ev2","reset":true}`, string(m.Payload))
}
