package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"predex.com/internal/matching"
	"predex.com/pkg/xerr"
)

func limit(id, user string, side matching.Side, price float64, qty int64) matching.OrderRequest {
	return matching.OrderRequest{ID: id, UserID: user, Side: side, Kind: matching.Limit, Price: price, Qty: qty}
}

func nextEvent(t *testing.T, e *Engine) Event {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for engine event")
		return Event{}
	}
}

func TestEngine_SubmitEmitsTradesWithDepth(t *testing.T) {
	e := NewEngine(Config{})
	defer e.Stop()
	ctx := context.Background()

	_, err := e.Submit(ctx, "ev1", "r1", limit("n1", "maker", matching.SideNo, 6, 50))
	require.NoError(t, err)
	ev := nextEvent(t, e)
	assert.Empty(t, ev.Trades)
	assert.Equal(t, []matching.DepthRow{{Price: 6, Qty: 50}}, ev.Depth.Asks)

	res, err := e.Submit(ctx, "ev1", "r2", limit("y1", "taker", matching.SideYes, 5, 30))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(40), res.Trades[0].Price)

	ev = nextEvent(t, e)
	assert.Equal(t, "ev1", ev.EventID)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, "r2", ev.ReqID)
	require.Len(t, ev.Trades, 1)
	assert.Equal(t, []matching.DepthRow{{Price: 6, Qty: 20}}, ev.Depth.Asks)
}

func TestEngine_RejectedOrderEmitsNothing(t *testing.T) {
	e := NewEngine(Config{})
	defer e.Stop()

	_, err := e.Submit(context.Background(), "ev1", "r1", limit("", "u", matching.SideYes, 5.05, 1))
	assert.True(t, xerr.Is(err, xerr.BadTick))
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_CancelAndDepth(t *testing.T) {
	e := NewEngine(Config{})
	defer e.Stop()
	ctx := context.Background()

	ok, err := e.Cancel(ctx, "nobook", "r0", "x")
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := e.Depth(ctx, "nobook")
	require.NoError(t, err)
	assert.Empty(t, d.Bids)
	assert.Equal(t, 0, e.Stats().Books, "depth must not create a book")

	_, err = e.Submit(ctx, "ev1", "r1", limit("y1", "u", matching.SideYes, 3, 2))
	require.NoError(t, err)
	nextEvent(t, e)

	d, err = e.Depth(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, []matching.DepthRow{{Price: 3, Qty: 2}}, d.Bids)

	ok, err = e.Cancel(ctx, "ev1", "r2", "y1")
	require.NoError(t, err)
	assert.True(t, ok)
	ev := nextEvent(t, e)
	assert.Empty(t, ev.Depth.Bids)

	ok, err = e.Cancel(ctx, "ev1", "r3", "y1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_EmptyEventID(t *testing.T) {
	e := NewEngine(Config{})
	defer e.Stop()
	_, err := e.Submit(context.Background(), "", "r", limit("", "u", matching.SideYes, 1, 1))
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestLazyCreateActorOnlyOnce_ConcurrentFirstSubmit(t *testing.T) {
	var factoryCalls uint64
	e := NewEngine(Config{
		EventBusSize: 1024,
		Actor:        ActorConfig{MailboxSize: 1 << 12, BatchMax: 64},
		BookFactory: func(eventID string) (OrderBook, error) {
			atomic.AddUint64(&factoryCalls, 1)
			return matching.NewBook(eventID), nil
		},
	})
	defer e.Stop()

	const N = 200
	start := make(chan struct{})
	var wg sync.WaitGroup
	errCh := make(chan error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// 价格都不交叉，只挂单
			_, err := e.Submit(context.Background(), "ev", fmt.Sprint(i), limit("", "u", matching.SideYes, 1, 1))
			if err != nil {
				errCh <- err
			}
		}(i)
	}
	// 消费事件，避免 bus 写满
	go func() {
		for range e.Events() {
		}
	}()
	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("submit: %v", err)
	}
	assert.Equal(t, uint64(1), atomic.LoadUint64(&factoryCalls))
	assert.Equal(t, 1, e.Stats().Books)
}

// blockingBook 卡住 actor，用来把 mailbox 塞满
type blockingBook struct {
	release chan struct{}
}

func (b *blockingBook) Add(req matching.OrderRequest, _ ...matching.AddOption) (matching.Result, error) {
	<-b.release
	return matching.Result{OrderID: req.ID}, nil
}
func (b *blockingBook) Cancel(string) bool { return false }

func (b *blockingBook) Snapshot() matching.Depth { return matching.Depth{} }

func TestActor_Backpressure(t *testing.T) {
	book := &blockingBook{release: make(chan struct{})}
	bus := NewChanBus(16)
	a := NewEventActor("ev", book, bus, ActorConfig{MailboxSize: 2, BatchMax: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	var busy bool
	for i := 0; i < 10; i++ {
		if err := a.TryEnqueue(Command{Type: CmdSubmit}); errors.Is(err, ErrEngineBusy) {
			busy = true
			break
		}
	}
	close(book.release)
	assert.True(t, busy, "expected ErrEngineBusy")
	assert.NotZero(t, a.MailboxFull())
}

type panicBook struct{}

func (panicBook) Add(matching.OrderRequest, ...matching.AddOption) (matching.Result, error) {
	panic("boom")
}

func (panicBook) Cancel(string) bool { return false }

func (panicBook) Snapshot() matching.Depth { return matching.Depth{} }

func TestActor_PanicBecomesError(t *testing.T) {
	e := NewEngine(Config{BookFactory: func(string) (OrderBook, error) { return panicBook{}, nil }})
	defer e.Stop()

	_, err := e.Submit(context.Background(), "ev", "r", limit("", "u", matching.SideYes, 1, 1))
	assert.True(t, xerr.Is(err, xerr.Internal))
	// actor 还活着
	_, err = e.Depth(context.Background(), "ev")
	assert.NoError(t, err)
}

func TestChanBus_DropsWhenFull(t *testing.T) {
	bus := NewChanBus(1)
	assert.True(t, bus.TryPublish(Event{}))
	assert.False(t, bus.TryPublish(Event{}))
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestEngine_StopRejectsNewBooks(t *testing.T) {
	e := NewEngine(Config{})
	e.Stop()
	_, err := e.Submit(context.Background(), "ev", "r", limit("", "u", matching.SideYes, 1, 1))
	assert.ErrorIs(t, err, ErrStopped)
}
