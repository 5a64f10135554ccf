package matching

import (
	"context"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
	"predex.com/pkg/xerr"
)

// Book 单个事件的 YES/NO 两侧订单薄。
// 没有内部锁：同一个 Book 只能由 engine 里对应的 actor 访问。
type Book struct {
	eventID string
	yes     *btree.Map[int64, *priceLevel] // bids: tick -> level
	no      *btree.Map[int64, *priceLevel] // asks: tick -> level
	byID    map[string]*lvNode             // orderID -> node，撤单 O(1)

	maxLevels int
	now       func() time.Time
	newID     func() string
	logCtx    context.Context
}

func NewBook(eventID string, opts ...Option) *Book {
	b := &Book{
		eventID:   eventID,
		yes:       btree.NewMap[int64, *priceLevel](32),
		no:        btree.NewMap[int64, *priceLevel](32),
		byID:      make(map[string]*lvNode, 1024),
		maxLevels: DefaultMaxLevels,
		now:       time.Now,
		newID:     defaultID,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logCtx = logger.WithEventID(context.Background(), eventID)
	return b
}

func (b *Book) EventID() string { return b.eventID }

func (b *Book) side(s Side) *btree.Map[int64, *priceLevel] {
	if s == SideYes {
		return b.yes
	}
	return b.no
}

// Add 校验 -> 撮合 -> LIMIT 剩余挂单。校验失败不改任何状态。
func (b *Book) Add(req OrderRequest, opts ...AddOption) (Result, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	order, err := b.newOrder(req, o)
	if err != nil {
		kind := "unknown"
		if req.Kind.Valid() {
			kind = req.Kind.String()
		}
		metrics.OrdersTotal.WithLabelValues(kind, "rejected").Inc()
		return Result{}, err
	}

	res := Result{OrderID: order.ID}
	res.FundsExhausted = b.match(order, o, &res)
	res.Remaining = order.Qty

	outcome := "filled"
	switch {
	case order.Qty == 0:
	case order.Kind == Limit:
		res.Evicted = b.rest(order)
		res.Rested = b.byID[order.ID] != nil
		outcome = "rested"
	default:
		// MARKET 剩余直接丢弃
		outcome = "discarded"
	}
	metrics.OrdersTotal.WithLabelValues(order.Kind.String(), outcome).Inc()
	metrics.TradesTotal.Add(float64(len(res.Trades)))
	return res, nil
}

func (b *Book) newOrder(req OrderRequest, o addOptions) (*Order, error) {
	if !req.Side.Valid() {
		return nil, xerr.NewErrCode(xerr.BadSide)
	}
	if !req.Kind.Valid() {
		return nil, xerr.NewErrCode(xerr.BadKind)
	}
	if req.Qty <= 0 {
		return nil, xerr.NewErrCode(xerr.BadQty)
	}
	var ticks int64
	if req.Kind == Limit {
		t, err := PriceToTicks(req.Price)
		if err != nil {
			return nil, err
		}
		ticks = t
	}
	if o.budgeted && o.cost == nil {
		return nil, xerr.NewErrCode(xerr.MissingCostFn)
	}
	id := req.ID
	if id == "" {
		id = b.newID()
	} else if _, dup := b.byID[id]; dup {
		return nil, xerr.Newf(xerr.BadRequest, "order %s already resting", id)
	}
	return &Order{
		ID:        id,
		UserID:    req.UserID,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     ticks,
		Qty:       req.Qty,
		CreatedAt: b.now(),
	}, nil
}

// match 从对手盘最高价往下扫；返回是否因预算耗尽停止
func (b *Book) match(taker *Order, o addOptions, res *Result) (exhausted bool) {
	opp := b.side(taker.Side.Opposite())
	// YES@p 与 NO@q 可成交 iff q >= 10 - p；MARKET 不限价
	var floor int64
	if taker.Kind == Limit {
		floor = FaceTicks - taker.Price
	}
	budget := o.maxCost

	price, lv, ok := opp.Max()
	for ok && taker.Qty > 0 && price >= floor {
		exec := FaceTicks - price
		for n := lv.head; n != nil && taker.Qty > 0; {
			next := n.next
			maker := n.order
			// 自成交保护：跳过同一用户的挂单，继续看同档后面的
			if maker.UserID == taker.UserID {
				n = next
				continue
			}
			fill := min(taker.Qty, maker.Qty)
			if o.budgeted {
				if unit := o.cost(exec, 1); unit > 0 {
					affordable := budget / unit
					if affordable <= 0 {
						exhausted = true
						break
					}
					fill = min(fill, affordable)
				}
			}

			lv.qty -= fill
			maker.Qty -= fill
			taker.Qty -= fill
			res.Filled += fill
			if o.budgeted {
				budget -= o.cost(exec, fill)
			}
			res.Trades = append(res.Trades, Trade{
				ID:             b.newID(),
				TakerSide:      taker.Side,
				Price:          exec,
				Qty:            fill,
				TakerID:        taker.UserID,
				MakerID:        maker.UserID,
				TakerOrderID:   taker.ID,
				MakerOrderID:   maker.ID,
				MakerRemaining: maker.Qty,
				CreatedAt:      b.now(),
			})
			if maker.Qty > 0 {
				// maker 没吃完而 taker 还有量，只能是预算不够了
				if taker.Qty > 0 {
					exhausted = true
				}
				break
			}
			lv.remove(n)
			delete(b.byID, maker.ID)
			n = next
		}
		if lv.empty() {
			opp.Delete(price)
		}
		if exhausted {
			return true
		}
		price, lv, ok = levelBelow(opp, price)
	}
	return false
}

// levelBelow 返回严格低于 price 的最高价位
func levelBelow(m *btree.Map[int64, *priceLevel], price int64) (int64, *priceLevel, bool) {
	var (
		p  int64
		lv *priceLevel
		ok bool
	)
	m.Descend(price-1, func(k int64, v *priceLevel) bool {
		p, lv, ok = k, v, true
		return false
	})
	return p, lv, ok
}

// rest 挂到本侧价位队尾；超过价位上限时整档剔除最差（最低价）的价位
func (b *Book) rest(order *Order) (evicted []string) {
	m := b.side(order.Side)
	lv, ok := m.Get(order.Price)
	if !ok {
		lv = &priceLevel{price: order.Price}
		m.Set(order.Price, lv)
	}
	n := &lvNode{order: order, lv: lv}
	lv.pushBack(n)
	b.byID[order.ID] = n

	for m.Len() > b.maxLevels {
		worst, wl, _ := m.Min()
		ids := wl.orderIDs()
		for _, id := range ids {
			delete(b.byID, id)
		}
		m.Delete(worst)
		evicted = append(evicted, ids...)

		metrics.LevelEvictions.WithLabelValues(order.Side.String()).Inc()
		logger.Error(b.logCtx, "price level evicted by level cap",
			zap.String("side", order.Side.String()),
			zap.Int64("price_ticks", worst),
			zap.Int("max_levels", b.maxLevels),
			zap.Strings("order_ids", ids),
		)
	}
	return evicted
}

// Cancel 已成交或不存在返回 false
func (b *Book) Cancel(orderID string) bool {
	n := b.byID[orderID]
	if n == nil {
		return false
	}
	lv := n.lv
	lv.remove(n)
	delete(b.byID, orderID)
	if lv.empty() {
		b.side(n.order.Side).Delete(lv.price)
	}
	return true
}

// Depth 每个价位一行，价格从高到低
func (b *Book) Depth(s Side) []DepthRow {
	m := b.side(s)
	rows := make([]DepthRow, 0, m.Len())
	m.Reverse(func(p int64, lv *priceLevel) bool {
		rows = append(rows, DepthRow{Price: TicksToPrice(p), Qty: lv.qty})
		return true
	})
	return rows
}

func (b *Book) Snapshot() Depth {
	return Depth{Bids: b.Depth(SideYes), Asks: b.Depth(SideNo)}
}

// Order 返回常驻订单的副本
func (b *Book) Order(orderID string) (Order, bool) {
	n := b.byID[orderID]
	if n == nil {
		return Order{}, false
	}
	return *n.order, true
}

// Len 常驻订单数
func (b *Book) Len() int { return len(b.byID) }

// Levels 某一侧的价位数
func (b *Book) Levels(s Side) int { return b.side(s).Len() }
