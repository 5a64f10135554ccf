package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"predex.com/pkg/money"
)

// CostFunc 返回以 priceTicks 成交 qty 的花费（最小货币单位）
type CostFunc func(priceTicks, qty int64) int64

// MinorUnitCost 价格 * 数量 换算成 10^decimals 的最小单位
func MinorUnitCost(decimals int32) CostFunc {
	return func(priceTicks, qty int64) int64 {
		notional := decimal.New(priceTicks, 0).Mul(decimal.New(qty, 0)).Div(decimal.New(TicksPerUnit, 0))
		return money.ToMinor(notional, decimals)
	}
}

type addOptions struct {
	budgeted bool
	maxCost  int64
	cost     CostFunc
}

type AddOption func(*addOptions)

// WithBudget 限制本单总花费；cost 为空时 Add 返回 missing_cost_fn
func WithBudget(maxCost int64, cost CostFunc) AddOption {
	return func(o *addOptions) {
		o.budgeted = true
		o.maxCost = maxCost
		o.cost = cost
	}
}

const DefaultMaxLevels = 128

type Option func(*Book)

// WithMaxLevels 每侧最多驻留的价位数
func WithMaxLevels(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.maxLevels = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Book) {
		if now != nil {
			b.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(b *Book) {
		if gen != nil {
			b.newID = gen
		}
	}
}

func defaultID() string { return uuid.NewString() }
