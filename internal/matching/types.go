package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"predex.com/pkg/xerr"
)

// 价格用整数 tick 表示：tick = 0.1，面值 10 = 100 tick
const (
	TicksPerUnit int64   = 10
	FaceTicks    int64   = 100
	FaceValue    float64 = 10
	TickSize     float64 = 0.1

	tickTolerance = 1e-9
)

type Side uint8

const (
	SideYes Side = iota + 1 // bid
	SideNo                  // ask
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool { return s == SideYes || s == SideNo }

func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return SideYes, nil
	case "NO":
		return SideNo, nil
	}
	return 0, xerr.Newf(xerr.BadSide, "unknown side %q", s)
}

type Kind uint8

const (
	Limit Kind = iota + 1
	Market
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool { return k == Limit || k == Market }

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	}
	return 0, xerr.Newf(xerr.BadKind, "unknown kind %q", s)
}

// TicksToPrice 只在边界处转成展示用的浮点价格
func TicksToPrice(ticks int64) float64 {
	return float64(ticks) / float64(TicksPerUnit)
}

// PriceToTicks 校验并把展示价格转成 tick
func PriceToTicks(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, xerr.NewErrCode(xerr.BadPrice)
	}
	scaled := price * float64(TicksPerUnit)
	ticks := math.Round(scaled)
	if math.Abs(scaled-ticks) > tickTolerance*float64(TicksPerUnit) {
		return 0, xerr.Newf(xerr.BadTick, "price %v is not a multiple of %v", price, TickSize)
	}
	if ticks < 0 || ticks > float64(FaceTicks) {
		return 0, xerr.Newf(xerr.BadTick, "price %v outside [0,%v]", price, FaceValue)
	}
	return int64(ticks), nil
}

// OrderRequest 是 Add 的入参，价格还是展示值
type OrderRequest struct {
	ID     string  `json:"id,omitempty"` // 为空时由 book 生成
	UserID string  `json:"userId"`
	Side   Side    `json:"side"`
	Kind   Kind    `json:"kind"`
	Price  float64 `json:"price"`
	Qty    int64   `json:"qty"`
}

// Order 常驻订单薄的订单
type Order struct {
	ID        string
	UserID    string
	Side      Side
	Kind      Kind
	Price     int64 // tick
	Qty       int64 // 剩余数量
	CreatedAt time.Time
}

// Trade 成交，只由 Add 产生
type Trade struct {
	ID             string    `json:"id"`
	TakerSide      Side      `json:"takerSide"`
	Price          int64     `json:"-"` // 成交价 tick = FaceTicks - maker 挂单价
	Qty            int64     `json:"qty"`
	TakerID        string    `json:"takerId"`
	MakerID        string    `json:"makerId"`
	TakerOrderID   string    `json:"takerOrderId"`
	MakerOrderID   string    `json:"makerOrderId"`
	MakerRemaining int64     `json:"makerRemaining"`
	CreatedAt      time.Time `json:"createdAt"`
}

type tradeAlias Trade

type tradeJSON struct {
	tradeAlias
	Price float64 `json:"price"`
}

func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradeJSON{tradeAlias: tradeAlias(t), Price: TicksToPrice(t.Price)})
}

func (t *Trade) UnmarshalJSON(b []byte) error {
	var v tradeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Trade(v.tradeAlias)
	t.Price = int64(math.Round(v.Price * float64(TicksPerUnit)))
	return nil
}

// DepthRow 一个价位的聚合数量
type DepthRow struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}

// Depth 两侧深度，bids = YES，asks = NO，价格从高到低
type Depth struct {
	Bids []DepthRow `json:"bids"`
	Asks []DepthRow `json:"asks"`
}

type Result struct {
	OrderID   string  `json:"orderId"`
	Trades    []Trade `json:"trades"`
	Filled    int64   `json:"filled"`
	Remaining int64   `json:"remaining"`
	Rested    bool    `json:"rested"`
	// 预算耗尽：剩余部分没有继续成交
	FundsExhausted bool `json:"fundsExhausted"`
	// 价位上限触发时被整档剔除的订单
	Evicted []string `json:"evicted,omitempty"`
}
