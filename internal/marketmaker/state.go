package marketmaker

import (
	"time"

	"github.com/shopspring/decimal"
	"predex.com/pkg/money"
)

// State 单个事件的做市状态，金额都是最小货币单位
type State struct {
	EventID        string          `json:"eventId"`
	PriceYes       int64           `json:"priceYesPaise,string"`
	PriceNo        int64           `json:"priceNoPaise,string"`
	Face           int64           `json:"facePaise,string"`
	Min            int64           `json:"minPaise,string"`
	Max            int64           `json:"maxPaise,string"`
	Decimals       int32           `json:"decimals"`
	SeedLiquidity  int64           `json:"seedLiquidity"`
	Sensitivity    decimal.Decimal `json:"sensitivity"`
	InventoryYes   int64           `json:"inventoryYes"`
	InventoryNo    int64           `json:"inventoryNo"`
	NetYesExposure int64           `json:"netYesExposure"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (s State) YesPrice() float64 { return money.ToFloat(s.PriceYes, s.Decimals) }
func (s State) NoPrice() float64  { return money.ToFloat(s.PriceNo, s.Decimals) }

// Quote 即 pricing 频道的 payload
type Quote struct {
	EventID  string  `json:"eventId"`
	State    State   `json:"state"`
	PriceYes float64 `json:"priceYes"`
	PriceNo  float64 `json:"priceNo"`
}

func (s State) Quote() Quote {
	return Quote{EventID: s.EventID, State: s, PriceYes: s.YesPrice(), PriceNo: s.NoPrice()}
}

// Overrides seed 时覆盖默认参数，nil 字段用配置值
type Overrides struct {
	InitialPrice  *float64 `json:"initialPrice,omitempty"`
	Decimals      *int32   `json:"decimals,omitempty"`
	SeedLiquidity *int64   `json:"seedLiquidity,omitempty"`
	Sensitivity   *float64 `json:"sensitivity,omitempty"`
	MinPrice      *float64 `json:"minPrice,omitempty"`
	MaxPrice      *float64 `json:"maxPrice,omitempty"`
}
