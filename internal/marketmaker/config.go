package marketmaker

import (
	"predex.com/pkg/money"
	"predex.com/pkg/xerr"
)

type Config struct {
	FaceValue     float64 `mapstructure:"faceValue"`
	InitialPrice  float64 `mapstructure:"initialPrice"`
	Decimals      int32   `mapstructure:"decimals"`
	SeedLiquidity int64   `mapstructure:"seedLiquidity"`
	Sensitivity   float64 `mapstructure:"sensitivity"`
	MinPrice      float64 `mapstructure:"minPrice"`
	MaxPrice      float64 `mapstructure:"maxPrice"`
}

func DefaultConfig() Config {
	return Config{
		FaceValue:     10,
		InitialPrice:  5,
		Decimals:      2,
		SeedLiquidity: 10000,
		Sensitivity:   0.5,
		MinPrice:      0.1,
		MaxPrice:      9.9,
	}
}

func (c Config) apply(o *Overrides) Config {
	if o == nil {
		return c
	}
	if o.InitialPrice != nil {
		c.InitialPrice = *o.InitialPrice
	}
	if o.Decimals != nil {
		c.Decimals = *o.Decimals
	}
	if o.SeedLiquidity != nil {
		c.SeedLiquidity = *o.SeedLiquidity
	}
	if o.Sensitivity != nil {
		c.Sensitivity = *o.Sensitivity
	}
	if o.MinPrice != nil {
		c.MinPrice = *o.MinPrice
	}
	if o.MaxPrice != nil {
		c.MaxPrice = *o.MaxPrice
	}
	return c
}

// Validate 夹逼区间必须严格在 (0, face) 内，初始价在区间里
func (c Config) Validate() error {
	if !money.ValidDecimals(c.Decimals) {
		return xerr.Newf(xerr.BadRequest, "decimals %d out of range", c.Decimals)
	}
	if c.SeedLiquidity <= 0 {
		return xerr.New(xerr.BadRequest, "seed liquidity must be positive")
	}
	if c.Sensitivity < 0 {
		return xerr.New(xerr.BadRequest, "sensitivity must not be negative")
	}
	if c.FaceValue <= 0 || !(0 < c.MinPrice && c.MinPrice < c.MaxPrice && c.MaxPrice < c.FaceValue) {
		return xerr.Newf(xerr.BadRequest, "clamp band [%v,%v] must lie inside (0,%v)", c.MinPrice, c.MaxPrice, c.FaceValue)
	}
	if c.InitialPrice < c.MinPrice || c.InitialPrice > c.MaxPrice {
		return xerr.Newf(xerr.BadRequest, "initial price %v outside [%v,%v]", c.InitialPrice, c.MinPrice, c.MaxPrice)
	}
	return nil
}
