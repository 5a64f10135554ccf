// 金额：十进制展示值 <-> 整数最小单位；落库只存整数，float 只在展示边界出现
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// 10^12 以内不会溢出 int64
const MaxDecimals = 12

// ToMinor 四舍五入（远离 0）
func ToMinor(v decimal.Decimal, decimals int32) int64 {
	return v.Shift(decimals).Round(0).IntPart()
}

func FromFloat(f float64, decimals int32) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("money: non-finite value %v", f)
	}
	return ToMinor(decimal.NewFromFloat(f), decimals), nil
}

// ToDecimal minor / 10^decimals，精确
func ToDecimal(minor int64, decimals int32) decimal.Decimal {
	return decimal.New(minor, -decimals)
}

func ToFloat(minor int64, decimals int32) float64 {
	f, _ := ToDecimal(minor, decimals).Float64()
	return f
}

// Format 固定 decimals 位小数
func Format(minor int64, decimals int32) string {
	return ToDecimal(minor, decimals).StringFixed(decimals)
}

// Parse "5.005" -> 最小单位
func Parse(s string, decimals int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return ToMinor(d, decimals), nil
}

func ValidDecimals(decimals int32) bool {
	return decimals >= 0 && decimals <= MaxDecimals
}
