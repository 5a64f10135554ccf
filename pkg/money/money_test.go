package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor_RoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in       string
		decimals int32
		want     int64
	}{
		{"5", 2, 500},
		{"5.005", 2, 501},
		{"4.995", 2, 500},
		{"5.005", 3, 5005},
		{"0.004", 2, 0},
		{"9.999", 2, 1000},
		{"-1.005", 2, -101},
	}
	for _, c := range cases {
		got := ToMinor(decimal.RequireFromString(c.in), c.decimals)
		assert.Equal(t, c.want, got, "ToMinor(%s, %d)", c.in, c.decimals)
	}
}

func TestFromFloat(t *testing.T) {
	got, err := FromFloat(5.005, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5005), got)

	_, err = FromFloat(math.NaN(), 2)
	assert.Error(t, err)
	_, err = FromFloat(math.Inf(1), 2)
	assert.Error(t, err)
}

func TestFormatAndParse(t *testing.T) {
	assert.Equal(t, "5.00", Format(500, 2))
	assert.Equal(t, "4.995", Format(4995, 3))
	assert.Equal(t, 4.995, ToFloat(4995, 3))

	v, err := Parse("4.995", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4995), v)

	_, err = Parse("abc", 2)
	assert.Error(t, err)
}

func TestValidDecimals(t *testing.T) {
	assert.True(t, ValidDecimals(2))
	assert.False(t, ValidDecimals(-1))
	assert.False(t, ValidDecimals(13))
}
