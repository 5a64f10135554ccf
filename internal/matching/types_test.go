package matching

import (
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"predex.com/pkg/xerr"
)

func TestPriceToTicks(t *testing.T) {
	for in, want := range map[float64]int64{0: 0, 10: 100, 5: 50, 0.7: 7, 9.9: 99} {
		got, err := PriceToTicks(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "price %v", in)
	}
	_, err := PriceToTicks(3.33)
	assert.True(t, xerr.Is(err, xerr.BadTick))
}

func TestTradeJSON_PriceAsDisplayValue(t *testing.T) {
	tr := Trade{ID: "t1", TakerSide: SideYes, Price: 40, Qty: 30, MakerRemaining: 20, CreatedAt: time.Unix(0, 0).UTC()}
	b, err := json.Marshal(tr)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, 4.0, m["price"])
	assert.Equal(t, "YES", m["takerSide"])

	var back Trade
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, tr, back)
}

func TestParseSideKind(t *testing.T) {
	s, err := ParseSide("no")
	require.NoError(t, err)
	assert.Equal(t, SideNo, s)
	_, err = ParseSide("maybe")
	assert.True(t, xerr.Is(err, xerr.BadSide))

	k, err := ParseKind("market")
	require.NoError(t, err)
	assert.Equal(t, Market, k)
	_, err = ParseKind("stop")
	assert.True(t, xerr.Is(err, xerr.BadKind))
}

func TestMinorUnitCost(t *testing.T) {
	cost := MinorUnitCost(2)
	// 4.0 * 3 = 12.00
	assert.Equal(t, int64(1200), cost(40, 3))
	assert.Equal(t, int64(10), cost(1, 1))
}
