package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"predex.com/internal/bus"
	"predex.com/internal/marketmaker"
	"predex.com/pkg/auth"
)

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "predex.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "predex", cfg.Name)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, DriverRedis, cfg.Bus.Driver)
	assert.Equal(t, marketmaker.DefaultConfig(), cfg.MarketMaker)
	assert.Equal(t, 4096, cfg.Engine.Actor.MailboxSize)
	assert.Equal(t, 30*time.Second, cfg.Gateway.PingInterval)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	p := filepath.Join(t.TempDir(), "predex.yaml")
	require.NoError(t, os.WriteFile(p, []byte("bus:\n  driver: kafka\nauth:\n  secret: x\n"), 0o644))
	_, err := LoadConfig(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus.driver")
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	p := filepath.Join(t.TempDir(), "predex.yaml")
	require.NoError(t, os.WriteFile(p, []byte("store:\n  driver: mem\nbus:\n  driver: mem\n"), 0o644))
	_, err := LoadConfig(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func memConfig() Config {
	return Config{
		Name:        "predex-test",
		Store:       StoreConfig{Driver: DriverMem},
		Bus:         BusConfig{Driver: DriverMem},
		MarketMaker: marketmaker.DefaultConfig(),
		Auth:        auth.Config{Secret: "e2e", Issuer: "predex"},
	}
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// 下单 -> 撮合 -> relay -> 总线 -> 网关 -> ws 客户端
func TestApp_OrderToSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, memConfig())
	require.NoError(t, err)
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	a.background(g, gctx)
	mb := a.broker.(*bus.MemBroker)
	require.Eventually(t, func() bool { return mb.Subscribers(bus.ChannelTrade) == 1 }, 2*time.Second, 5*time.Millisecond)

	hs := httptest.NewServer(a.Handler())
	defer hs.Close()

	signer, err := auth.NewHS256(memConfig().Auth)
	require.NoError(t, err)
	tok := func(uid string) string {
		s, err := signer.Issue(uid, auth.RoleUser)
		require.NoError(t, err)
		return s
	}

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?eventId=E1&token=" + tok("watcher")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return a.gateway.Hub().Subscribers("E1") == 1 }, 2*time.Second, 5*time.Millisecond)

	post := func(uid string, body map[string]any) int {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, hs.URL+"/v1/events/E1/orders", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok(uid))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	read := func() frame {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, b, err := c.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	}

	require.Equal(t, http.StatusOK, post("u1", map[string]any{"side": "YES", "price": 6.0, "qty": 500}))
	assert.Equal(t, bus.ChannelDepth, read().Type)

	require.Equal(t, http.StatusOK, post("u2", map[string]any{"side": "NO", "price": 4.0, "qty": 300}))
	tr := read()
	require.Equal(t, bus.ChannelTrade, tr.Type)
	assert.Contains(t, string(tr.Payload), `"makerRemaining":200`)
	assert.Equal(t, bus.ChannelDepth, read().Type)

	pr := read()
	require.Equal(t, bus.ChannelPricing, pr.Type)
	var q marketmaker.Quote
	require.NoError(t, json.Unmarshal(pr.Payload, &q))
	// NO 吃单压低 YES 价：5 - 300/10000*0.5 = 4.985 -> 4.99
	assert.InDelta(t, 4.99, q.PriceYes, 1e-9)
	assert.InDelta(t, 10.0, q.PriceYes+q.PriceNo, 1e-9)

	cancel()
	require.NoError(t, g.Wait())
}
