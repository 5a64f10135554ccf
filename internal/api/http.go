package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"predex.com/internal/marketmaker"
	"predex.com/internal/matching"
	"predex.com/pkg/auth"
	"predex.com/pkg/middleware"
	"predex.com/pkg/ratelimit"
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// 每 IP+路由 的限流
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
	// 下单预算换算用的小数位，与做市商一致
	Decimals int32 `mapstructure:"-"`
}

// Orders 撮合引擎的对外能力
type Orders interface {
	Submit(ctx context.Context, eventID, reqID string, req matching.OrderRequest, opts ...matching.AddOption) (matching.Result, error)
	Cancel(ctx context.Context, eventID, reqID, orderID string) (bool, error)
	Depth(ctx context.Context, eventID string) (matching.Depth, error)
}

type MarketMaker interface {
	GetQuote(ctx context.Context, eventID string) (marketmaker.Quote, error)
	Seed(ctx context.Context, eventID string, o *marketmaker.Overrides) (marketmaker.State, error)
	Reset(ctx context.Context, eventID string) error
}

// Quotes 报价推送，seed/reset 后同步快照
type Quotes interface {
	PublishQuote(ctx context.Context, q marketmaker.Quote)
	ForgetQuote(ctx context.Context, eventID string)
}

type Deps struct {
	Orders   Orders
	MM       MarketMaker
	Quotes   Quotes
	Verifier auth.Verifier
	Cookie   string
	WS       http.Handler
}

func NewRouter(ctx context.Context, d Deps, cfg Config) *gin.Engine {
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	// 限流
	store := ratelimit.NewStore(rate.Limit(cfg.Rate), cfg.Burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	r.ContextWithFallback = true
	// 监控
	p := ginprom.NewPrometheus("predex")
	p.Use(r)
	r.Use(
		otelgin.Middleware("predex"),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)

	h := &handler{orders: d.Orders, mm: d.MM, quotes: d.Quotes, decimals: cfg.Decimals}

	r.GET("/healthz", h.Healthz)
	if d.WS != nil {
		// 升级请求不走限流，鉴权在网关内部完成
		r.GET("/ws", gin.WrapH(d.WS))
	}

	v1 := r.Group("/v1", middleware.RateLimit(store))
	ev := v1.Group("/events/:id")
	{
		ev.GET("/depth", h.Depth)
		ev.GET("/quote", h.Quote)

		authed := ev.Group("", Authenticate(d.Verifier, d.Cookie))
		authed.POST("/orders", h.PlaceOrder)
		authed.DELETE("/orders/:orderId", h.CancelOrder)

		admin := authed.Group("/mm", RequireAdmin())
		admin.POST("/seed", h.Seed)
		admin.DELETE("", h.Reset)
	}
	return r
}

func NewServer(cfg Config, handler http.Handler) *http.Server {
	rt, wt := cfg.ReadTimeout, cfg.WriteTimeout
	if rt <= 0 {
		rt = 10 * time.Second
	}
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		MaxHeaderBytes: 1 << 20,
	}
}
