package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"predex.com/internal/api"
	"predex.com/internal/bus"
	"predex.com/internal/engine"
	"predex.com/internal/gateway"
	"predex.com/internal/marketmaker"
	"predex.com/internal/relay"
	"predex.com/internal/store"
	"predex.com/pkg/auth"
	"predex.com/pkg/logger"
	"predex.com/pkg/ratelimit"
	"predex.com/pkg/trace"
	"predex.com/pkg/xredis"
)

// App 一个进程里装配 撮合 + 做市 + 推送 + HTTP
type App struct {
	cfg Config

	rdb           *redis.Client
	kv            store.KV
	broker        bus.Broker
	engine        *engine.Engine
	mm            *marketmaker.Service
	relay         *relay.Relay
	gateway       *gateway.Server
	handler       http.Handler
	traceShutdown func(context.Context) error
}

// New 启动期的错误全部返回，由 main 决定退出
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	shutdown, err := trace.Init(ctx, trace.Options{
		Enabled:  cfg.Trace.Enabled,
		Service:  cfg.Name,
		Endpoint: cfg.Trace.Endpoint,
		Ratio:    cfg.Trace.Ratio,
	})
	if err != nil {
		return nil, fmt.Errorf("init trace: %w", err)
	}
	a.traceShutdown = shutdown

	if cfg.Store.Driver == DriverRedis || cfg.Bus.Driver == DriverRedis {
		if a.rdb, err = xredis.NewRedis(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	switch cfg.Store.Driver {
	case DriverRedis:
		a.kv = store.WithBreaker(store.NewRedisStore(a.rdb), ratelimit.NewBreakers(cfg.Store.Breaker))
	default:
		a.kv = store.NewMemStore()
	}

	switch cfg.Bus.Driver {
	case DriverRedis:
		a.broker = bus.NewRedisBroker(a.rdb)
	case DriverNats:
		nb, err := bus.NewNatsBroker(cfg.Bus.NatsURL, nats.Name(cfg.Name), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.Bus.NatsURL, err)
		}
		a.broker = nb
	default:
		a.broker = bus.NewMemBroker()
	}

	verifier, err := auth.NewHS256(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if a.mm, err = marketmaker.New(a.kv, cfg.MarketMaker); err != nil {
		return nil, err
	}

	a.engine = engine.NewEngine(cfg.Engine)
	a.relay = relay.New(a.engine.Events(), a.broker, a.kv, a.mm, cfg.Relay)
	a.gateway = gateway.NewServer(ctx, gateway.NewHub(a.kv), verifier, cfg.Gateway)

	httpCfg := cfg.HTTP
	httpCfg.Decimals = cfg.MarketMaker.Decimals
	a.handler = api.NewRouter(ctx, api.Deps{
		Orders:   a.engine,
		MM:       a.mm,
		Quotes:   a.relay,
		Verifier: verifier,
		Cookie:   cfg.Auth.Cookie,
		WS:       a.gateway,
	}, httpCfg)

	ok = true
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Run 阻塞到 ctx 取消；任何一个组件异常退出都会带着其他组件一起停
func (a *App) Run(ctx context.Context) error {
	srv := api.NewServer(a.cfg.HTTP, a.handler)
	g, gctx := errgroup.WithContext(ctx)

	a.background(g, gctx)
	g.Go(func() error {
		logger.Info(gctx, "http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
		}
		// 先停入口再停引擎
		a.engine.Stop()
		return nil
	})
	return g.Wait()
}

// background relay 消费引擎事件，网关持有唯一的总线订阅
func (a *App) background(g *errgroup.Group, ctx context.Context) {
	g.Go(func() error { return a.relay.Run(ctx) })
	g.Go(func() error { return a.gateway.Run(ctx, a.broker) })
}

// Close 释放外部连接，可重复调用
func (a *App) Close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.traceShutdown(ctx)
	}
}
