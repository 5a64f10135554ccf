package app

import (
	"fmt"
	"time"

	"predex.com/internal/api"
	"predex.com/internal/engine"
	"predex.com/internal/gateway"
	"predex.com/internal/marketmaker"
	"predex.com/internal/relay"
	"predex.com/pkg/auth"
	"predex.com/pkg/config"
	"predex.com/pkg/ratelimit"
	"predex.com/pkg/xredis"
)

const (
	DriverRedis = "redis"
	DriverNats  = "nats"
	DriverMem   = "mem"
)

// 总配置
type Config struct {
	Name        string             `mapstructure:"name"`
	Log         LogConfig          `mapstructure:"log"`
	HTTP        api.Config         `mapstructure:"http"`
	Redis       xredis.Config      `mapstructure:"redis"`
	Store       StoreConfig        `mapstructure:"store"`
	Bus         BusConfig          `mapstructure:"bus"`
	Engine      engine.Config      `mapstructure:"engine"`
	MarketMaker marketmaker.Config `mapstructure:"marketMaker"`
	Relay       relay.Config       `mapstructure:"relay"`
	Gateway     gateway.Config     `mapstructure:"gateway"`
	Auth        auth.Config        `mapstructure:"auth"`
	Trace       TraceConfig        `mapstructure:"trace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type StoreConfig struct {
	// redis | mem
	Driver  string         `mapstructure:"driver"`
	Breaker ratelimit.Rule `mapstructure:"breaker"`
}

type BusConfig struct {
	// redis | nats | mem
	Driver  string `mapstructure:"driver"`
	NatsURL string `mapstructure:"natsUrl"`
}

type TraceConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Endpoint string  `mapstructure:"endpoint"`
	Ratio    float64 `mapstructure:"ratio"`
}

func defaults() map[string]any {
	mm := marketmaker.DefaultConfig()
	return map[string]any{
		"name":                      "predex",
		"log.level":                 "info",
		"http.addr":                 ":8080",
		"redis.addr":                "127.0.0.1:6379",
		"store.driver":              DriverRedis,
		"bus.driver":                DriverRedis,
		"bus.natsUrl":               "nats://127.0.0.1:4222",
		"engine.mailboxSize":        4096,
		"engine.batchMax":           64,
		"engine.busSize":            8192,
		"marketMaker.faceValue":     mm.FaceValue,
		"marketMaker.initialPrice":  mm.InitialPrice,
		"marketMaker.decimals":      mm.Decimals,
		"marketMaker.seedLiquidity": mm.SeedLiquidity,
		"marketMaker.sensitivity":   mm.Sensitivity,
		"marketMaker.minPrice":      mm.MinPrice,
		"marketMaker.maxPrice":      mm.MaxPrice,
		"gateway.pingInterval":      30 * time.Second,
		"gateway.writeWait":         5 * time.Second,
		"auth.issuer":               "predex",
		"auth.cookie":               gateway.DefaultCookie,
	}
}

// LoadConfig file 为空时按 config/predex.yaml 查找；环境变量 PREDEX_* 覆盖。
// onReload 非空时监听文件变更，只有日志级别这类无状态的配置适合热更新
func LoadConfig(file string, onReload func(Config)) (Config, error) {
	cfg := &Config{}
	opt := config.Options{Name: "predex", File: file, Defaults: defaults()}
	if onReload != nil {
		opt.Watch = true
		opt.OnChange = func() { onReload(*cfg) }
	}
	if _, err := config.Load(opt, cfg); err != nil {
		return Config{}, err
	}
	return *cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverRedis, DriverMem:
	default:
		return fmt.Errorf("store.driver %q: want redis or mem", c.Store.Driver)
	}
	switch c.Bus.Driver {
	case DriverRedis, DriverNats, DriverMem:
	default:
		return fmt.Errorf("bus.driver %q: want redis, nats or mem", c.Bus.Driver)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if err := c.MarketMaker.Validate(); err != nil {
		return fmt.Errorf("marketMaker: %w", err)
	}
	return nil
}
