package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"predex.com/internal/app"
	"predex.com/pkg/logger"
)

func main() {
	cfgFile := flag.String("config", "", "config file, default config/predex.yaml")
	flag.Parse()

	// 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(*cfgFile, func(c app.Config) {
		logger.SetLevel(c.Log.Level)
	})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.InitWithOptions(logger.Options{Service: cfg.Name, Level: cfg.Log.Level, File: cfg.Log.File})
	defer logger.Sync()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "init predex", zap.Error(err))
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "predex exit with error", zap.Error(err))
		return
	}
	logger.Info(ctx, "predex exit")
}
