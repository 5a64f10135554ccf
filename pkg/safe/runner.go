package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"predex.com/pkg/logger"
	"predex.com/pkg/metrics"
)

// Go 安全启动协程，name 用于日志和 panic 计数
func Go(name string, fn func()) {
	go func() {
		defer recoverPanic(context.Background(), name)
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，日志里保留链路字段
func GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverPanic(ctx, name)
		fn(ctx)
	}()
}

func recoverPanic(ctx context.Context, name string) {
	if r := recover(); r != nil {
		metrics.GoroutinePanics.WithLabelValues(name).Inc()
		logger.Error(ctx, "goroutine panic recovered",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
