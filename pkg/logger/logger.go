package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// context 里携带的链路字段，日志时自动带上
const (
	TraceIdKey   ctxKey = "trace_id"
	RequestIDKey ctxKey = "request_id"
	EventIDKey   ctxKey = "event_id"
)

// Log 全局 Logger；未 Init 时是 Nop，避免测试里空指针
var Log = zap.NewNop()

// atomicLevel 可热更新
var atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)

type Options struct {
	Service string
	Level   string // debug, info, warn, error
	File    string // 为空则只输出到 stdout
}

// Init 初始化日志组件，只写 stdout
func Init(serviceName string, level string) {
	InitWithOptions(Options{Service: serviceName, Level: level})
}

// InitWithFile 同时写 stdout 与文件；logFile 为空时使用 logs/{serviceName}.log
func InitWithFile(serviceName string, level string, logFile string) {
	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	InitWithOptions(Options{Service: serviceName, Level: level, File: logFile})
}

func InitWithOptions(opt Options) {
	SetLevel(opt.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opt.File != "" {
		// 打不开文件就只输出到控制台，不中断启动
		if err := os.MkdirAll(filepath.Dir(opt.File), 0o755); err == nil {
			if f, err := os.OpenFile(opt.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(f))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		atomicLevel,
	)
	// 封装了一层，所以 Skip 1，行号才会指向调用方
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", opt.Service))
}

// SetLevel 无法解析时回落到 info
func SetLevel(l string) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(l)); err != nil {
		zl = zap.InfoLevel
	}
	atomicLevel.SetLevel(zl)
}

// WithEventID 把 event id 放进 context，后续日志自动带 event_id
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, RequestIDKey, rid)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, extract(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, extract(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, extract(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, extract(ctx, fields)...)
}

// Fatal 会调用 os.Exit，只用于启动期配置错误
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, extract(ctx, fields)...)
}

func extract(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	keys := []ctxKey{TraceIdKey, RequestIDKey, EventIDKey}
	// 有 span 时优先用 otel 的 trace id
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String(string(TraceIdKey), sc.TraceID().String()))
		keys = keys[1:]
	}
	for _, k := range keys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, zap.String(string(k), v))
		}
	}
	return fields
}

// Sync 刷新缓冲区 (main 里 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
