// Package log 提供基于 zerolog 的日志工具，支持 stderr 和文件输出（lumberjack 轮转）.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/docvault/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 使用给定配置初始化全局 logger，只有第一次调用生效.
func Init(cfg configs.LogConfig, debug bool) {
	initOnce.Do(func() { initLogger(cfg, debug) })
}

// initLogger 实际执行一次的初始化函数.
func initLogger(cfg configs.LogConfig, debug bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			fmt.Fprintf(os.Stderr, "invalid log level %q, defaulting to info\n", cfg.Level)
		}

		lvl = zerolog.InfoLevel
	}

	if debug && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(lvl)

	var stderr io.Writer = os.Stderr
	if cfg.Format != configs.LogFormatJSON {
		stderr = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = time.Kitchen
		})
	}

	writers := []io.Writer{stderr}

	// 文件始终写 JSON，便于收集
	if cfg.File.Enabled && cfg.File.Path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Str("service", configs.AppName)
	if debug {
		ctx = ctx.Caller()

		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = ctx.Timestamp().Logger()

	log.Logger = logger
}

// Logger 返回全局 logger，未初始化时只输出到 stderr.
func Logger() *zerolog.Logger {
	initOnce.Do(func() { initLogger(configs.LogConfig{Level: configs.DefaultLogLevel}, false) })

	return &logger
}

// Component 返回带 component 字段的子 logger.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// WithTrace 如果 ctx 中存在 span，为 logger 附加 trace_id.
func WithTrace(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}

	return l.With().Str("trace_id", sc.TraceID().String()).Logger()
}
