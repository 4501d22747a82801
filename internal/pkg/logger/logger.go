// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var base zerolog.Logger

// Init 初始化全局 zerolog 实例，所有日志都带上 service 字段。
// 每个服务进程启动时调用一次。
func Init(serviceName string) {
	base = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	log.Logger = base
}

// Ctx 返回上下文中携带的 logger；如果上下文中没有，退回全局 logger。
// 用法: logger.Ctx(ctx).Info().Str("order_id", id).Msg("...")
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &base
}

// WithContext 把一个派生 logger 挂到上下文上，供下游取用。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
