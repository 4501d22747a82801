// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/pkg/nacos"
	"bulkorder/internal/pkg/tracing"
)

// AppCtx 传给各服务的路由注册回调，携带可复用的公共组件。
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *config.Config
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	Config      *config.Config
	// RegisterHandlers 允许每个服务注册自己的 HTTP 路由。
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown 在 HTTP 服务器关闭前执行，用于停掉消费者等后台组件。
	OnShutdown func(ctx context.Context)
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑：
// 日志、追踪、Nacos 注册、HTTP 服务器、信号处理。阻塞直到进程退出。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := info.Config

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// Nacos 是可选的：没配地址就只跑本地模式
	var namingClient *nacos.Client
	var registeredIP string
	if cfg.Infra.NacosAddrs != "" {
		namingClient, err = nacos.NewClient(cfg.Infra.NacosAddrs, cfg.Infra.NacosNamespace, cfg.Infra.NacosGroup)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		registeredIP, err = outboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, registeredIP, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序：先注销服务，再停后台组件，最后关 HTTP 和 tracer
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, registeredIP, info.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}

	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// outboundIP 获取本机对外通信使用的 IP，用于服务注册。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
