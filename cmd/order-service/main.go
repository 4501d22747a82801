// cmd/order-service/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"bulkorder/internal/pkg/bootstrap"
	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/httpclient"
	"bulkorder/internal/pkg/zookeeper"
	"bulkorder/internal/service/order/application"
	"bulkorder/internal/service/order/domain"
	"bulkorder/internal/service/order/infrastructure"
	"bulkorder/internal/service/order/infrastructure/adapter"
	"bulkorder/internal/service/order/interfaces"
)

const serviceName = "order-service"

// main 是订单服务的组装根：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config file")
	port := flag.Int("port", 18081, "http listen port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tracer := otel.Tracer(serviceName)

	var repo domain.Repository
	if cfg.Infra.MysqlDSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mysql")
		}
		if err := infrastructure.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate order tables")
		}
		repo = infrastructure.NewGormRepository(db)
	} else {
		repo = infrastructure.NewMemoryRepository()
	}

	inventory := adapter.NewInventoryHTTPAdapter(httpclient.NewClient(tracer), cfg.Order.InventoryBaseURL)
	events := infrastructure.NewEventKafkaAdapter(cfg.Infra.KafkaBrokers)

	svc := application.NewOrderApplicationService(repo, inventory, events, tracer, cfg.Order)

	// 多副本部署时叠加 Zookeeper 实体锁
	var zkConn *zookeeper.Conn
	if len(cfg.Infra.ZkServers) > 0 {
		zkConn, err = zookeeper.Connect(cfg.Infra.ZkServers)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		svc = svc.WithEntityLocker(adapter.NewZkEntityLocker(zkConn, "order"))
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        *port,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewOrderHandler(svc).RegisterRoutes(appCtx.Mux)
			interfaces.NewWsHandler(svc).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if err := events.Close(); err != nil {
				log.Error().Err(err).Msg("error closing event producer")
			}
			if zkConn != nil {
				zkConn.Close()
			}
		},
	})
}
