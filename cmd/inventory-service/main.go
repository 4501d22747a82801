// cmd/inventory-service/main.go
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
	"bulkorder/internal/pkg/redis"
	"bulkorder/internal/service/inventory/application"
	"bulkorder/internal/service/inventory/domain"
	"bulkorder/internal/service/inventory/infrastructure"
	"bulkorder/internal/service/inventory/infrastructure/adapter"
	"bulkorder/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

// main 是库存服务的组装根：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config file")
	port := flag.Int("port", 18080, "http listen port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// 仓储：配了 MySQL 就持久化，否则内存模式（本地开发）
	var repo domain.Repository
	if cfg.Infra.MysqlDSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mysql")
		}
		if err := infrastructure.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate inventory tables")
		}
		repo = infrastructure.NewGormRepository(db, cfg.Inventory.DefaultQuantity)
	} else {
		repo = infrastructure.NewMemoryRepository(cfg.Inventory.DefaultQuantity)
	}

	var policy *application.EarmarkPolicy
	if cfg.Inventory.EarmarkPolicy != "" {
		policy, err = application.NewEarmarkPolicy(cfg.Inventory.EarmarkPolicy)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid earmark policy")
		}
	}

	scheduler := adapter.NewExpiryKafkaAdapter(cfg.Infra.KafkaBrokers)
	svc := application.NewService(repo, scheduler, policy, otel.Tracer(serviceName), cfg.Inventory)
	consumer := interfaces.NewExpiryConsumer(cfg.Infra.KafkaBrokers, svc)

	// 幂等响应缓存是可选的：Redis 不可达时退化为不去重
	var cache *redis.Client
	if cfg.Infra.RedisAddrs != "" {
		cache, err = redis.NewClient(cfg.Infra.RedisAddrs)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, idempotency replay disabled")
			cache = nil
		}
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        *port,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewInventoryHandler(svc, cache).RegisterRoutes(appCtx.Mux)
			consumer.Start(context.Background())
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop()
			if err := scheduler.Close(); err != nil {
				log.Error().Err(err).Msg("error closing expiry scheduler")
			}
			if cache != nil {
				_ = cache.Close()
			}
		},
	})
}
