// cmd/order-runner/main.go
//
// 演练驱动器：对着订单服务跑完整的大订单脚本（开单、加子订单、
// 成交/取消/撤销），用于联调和故障转移验证。
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"bulkorder/internal/client"
	"bulkorder/internal/pkg/config"
	"bulkorder/internal/pkg/httpclient"
	"bulkorder/internal/pkg/logger"
	"bulkorder/internal/pkg/nacos"
	"bulkorder/internal/pkg/tracing"
	"bulkorder/internal/service/order/domain"
)

const serviceName = "order-runner"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config file")
	orders := flag.Int("orders", 1, "number of bulk orders to run")
	parallel := flag.Bool("parallel", false, "run orders concurrently")
	mode := flag.String("mode", "execute", "script per order: execute | cancel | reverse | mixed")
	flag.Parse()

	logger.Init(serviceName)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	orderClient, err := buildClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build order client")
	}

	ctx := context.Background()
	if *parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < *orders; i++ {
			i := i
			g.Go(func() error {
				return runScript(gctx, orderClient, scriptMode(*mode, i))
			})
		}
		if err := g.Wait(); err != nil {
			log.Fatal().Err(err).Msg("order script failed")
		}
	} else {
		for i := 0; i < *orders; i++ {
			if err := runScript(ctx, orderClient, scriptMode(*mode, i)); err != nil {
				log.Fatal().Err(err).Msg("order script failed")
			}
		}
	}
	log.Info().Int("orders", *orders).Msg("all order scripts completed")
}

// buildClient 组装故障转移客户端。端点列表为空时退回 Nacos 发现，
// 再不行就用本地默认地址。
func buildClient(cfg *config.Config) (*client.BulkOrderClient, error) {
	if len(cfg.Client.Endpoints) == 0 {
		address := "http://localhost:18081"
		if cfg.Infra.NacosAddrs != "" {
			naming, err := nacos.NewClient(cfg.Infra.NacosAddrs, cfg.Infra.NacosNamespace, cfg.Infra.NacosGroup)
			if err != nil {
				return nil, err
			}
			ip, port, err := naming.DiscoverServiceInstance("order-service")
			if err != nil {
				return nil, err
			}
			address = fmt.Sprintf("http://%s:%d", ip, port)
		}
		cfg.Client.Endpoints = []config.Endpoint{{Name: "discovered", Address: address}}
	}

	selector, err := client.NewSelector(cfg.Client)
	if err != nil {
		return nil, err
	}
	tracer := otel.Tracer(serviceName)
	dispatcher := client.NewDispatcher(httpclient.NewClient(tracer), selector, tracer, cfg.Client)
	return client.NewBulkOrderClient(dispatcher), nil
}

func scriptMode(mode string, i int) string {
	if mode != "mixed" {
		return mode
	}
	return []string{"execute", "cancel", "reverse"}[i%3]
}

// runScript 跑一个完整的大订单脚本。
func runScript(ctx context.Context, c *client.BulkOrderClient, mode string) error {
	orderID := uuid.New().String()
	scriptLog := log.With().Str("order_id", orderID).Str("mode", mode).Logger()

	if err := c.Create(ctx, orderID); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	count := rand.Intn(3) + 1
	for i := 0; i < count; i++ {
		asset := client.RandomAsset()
		added, err := c.AddOrder(ctx, orderID, asset)
		if err != nil {
			return fmt.Errorf("add %s: %w", asset.Name, err)
		}
		scriptLog.Info().Str("asset", asset.Name).Int64("quantity", asset.Quantity).Bool("added", added).Msg("sub-order submitted")
	}

	switch mode {
	case "cancel":
		state, err := c.Cancel(ctx, orderID)
		if err != nil {
			return fmt.Errorf("cancel: %w", err)
		}
		scriptLog.Info().Str("state", string(state)).Msg("order canceled before close")
		return expectState(state, domain.StateCanceled)

	case "reverse":
		state, err := c.Close(ctx, orderID)
		if err != nil {
			return fmt.Errorf("close: %w", err)
		}
		if state != domain.StateExecuted {
			scriptLog.Warn().Str("state", string(state)).Msg("close did not execute, skipping reversal")
			return nil
		}
		state, err = c.Cancel(ctx, orderID)
		if err != nil {
			return fmt.Errorf("cancel executed: %w", err)
		}
		scriptLog.Info().Str("state", string(state)).Msg("executed order reversed")
		return expectState(state, domain.StateReversed)

	default: // execute
		state, err := c.Close(ctx, orderID)
		if err != nil {
			return fmt.Errorf("close: %w", err)
		}
		booked, err := c.GetBookedOrders(ctx, orderID)
		if err != nil {
			return fmt.Errorf("booked: %w", err)
		}
		scriptLog.Info().Str("state", string(state)).Int("booked", len(booked)).Msg("order closed")
		return nil
	}
}

func expectState(got, want domain.State) error {
	if got != want {
		return fmt.Errorf("unexpected final state %s, want %s", got, want)
	}
	return nil
}
