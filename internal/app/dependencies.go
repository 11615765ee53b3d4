package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/accountancy/internal/health"
	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
	"github.com/vladislavdragonenkov/accountancy/internal/resilience"
	"github.com/vladislavdragonenkov/accountancy/internal/service/product"
	"github.com/vladislavdragonenkov/accountancy/internal/service/stock"
	"github.com/vladislavdragonenkov/accountancy/internal/storage/memory"
	"github.com/vladislavdragonenkov/accountancy/internal/storage/postgres"
)

const (
	checkTimeout = 2 * time.Second

	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// runtimeDependencies содержит хранилища выбранного драйвера и функцию их закрытия.
type runtimeDependencies struct {
	invoiceRepo    domain.InvoiceRepository
	priceItemRepo  domain.PriceItemRepository
	purchasesRepo  domain.PurchasedCostsRepository
	outboxRepo     domain.OutboxRepository
	timelineRepo   domain.TimelineRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			invoiceRepo:   memory.NewInvoiceRepository(),
			priceItemRepo: memory.NewPriceItemRepository(),
			purchasesRepo: memory.NewPurchasedCostsRepository(),
			outboxRepo:    memory.NewOutboxRepository(),
			timelineRepo:  memory.NewTimelineRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
				return nil
			}),
		}, nil
	case StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return runtimeDependencies{}, errors.New("postgres dsn is required")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres migrations applied")
	}
	logger.Info("using postgres storage")

	return runtimeDependencies{
		invoiceRepo:    postgres.NewInvoiceRepository(store),
		priceItemRepo:  postgres.NewPriceItemRepository(store),
		purchasesRepo:  postgres.NewPurchasedCostsRepository(store),
		outboxRepo:     postgres.NewOutboxRepository(store),
		timelineRepo:   postgres.NewTimelineRepository(store),
		storageChecker: healthcheck.NewPingChecker("storage", checkTimeout, true, store.Ping),
		closeFn:        store.Close,
	}, nil
}

// buildStockGateway возвращает HTTP-клиент склада за circuit breaker или mock для dev-режима.
func buildStockGateway(cfg Config, m *metrics.WorkflowMetrics, logger *log.Entry) domain.StockGateway {
	if cfg.StoreServiceURL == "" {
		logger.Warn("store service url is not set, using mock stock gateway")
		return stock.NewMockGateway()
	}
	breaker := resilience.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, logger.WithField("breaker", "store"))
	return stock.NewBreakerGateway(
		stock.NewHTTPGateway(cfg.StoreServiceURL, cfg.GatewayTimeout),
		breaker,
		resilience.DefaultRetryConfig(),
		m,
	)
}

// buildProductDirectory возвращает HTTP-клиент каталога товаров или mock с генерацией названий.
func buildProductDirectory(cfg Config, logger *log.Entry) domain.ProductDirectory {
	if cfg.ProductServiceURL == "" {
		logger.Warn("product service url is not set, using mock product directory")
		directory := product.NewMockDirectory(nil)
		directory.Fallback = true
		return directory
	}
	return product.NewHTTPDirectory(cfg.ProductServiceURL, cfg.GatewayTimeout)
}

// initRedis подключает Redis для распределённой блокировки планировщика.
// Пустой URL отключает Redis.
func initRedis(cfg Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func closeRedis(client *redis.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
