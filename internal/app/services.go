package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
	"github.com/vladislavdragonenkov/accountancy/internal/service/expiry"
	"github.com/vladislavdragonenkov/accountancy/internal/service/invoice"
	"github.com/vladislavdragonenkov/accountancy/internal/service/pricing"
	"github.com/vladislavdragonenkov/accountancy/internal/service/purchase"
)

type services struct {
	catalog  *pricing.Catalog
	ledger   *purchase.Ledger
	workflow *invoice.Workflow
}

func newServices(cfg Config, deps runtimeDependencies, m *metrics.WorkflowMetrics, logger *log.Entry) services {
	catalog := pricing.NewCatalog(deps.priceItemRepo,
		pricing.WithMaxValue(cfg.PriceMaxValue),
		pricing.WithLogger(log.WithField("component", "price-catalog")),
	)
	ledger := purchase.NewLedger(deps.purchasesRepo, deps.priceItemRepo, log.WithField("component", "purchased-costs"))

	opts := []invoice.Option{
		invoice.WithTTLDays(cfg.InvoiceTTLDays),
		invoice.WithExpiryBatchSize(cfg.InvoiceExpiryBatchSize),
		invoice.WithLogger(log.WithField("component", "invoice-workflow")),
	}
	if m != nil {
		opts = append(opts, invoice.WithMetrics(m))
	}
	workflow := invoice.NewWorkflow(invoice.Dependencies{
		Invoices: deps.invoiceRepo,
		Prices:   catalog,
		Products: buildProductDirectory(cfg, logger),
		Stock:    buildStockGateway(cfg, m, logger),
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
	}, opts...)

	return services{catalog: catalog, ledger: ledger, workflow: workflow}
}

// ExpireOnce выполняет один проход отмены накладных с ExpiresAt раньше cutoff
// без запуска серверов. Нулевой cutoff означает текущее время.
// Проход идёт через expiry.Scheduler: при заданном ACCOUNTANCY_REDIS_URL берётся та же
// блокировка, что и у работающего сервиса.
func ExpireOnce(ctx context.Context, cfg Config, cutoff time.Time) (int, error) {
	logger := log.WithField("component", "expire-once")
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	redisClient, err := initRedis(cfg)
	if err != nil {
		return 0, err
	}
	defer closeRedis(redisClient, logger)

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer deps.close(logger)

	var locker expiry.Locker
	if redisClient != nil {
		locker = expiry.NewRedisLocker(redisClient, logger)
	}
	svc := newServices(cfg, deps, nil, logger)
	return expireOnce(ctx, cfg, svc.workflow, cutoff, locker, logger)
}

func expireOnce(ctx context.Context, cfg Config, expirer expiry.Expirer, cutoff time.Time, locker expiry.Locker, logger *log.Entry) (int, error) {
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}
	opts := []expiry.Option{
		expiry.WithLogger(logger),
		expiry.WithClock(func() time.Time { return cutoff }),
	}
	if locker != nil {
		opts = append(opts, expiry.WithLocker(locker, expiry.DefaultLockTTL))
	}
	scheduler, err := expiry.NewScheduler(expirer, cfg.InvoiceExpiryCron, opts...)
	if err != nil {
		return 0, err
	}
	return scheduler.RunOnce(ctx)
}
