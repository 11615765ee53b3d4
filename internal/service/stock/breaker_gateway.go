package stock

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
	"github.com/vladislavdragonenkov/accountancy/internal/resilience"
)

// BreakerGateway оборачивает StockGateway: временные сбои повторяются,
// серия отказов размыкает цепь, и вызовы сразу завершаются UpstreamError.
type BreakerGateway struct {
	next    domain.StockGateway
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *metrics.WorkflowMetrics
}

// NewBreakerGateway создаёт обёртку. metrics может быть nil.
func NewBreakerGateway(next domain.StockGateway, breaker *resilience.CircuitBreaker, retry resilience.RetryConfig, m *metrics.WorkflowMetrics) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: breaker, retry: retry, metrics: m}
}

func (g *BreakerGateway) Reserve(ctx context.Context, priceItemID int64, qty int32) error {
	return g.execute(ctx, "reserve", func(ctx context.Context) error {
		return g.next.Reserve(ctx, priceItemID, qty)
	})
}

func (g *BreakerGateway) Release(ctx context.Context, priceItemID int64, qty int32) error {
	return g.execute(ctx, "release", func(ctx context.Context) error {
		return g.next.Release(ctx, priceItemID, qty)
	})
}

func (g *BreakerGateway) ConfirmConsumption(ctx context.Context, priceItemID int64, qty int32) error {
	return g.execute(ctx, "consume", func(ctx context.Context) error {
		return g.next.ConfirmConsumption(ctx, priceItemID, qty)
	})
}

func (g *BreakerGateway) Restock(ctx context.Context, priceItemID int64, qty int32) error {
	return g.execute(ctx, "restock", func(ctx context.Context) error {
		return g.next.Restock(ctx, priceItemID, qty)
	})
}

func (g *BreakerGateway) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := g.breaker.Execute("store."+op, func() error {
		return resilience.Retry(ctx, g.retry, nil, "store."+op, fn)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &domain.UpstreamError{Service: "store", Op: op, Err: err}
	}
	if g.metrics != nil {
		g.metrics.RecordGatewayCall(op, gatewayResult(err))
	}
	return err
}

func gatewayResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "rejected"
	default:
		return "error"
	}
}

var _ domain.StockGateway = (*BreakerGateway)(nil)
