// Package stock реализует взаимодействие со складом (store service):
// HTTP-клиент, обёртку с circuit breaker и in-memory заглушку.
package stock

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/upstream"
)

const basePath = "/api/v1/store/stock"

type stockRequest struct {
	PriceItemID int64 `json:"priceItemId"`
	Quantity    int32 `json:"quantity"`
}

// HTTPGateway вызывает store service по JSON/HTTP.
type HTTPGateway struct {
	client *upstream.Client
}

// NewHTTPGateway создаёт клиента склада с ограничением времени на вызов.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{client: upstream.NewClient("store", baseURL, timeout)}
}

func (g *HTTPGateway) Reserve(ctx context.Context, priceItemID int64, qty int32) error {
	return g.call(ctx, "reserve", priceItemID, qty)
}

func (g *HTTPGateway) Release(ctx context.Context, priceItemID int64, qty int32) error {
	return g.call(ctx, "release", priceItemID, qty)
}

func (g *HTTPGateway) ConfirmConsumption(ctx context.Context, priceItemID int64, qty int32) error {
	return g.call(ctx, "consume", priceItemID, qty)
}

func (g *HTTPGateway) Restock(ctx context.Context, priceItemID int64, qty int32) error {
	return g.call(ctx, "restock", priceItemID, qty)
}

func (g *HTTPGateway) call(ctx context.Context, op string, priceItemID int64, qty int32) error {
	status, err := g.client.Do(ctx, op, http.MethodPost, basePath+"/"+op,
		stockRequest{PriceItemID: priceItemID, Quantity: qty}, nil)
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict && op == "reserve":
		return fmt.Errorf("price item %d: %w", priceItemID, domain.ErrInsufficientStock)
	default:
		return g.client.StatusError(op, status)
	}
}

var _ domain.StockGateway = (*HTTPGateway)(nil)
