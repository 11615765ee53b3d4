// Package purchase ведёт журнал закупок (purchased costs).
package purchase

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// Ledger добавляет записи о закупках и отдаёт их за период.
type Ledger struct {
	entries domain.PurchasedCostsRepository
	prices  domain.PriceItemRepository
	logger  *log.Entry
	now     func() time.Time
}

// NewLedger создаёт журнал закупок.
func NewLedger(entries domain.PurchasedCostsRepository, prices domain.PriceItemRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "purchase-ledger")
	}
	return &Ledger{
		entries: entries,
		prices:  prices,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record фиксирует закупку. Нулевая дата заменяется текущим временем.
func (l *Ledger) Record(_ context.Context, priceItemID int64, quantity int32, dateOfPurchase time.Time) (domain.PurchasedCosts, error) {
	if quantity <= 0 {
		return domain.PurchasedCosts{}, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrQuantityInvalid)
	}
	if _, err := l.prices.Get(priceItemID); err != nil {
		return domain.PurchasedCosts{}, fmt.Errorf("record purchase: %w", err)
	}
	if dateOfPurchase.IsZero() {
		dateOfPurchase = l.now()
	}

	entry, err := l.entries.Append(domain.PurchasedCosts{
		PriceItemID:    priceItemID,
		Quantity:       quantity,
		DateOfPurchase: dateOfPurchase.UTC(),
	})
	if err != nil {
		return domain.PurchasedCosts{}, fmt.Errorf("append purchased costs: %w", err)
	}

	l.logger.WithFields(log.Fields{
		"purchased_costs_id": entry.ID,
		"price_item_id":      priceItemID,
		"quantity":           quantity,
	}).Info("purchase recorded")
	return entry, nil
}

// Query возвращает закупки за период [from, to] включительно.
func (l *Ledger) Query(_ context.Context, from, to time.Time) ([]domain.PurchasedCosts, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: dateFrom is after dateTo", domain.ErrValidation)
	}
	entries, err := l.entries.ListBetween(from, to)
	if err != nil {
		return nil, fmt.Errorf("query purchased costs: %w", err)
	}
	return entries, nil
}
