// Package pricing хранит закупочные цены и наценки товаров и считает цену продажи.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// DefaultMaxValue — верхняя граница цены и наценки по умолчанию.
var DefaultMaxValue = decimal.NewFromInt(100_000_000)

// Catalog управляет ценовыми позициями.
type Catalog struct {
	items    domain.PriceItemRepository
	maxValue decimal.Decimal
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Catalog.
type Option func(*Catalog)

// WithMaxValue задаёт максимум для цены и наценки.
func WithMaxValue(max decimal.Decimal) Option {
	return func(c *Catalog) {
		if max.IsPositive() {
			c.maxValue = max
		}
	}
}

// WithLogger задаёт логгер каталога.
func WithLogger(logger *log.Entry) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCatalog создаёт каталог поверх репозитория ценовых позиций.
func NewCatalog(items domain.PriceItemRepository, opts ...Option) *Catalog {
	c := &Catalog{
		items:    items,
		maxValue: DefaultMaxValue,
		logger:   log.New().WithField("component", "price-catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePriceItem заводит цену для товара. У товара может быть только одна позиция.
func (c *Catalog) CreatePriceItem(_ context.Context, productID int64, price, markup decimal.Decimal) (domain.PriceItem, error) {
	if productID <= 0 {
		return domain.PriceItem{}, fmt.Errorf("%w: product_id must be positive", domain.ErrValidation)
	}
	if err := c.validate(price, markup); err != nil {
		return domain.PriceItem{}, err
	}

	now := c.now()
	item, err := c.items.Create(domain.PriceItem{
		ProductID: productID,
		Price:     price,
		Markup:    markup,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.PriceItem{}, fmt.Errorf("create price item: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"price_item_id": item.ID,
		"product_id":    productID,
	}).Info("price item created")
	return item, nil
}

// UpdatePriceItem меняет цену и наценку. Уже выставленные накладные не пересчитываются.
func (c *Catalog) UpdatePriceItem(_ context.Context, id int64, price, markup decimal.Decimal) (domain.PriceItem, error) {
	if err := c.validate(price, markup); err != nil {
		return domain.PriceItem{}, err
	}

	item, err := c.items.Update(domain.PriceItem{
		ID:        id,
		Price:     price,
		Markup:    markup,
		UpdatedAt: c.now(),
	})
	if err != nil {
		return domain.PriceItem{}, fmt.Errorf("update price item %d: %w", id, err)
	}

	c.logger.WithField("price_item_id", id).Info("price item updated")
	return item, nil
}

// GetPriceItem возвращает позицию по ID.
func (c *Catalog) GetPriceItem(_ context.Context, id int64) (domain.PriceItem, error) {
	item, err := c.items.Get(id)
	if err != nil {
		return domain.PriceItem{}, fmt.Errorf("get price item %d: %w", id, err)
	}
	return item, nil
}

// GetPricesByProductIDs возвращает позиции найденных товаров.
// При applyMarkup в Price подставляется цена продажи price × (1 + markup).
func (c *Catalog) GetPricesByProductIDs(_ context.Context, productIDs []int64, applyMarkup bool) ([]domain.PriceItem, error) {
	items, err := c.items.ListByProductIDs(productIDs)
	if err != nil {
		return nil, fmt.Errorf("list price items: %w", err)
	}
	if !applyMarkup {
		return items, nil
	}

	priced := make([]domain.PriceItem, len(items))
	for i, item := range items {
		item.Price = item.SalePrice()
		priced[i] = item
	}
	return priced, nil
}

func (c *Catalog) validate(price, markup decimal.Decimal) error {
	if errs := domain.ValidatePriceAndMarkup(price, markup, c.maxValue); len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(errs...))
	}
	return nil
}
