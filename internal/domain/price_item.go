package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceItem хранит закупочную цену товара и наценку.
type PriceItem struct {
	ID        int64
	ProductID int64
	Price     decimal.Decimal
	Markup    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SalePrice возвращает цену продажи: price × (1 + markup).
func (p PriceItem) SalePrice() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(1).Add(p.Markup))
}

// ValidatePriceAndMarkup проверяет, что цена и наценка лежат в [0, max].
func ValidatePriceAndMarkup(price, markup, max decimal.Decimal) []error {
	var errs []error
	if price.IsNegative() || price.GreaterThan(max) {
		errs = append(errs, ErrPriceInvalid)
	}
	if markup.IsNegative() || markup.GreaterThan(max) {
		errs = append(errs, ErrMarkupInvalid)
	}
	return errs
}
