package domain

import "time"

// PurchasedCosts — запись журнала закупок. Только добавляется, не меняется.
type PurchasedCosts struct {
	ID             int64
	PriceItemID    int64
	Quantity       int32
	DateOfPurchase time.Time
}
