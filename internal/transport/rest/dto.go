package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

type productItemRequest struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	Quantity  int32 `json:"quantity" validate:"gt=0"`
}

type createInvoiceRequest struct {
	OrderID      int64                `json:"orderId" validate:"gt=0"`
	ProductItems []productItemRequest `json:"productItems" validate:"required,min=1,dive"`
}

type createPriceItemRequest struct {
	ProductID int64           `json:"productId" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Markup    decimal.Decimal `json:"markup" validate:"gte=0"`
}

type updatePriceItemRequest struct {
	Price  decimal.Decimal `json:"price" validate:"gte=0"`
	Markup decimal.Decimal `json:"markup" validate:"gte=0"`
}

type recordPurchaseRequest struct {
	PriceItemID    int64      `json:"priceItemId" validate:"gt=0"`
	Quantity       int32      `json:"quantity" validate:"gt=0"`
	DateOfPurchase *time.Time `json:"dateOfPurchase,omitempty"`
}

type lineItemResponse struct {
	PriceItemID int64  `json:"priceItemId"`
	ProductID   int64  `json:"productId"`
	Name        string `json:"name"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int32  `json:"quantity"`
}

type invoiceResponse struct {
	ID            int64              `json:"id"`
	OrderID       int64              `json:"orderId"`
	InvoiceNumber string             `json:"invoiceNumber"`
	Type          string             `json:"type"`
	Status        string             `json:"status"`
	Total         string             `json:"total"`
	LineItems     []lineItemResponse `json:"productItems"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	ExpiresAt     time.Time          `json:"expiresAt"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type priceItemResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Price     string    `json:"price"`
	Markup    string    `json:"markup"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type salePriceResponse struct {
	PriceItemID int64  `json:"priceItemId"`
	ProductID   int64  `json:"productId"`
	Price       string `json:"price"`
}

type purchasedCostsResponse struct {
	ID             int64     `json:"id"`
	PriceItemID    int64     `json:"priceItemId"`
	Quantity       int32     `json:"quantity"`
	DateOfPurchase time.Time `json:"dateOfPurchase"`
}

// money печатает сумму минимум с двумя знаками после запятой, не округляя более точные значения.
func money(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}

func toInvoiceResponse(inv domain.Invoice) invoiceResponse {
	lines := make([]lineItemResponse, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		lines = append(lines, lineItemResponse{
			PriceItemID: item.PriceItemID,
			ProductID:   item.ProductID,
			Name:        item.Name,
			UnitPrice:   money(item.UnitPrice),
			Quantity:    item.Quantity,
		})
	}
	return invoiceResponse{
		ID:            inv.ID,
		OrderID:       inv.OrderID,
		InvoiceNumber: inv.InvoiceNumber,
		Type:          string(inv.Type),
		Status:        string(inv.Status),
		Total:         money(inv.Total),
		LineItems:     lines,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		ExpiresAt:     inv.ExpiresAt,
	}
}

func toPriceItemResponse(item domain.PriceItem) priceItemResponse {
	return priceItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Price:     money(item.Price),
		Markup:    item.Markup.String(),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}
