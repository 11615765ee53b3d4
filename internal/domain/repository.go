package domain

import "time"

// InvoiceRepository описывает требования к хранилищу накладных.
// Позиции накладной хранятся вместе с ней и загружаются сразу.
type InvoiceRepository interface {
	// Create сохраняет новую накладную и присваивает ей ID.
	// Возвращает ErrOrderAlreadyConfirmed, если по заказу уже есть активная накладная.
	Create(invoice Invoice) (Invoice, error)
	// Get возвращает накладную по идентификатору или ErrInvoiceNotFound.
	Get(id int64) (Invoice, error)
	// FindActiveByOrder возвращает CREATED/PAID накладную заказа или ErrInvoiceNotFound.
	FindActiveByOrder(orderID int64) (Invoice, error)
	// ListByOrder возвращает все накладные заказа, новые первыми.
	ListByOrder(orderID int64) ([]Invoice, error)
	// ListExpired возвращает до limit накладных в статусе CREATED с ExpiresAt < cutoff.
	ListExpired(cutoff time.Time, limit int) ([]Invoice, error)
	// Save применяет обновления к накладной с учётом optimistic locking.
	Save(invoice Invoice) error
}

// PriceItemRepository хранит ценовые позиции.
type PriceItemRepository interface {
	// Create возвращает ErrPriceItemExists, если у товара уже есть позиция.
	Create(item PriceItem) (PriceItem, error)
	Get(id int64) (PriceItem, error)
	Update(item PriceItem) (PriceItem, error)
	// ListByProductIDs возвращает позиции для найденных товаров, в порядке ID.
	ListByProductIDs(productIDs []int64) ([]PriceItem, error)
}

// PurchasedCostsRepository хранит журнал закупок, только добавление и выборка по датам.
type PurchasedCostsRepository interface {
	Append(entry PurchasedCosts) (PurchasedCosts, error)
	// ListBetween возвращает записи с from <= DateOfPurchase <= to, по возрастанию даты.
	ListBetween(from, to time.Time) ([]PurchasedCosts, error)
}
