package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus описывает жизненный цикл накладной.
type InvoiceStatus string

const (
	// InvoiceStatusCreated — накладная выставлена, товар зарезервирован, ждём оплату.
	InvoiceStatusCreated InvoiceStatus = "CREATED"
	// InvoiceStatusCancelled — накладная отменена, резерв снят. Конечный статус.
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	// InvoiceStatusPaid — оплата получена, товар списан со склада.
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusRefund — деньги возвращены, товар вернулся на склад.
	InvoiceStatusRefund InvoiceStatus = "REFUND"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusCreated, InvoiceStatusCancelled, InvoiceStatusPaid, InvoiceStatusRefund:
		return true
	default:
		return false
	}
}

// Active сообщает, блокирует ли накладная в этом статусе выставление новой по тому же заказу.
func (s InvoiceStatus) Active() bool {
	return s == InvoiceStatusCreated || s == InvoiceStatusPaid
}

// CanTransitionTo описывает допустимые переходы:
// CREATED → PAID → REFUND и CREATED → CANCELLED.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusCreated:
		return next == InvoiceStatusPaid || next == InvoiceStatusCancelled
	case InvoiceStatusPaid:
		return next == InvoiceStatusRefund
	default:
		return false
	}
}

// InvoiceType различает приходные и расходные накладные.
type InvoiceType string

const (
	// InvoiceTypeIncome — закупка товара (приход на склад).
	InvoiceTypeIncome InvoiceType = "INCOME"
	// InvoiceTypeOutcome — продажа товара по заказу (расход со склада).
	InvoiceTypeOutcome InvoiceType = "OUTCOME"
)

// LineItem — снимок цены и названия товара на момент выставления накладной.
// После создания накладной не меняется, даже если ценовая позиция обновилась.
type LineItem struct {
	PriceItemID int64
	ProductID   int64
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int32
}

// Subtotal возвращает UnitPrice × Quantity без округления.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

// Invoice агрегирует состояние накладной и её позиции.
type Invoice struct {
	ID            int64
	OrderID       int64
	InvoiceNumber string
	Type          InvoiceType
	Status        InvoiceStatus
	LineItems     []LineItem
	Total         decimal.Decimal
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// SumLineItems складывает подытоги позиций точной десятичной арифметикой.
func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты накладной и возвращает список замечаний.
func (i *Invoice) ValidateInvariants() []error {
	var errs []error

	if i.OrderID <= 0 {
		errs = append(errs, ErrOrderIDRequired)
	}
	if len(i.LineItems) == 0 {
		errs = append(errs, ErrLineItemsRequired)
	}

	for _, item := range i.LineItems {
		if item.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrUnitPriceInvalid)
		}
	}
	if !i.Total.IsPositive() {
		errs = append(errs, ErrTotalNotPositive)
	}
	// Сумма сравнивается по значению: 120 и 120.00 равны.
	if !SumLineItems(i.LineItems).Equal(i.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// Expired сообщает, что неоплаченная накладная просрочена к моменту cutoff.
func (i *Invoice) Expired(cutoff time.Time) bool {
	return i.Status == InvoiceStatusCreated && i.ExpiresAt.Before(cutoff)
}
