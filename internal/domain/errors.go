package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — некорректный запрос (пустые позиции, неположительное количество и т.п.).
	ErrValidation = errors.New("validation failed")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствия хотя бы одной позиции в накладной.
	ErrLineItemsRequired = errors.New("invoice must contain at least one line item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrUnitPriceInvalid = errors.New("unit price must be non-negative")
	// Ошибка неположительной суммы накладной.
	ErrTotalNotPositive = errors.New("invoice total must be positive")
	// Ошибка несоответствия суммы накладной и сумм позиций.
	ErrTotalMismatch = errors.New("invoice total does not match line items sum")
	// ErrPriceInvalid — цена отрицательная или превышает допустимый максимум.
	ErrPriceInvalid = errors.New("price must be between 0 and the configured maximum")
	// ErrMarkupInvalid — наценка отрицательная или превышает допустимый максимум.
	ErrMarkupInvalid = errors.New("markup must be between 0 and the configured maximum")

	// ErrInvoiceNotFound возвращается, если накладная не найдена в репозитории.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrPriceItemNotFound возвращается, если ценовая позиция не найдена.
	ErrPriceItemNotFound = errors.New("price item not found")
	// ErrPriceItemExists — у товара уже есть ценовая позиция.
	ErrPriceItemExists = errors.New("price item for product already exists")

	// ErrOrderAlreadyConfirmed — для заказа уже есть активная накладная (CREATED или PAID).
	ErrOrderAlreadyConfirmed = errors.New("order already confirmed")
	// ErrInvalidInvoiceStatus — переход недопустим из текущего статуса накладной.
	ErrInvalidInvoiceStatus = errors.New("invalid status")
	// ErrInvoiceNotPaid — возврат возможен только для оплаченной накладной.
	ErrInvoiceNotPaid = errors.New("not paid")
	// ErrInvalidProducts — в заказе есть товары без цены или неизвестные каталогу.
	ErrInvalidProducts = errors.New("order contains invalid products")

	// ErrInvoiceVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrInvoiceVersionConflict = errors.New("invoice version conflict")
	// ErrInsufficientStock — склад отказал в резерве (бизнес-ошибка).
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// UpstreamError описывает сбой внешнего сервиса (склад, каталог товаров).
type UpstreamError struct {
	Service string
	Op      string
	// Temporary выставляется для таймаутов и сетевых сбоев, которые имеет смысл повторить.
	Temporary bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrInvoiceVersionConflict)
}

// IsUpstream сообщает, что ошибка пришла от внешнего сервиса.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

// IsTemporary сообщает, что сбой внешнего сервиса временный (таймаут, обрыв соединения).
func IsTemporary(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Temporary
	}
	return false
}
