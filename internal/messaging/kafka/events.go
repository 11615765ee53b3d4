package kafka

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeOrderPlaced — заказ оформлен, по нему нужно выставить накладную.
	EventTypeOrderPlaced EventType = "OrderPlaced"
)

// Topics для Kafka
const (
	TopicInvoiceEvents   = "drugstore.accountancy.invoice.events"
	TopicOrderEvents     = "drugstore.order.events"
	TopicDeadLetterQueue = "drugstore.accountancy.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderItem описывает позицию заказа в событии OrderPlaced.
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// OrderPlacedEvent публикуется сервисом заказов.
type OrderPlacedEvent struct {
	EventType EventType   `json:"event_type,omitempty"`
	OrderID   int64       `json:"order_id"`
	Items     []OrderItem `json:"items"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// NewOrderPlacedEvent создаёт событие оформления заказа.
func NewOrderPlacedEvent(orderID int64, items []OrderItem) OrderPlacedEvent {
	return OrderPlacedEvent{
		EventType: EventTypeOrderPlaced,
		OrderID:   orderID,
		Items:     items,
		Timestamp: time.Now().UTC(),
	}
}

// InvoiceEventEnvelope оборачивает события накладных в TopicInvoiceEvents.
type InvoiceEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// permanentError помечает ошибку, которую бессмысленно повторять.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку обработки: consumer не будет её повторять и сразу отправит в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, что ошибка помечена как неповторяемая.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
