package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/service/invoice"
)

// InvoiceCreator выставляет накладную по заказу.
type InvoiceCreator interface {
	CreateOutcomeInvoice(ctx context.Context, orderID int64, items []invoice.LineItemRequest) (domain.Invoice, error)
}

// NewOrderPlacedHandler возвращает обработчик событий OrderPlaced.
//
// Повторная доставка уже обработанного заказа считается успехом. Ошибки
// данных и бизнес-отказы помечаются как Permanent и уходят в DLQ без повторов.
func NewOrderPlacedHandler(creator InvoiceCreator) MessageHandler {
	logger := log.WithField("component", "order-placed-handler")

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderPlaced(message)
		if err != nil {
			return Permanent(err)
		}
		if event.EventType != "" && event.EventType != EventTypeOrderPlaced {
			logger.WithField("event_type", event.EventType).Debug("skipping unrelated order event")
			return nil
		}

		items := make([]invoice.LineItemRequest, 0, len(event.Items))
		for _, item := range event.Items {
			items = append(items, invoice.LineItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		created, err := creator.CreateOutcomeInvoice(ctx, event.OrderID, items)
		switch {
		case err == nil:
			logger.WithFields(log.Fields{
				"order_id":   event.OrderID,
				"invoice_id": created.ID,
			}).Info("invoice created from order event")
			return nil
		case errors.Is(err, domain.ErrOrderAlreadyConfirmed):
			logger.WithField("order_id", event.OrderID).Debug("order already has active invoice")
			return nil
		case errors.Is(err, domain.ErrValidation),
			errors.Is(err, domain.ErrInvalidProducts),
			errors.Is(err, domain.ErrInsufficientStock):
			return Permanent(fmt.Errorf("order %d: %w", event.OrderID, err))
		default:
			return fmt.Errorf("order %d: %w", event.OrderID, err)
		}
	}
}
