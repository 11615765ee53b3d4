package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

const reasonExpired = "expired"

// stockCall выполняет операцию склада над одной позицией накладной.
type stockCall func(ctx context.Context, priceItemID int64, qty int32) error

// transition описывает перевод накладной в новый статус и сопутствующий вызов склада.
type transition struct {
	step   domain.WorkflowStep
	target domain.InvoiceStatus
	event  string
	reason string
	// check проверяет предусловие на актуальной версии накладной.
	check func(domain.Invoice) error

	gatewayStep domain.WorkflowStep
	gateway     stockCall
	// undo откатывает вызов склада для уже обработанных позиций, если дальше случился сбой.
	undo stockCall
}

// sequence выполняет вызовы склада по очереди и останавливается на первой ошибке.
func sequence(calls ...stockCall) stockCall {
	return func(ctx context.Context, priceItemID int64, qty int32) error {
		for _, call := range calls {
			if err := call(ctx, priceItemID, qty); err != nil {
				return err
			}
		}
		return nil
	}
}

func (w *Workflow) cancelTransition() transition {
	return transition{
		step:   domain.WorkflowStepCancel,
		target: domain.InvoiceStatusCancelled,
		event:  domain.EventInvoiceCancelled,
		check: func(inv domain.Invoice) error {
			if inv.Status != domain.InvoiceStatusCreated {
				return domain.ErrInvalidInvoiceStatus
			}
			return nil
		},
		gatewayStep: domain.WorkflowStepRelease,
		gateway:     w.stock.Release,
		undo:        w.stock.Reserve,
	}
}

func (w *Workflow) expireTransition(cutoff time.Time) transition {
	t := w.cancelTransition()
	t.step = domain.WorkflowStepExpire
	t.event = domain.EventInvoiceExpired
	t.reason = reasonExpired
	t.check = func(inv domain.Invoice) error {
		if !inv.Expired(cutoff) {
			return domain.ErrInvalidInvoiceStatus
		}
		return nil
	}
	return t
}

func (w *Workflow) transition(ctx context.Context, id int64, t transition) (domain.Invoice, error) {
	inv, err := w.invoices.Get(id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return w.apply(ctx, inv, t)
}

// apply сохраняет новый статус, затем вызывает склад по каждой позиции.
// Если склад отказал, статус возвращается обратно и операция завершается ошибкой.
func (w *Workflow) apply(ctx context.Context, inv domain.Invoice, t transition) (domain.Invoice, error) {
	if err := t.check(inv); err != nil {
		return domain.Invoice{}, err
	}

	previous := inv.Status
	if err := w.updateStatus(&inv, t.target, t.check); err != nil {
		w.recordFailure(t.step)
		return domain.Invoice{}, err
	}

	for i, line := range inv.LineItems {
		err := t.gateway(ctx, line.PriceItemID, line.Quantity)
		if err == nil {
			continue
		}

		w.logger.WithError(err).WithFields(log.Fields{
			"invoice_id":    inv.ID,
			"price_item_id": line.PriceItemID,
			"step":          t.gatewayStep,
		}).Warn("stock call failed, reverting invoice status")
		w.recordFailure(t.gatewayStep)

		w.undoLines(ctx, inv, inv.LineItems[:i], t)
		w.revertStatus(&inv, previous, t.target)
		return domain.Invoice{}, fmt.Errorf("%s invoice %d: %w", t.gatewayStep, inv.ID, err)
	}

	w.logger.WithFields(log.Fields{
		"invoice_id": inv.ID,
		"order_id":   inv.OrderID,
		"status":     inv.Status,
	}).Info("invoice status changed")

	if t.step == domain.WorkflowStepExpire {
		w.recordTransition(reasonExpired)
	} else {
		w.recordTransition(string(t.target))
	}

	payload := map[string]interface{}{
		"previous_status": string(previous),
	}
	if t.reason != "" {
		payload["reason"] = t.reason
	}
	w.emitEvent(inv, t.event, payload)
	return inv, nil
}

func (w *Workflow) undoLines(ctx context.Context, inv domain.Invoice, lines []domain.LineItem, t transition) {
	if len(lines) == 0 {
		return
	}
	for _, line := range lines {
		if err := t.undo(ctx, line.PriceItemID, line.Quantity); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"invoice_id":    inv.ID,
				"price_item_id": line.PriceItemID,
			}).Error("undo stock call failed")
		}
	}
}

// revertStatus возвращает накладную в previous, если её никто не успел изменить.
func (w *Workflow) revertStatus(inv *domain.Invoice, previous, expected domain.InvoiceStatus) {
	err := w.updateStatus(inv, previous, func(current domain.Invoice) error {
		if current.Status != expected {
			return domain.ErrInvalidInvoiceStatus
		}
		return nil
	})
	if err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"invoice_id": inv.ID,
			"status":     previous,
		}).Error("failed to revert invoice status")
	}
}

// updateStatus сохраняет новый статус с проверкой версии.
// При конфликте версий накладная перечитывается, предусловие проверяется заново,
// попытки повторяются с экспоненциальной задержкой.
func (w *Workflow) updateStatus(inv *domain.Invoice, newStatus domain.InvoiceStatus, check func(domain.Invoice) error) error {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		if err := check(*inv); err != nil {
			return err
		}

		updated := *inv
		updated.Status = newStatus
		updated.UpdatedAt = w.now()

		err := w.invoices.Save(updated)
		if err == nil {
			updated.Version++
			*inv = updated
			return nil
		}

		if !domain.IsVersionConflict(err) || attempt == maxSaveRetries-1 {
			w.logger.WithError(err).WithFields(log.Fields{
				"invoice_id": inv.ID,
				"attempt":    attempt + 1,
			}).Error("failed to persist status")
			return err
		}

		w.logger.WithFields(log.Fields{
			"invoice_id": inv.ID,
			"attempt":    attempt + 1,
			"version":    inv.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := w.invoices.Get(inv.ID)
		if loadErr != nil {
			w.logger.WithError(loadErr).WithField("invoice_id", inv.ID).Error("failed to reload invoice after conflict")
			return loadErr
		}
		*inv = fresh

		time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrInvoiceVersionConflict
}

// emitEvent ставит событие в outbox и дописывает timeline после сохранения накладной.
// Ошибки записи не откатывают переход: они логируются и считаются в метрике шага emit.
func (w *Workflow) emitEvent(inv domain.Invoice, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	occurred := inv.UpdatedAt
	if occurred.IsZero() {
		occurred = w.now()
	}
	payload["invoice_id"] = inv.ID
	payload["order_id"] = inv.OrderID
	payload["status"] = string(inv.Status)
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	fields := log.Fields{
		"invoice_id": inv.ID,
		"event":      eventType,
	}

	if w.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			w.logger.WithError(err).WithFields(fields).Error("marshal event failed")
			w.recordFailure(domain.WorkflowStepEmit)
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "invoice",
				AggregateID:   strconv.FormatInt(inv.ID, 10),
				EventType:     eventType,
				Payload:       data,
			}
			if _, err := w.outbox.Enqueue(msg); err != nil {
				w.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
				w.recordFailure(domain.WorkflowStepEmit)
			} else if w.metrics != nil {
				w.metrics.RecordOutboxEvent()
			}
		}
	}

	if w.timeline != nil {
		reason, _ := payload["reason"].(string)
		event := domain.TimelineEvent{
			InvoiceID: inv.ID,
			Type:      eventType,
			Reason:    reason,
			Occurred:  occurred,
		}
		if err := w.timeline.Append(event); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
			w.recordFailure(domain.WorkflowStepEmit)
		} else if w.metrics != nil {
			w.metrics.RecordTimelineEvent()
		}
	}
}

func (w *Workflow) observe(step domain.WorkflowStep) func() {
	if w.metrics == nil {
		return func() {}
	}
	return w.metrics.ObserveOperation(string(step))
}

func (w *Workflow) recordFailure(step domain.WorkflowStep) {
	if w.metrics != nil {
		w.metrics.RecordFailure(string(step))
	}
}

func (w *Workflow) recordTransition(status string) {
	if w.metrics != nil {
		w.metrics.RecordTransition(status)
	}
}
