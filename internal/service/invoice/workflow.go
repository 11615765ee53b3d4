// Package invoice управляет жизненным циклом расходных накладных:
// выставление по заказу, отмена, оплата, возврат и отмена просроченных.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
)

const (
	// DefaultTTLDays — срок жизни неоплаченной накладной.
	DefaultTTLDays = 3
	// DefaultExpiryBatchSize — сколько просроченных накладных берётся за одну выборку.
	DefaultExpiryBatchSize = 100

	maxSaveRetries = 3
	baseRetryDelay = 10 * time.Millisecond
)

// PriceLookup отдаёт цены товаров; реализуется pricing.Catalog.
type PriceLookup interface {
	GetPricesByProductIDs(ctx context.Context, productIDs []int64, applyMarkup bool) ([]domain.PriceItem, error)
}

// LineItemRequest описывает позицию заказа, по которой выставляется накладная.
type LineItemRequest struct {
	ProductID int64
	Quantity  int32
}

// Dependencies собирает хранилища и внешние сервисы workflow.
// Products, Outbox и Timeline опциональны.
type Dependencies struct {
	Invoices domain.InvoiceRepository
	Prices   PriceLookup
	Products domain.ProductDirectory
	Stock    domain.StockGateway
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
}

// Workflow реализует переходы CREATED → PAID → REFUND и CREATED → CANCELLED.
type Workflow struct {
	invoices domain.InvoiceRepository
	prices   PriceLookup
	products domain.ProductDirectory
	stock    domain.StockGateway
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	ttl       time.Duration
	batchSize int
	logger    *log.Entry
	metrics   *metrics.WorkflowMetrics
	now       func() time.Time
	newNumber func() string
}

// Option настраивает Workflow.
type Option func(*Workflow)

// WithTTLDays задаёт срок жизни неоплаченной накладной в днях.
func WithTTLDays(days int) Option {
	return func(w *Workflow) {
		if days > 0 {
			w.ttl = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithExpiryBatchSize задаёт размер выборки при отмене просроченных накладных.
func WithExpiryBatchSize(size int) Option {
	return func(w *Workflow) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics включает метрики workflow.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorkflow создаёт workflow накладных.
func NewWorkflow(deps Dependencies, opts ...Option) *Workflow {
	w := &Workflow{
		invoices:  deps.Invoices,
		prices:    deps.Prices,
		products:  deps.Products,
		stock:     deps.Stock,
		outbox:    deps.Outbox,
		timeline:  deps.Timeline,
		ttl:       DefaultTTLDays * 24 * time.Hour,
		batchSize: DefaultExpiryBatchSize,
		logger:    log.New().WithField("component", "invoice-workflow"),
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateOutcomeInvoice выставляет расходную накладную по заказу и резервирует товар.
func (w *Workflow) CreateOutcomeInvoice(ctx context.Context, orderID int64, items []LineItemRequest) (domain.Invoice, error) {
	defer w.observe(domain.WorkflowStepCreate)()

	merged, err := mergeRequests(orderID, items)
	if err != nil {
		return domain.Invoice{}, err
	}

	if active, err := w.invoices.FindActiveByOrder(orderID); err == nil {
		w.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"invoice_id": active.ID,
		}).Debug("order already has an active invoice")
		return domain.Invoice{}, domain.ErrOrderAlreadyConfirmed
	} else if !errors.Is(err, domain.ErrInvoiceNotFound) {
		return domain.Invoice{}, err
	}

	lines, err := w.priceLines(ctx, merged)
	if err != nil {
		w.recordFailure(domain.WorkflowStepCreate)
		return domain.Invoice{}, err
	}

	now := w.now()
	inv := domain.Invoice{
		OrderID:       orderID,
		InvoiceNumber: w.newNumber(),
		Type:          domain.InvoiceTypeOutcome,
		Status:        domain.InvoiceStatusCreated,
		LineItems:     lines,
		Total:         domain.SumLineItems(lines),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(w.ttl),
	}
	if errs := inv.ValidateInvariants(); len(errs) > 0 {
		return domain.Invoice{}, fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(errs...))
	}

	for i, line := range lines {
		if err := w.stock.Reserve(ctx, line.PriceItemID, line.Quantity); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"order_id":      orderID,
				"price_item_id": line.PriceItemID,
			}).Warn("reserve failed")
			w.recordFailure(domain.WorkflowStepReserve)
			w.releaseLines(ctx, orderID, lines[:i])
			return domain.Invoice{}, fmt.Errorf("reserve price item %d: %w", line.PriceItemID, err)
		}
	}

	created, err := w.invoices.Create(inv)
	if err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Warn("persist invoice failed, releasing stock")
		w.recordFailure(domain.WorkflowStepCreate)
		w.releaseLines(ctx, orderID, lines)
		return domain.Invoice{}, err
	}

	w.logger.WithFields(log.Fields{
		"invoice_id": created.ID,
		"order_id":   orderID,
		"total":      created.Total.String(),
	}).Info("invoice created")
	w.recordTransition(string(domain.InvoiceStatusCreated))
	w.emitEvent(created, domain.EventInvoiceCreated, map[string]interface{}{
		"invoice_number": created.InvoiceNumber,
		"total":          created.Total.String(),
		"expires_at":     created.ExpiresAt.Format(time.RFC3339Nano),
	})
	return created, nil
}

// CancelInvoice отменяет неоплаченную накладную и снимает резерв.
func (w *Workflow) CancelInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	defer w.observe(domain.WorkflowStepCancel)()
	return w.transition(ctx, id, w.cancelTransition())
}

// PayInvoice фиксирует оплату и окончательно списывает товар.
// Если склад отказал на одной из позиций, уже списанные позиции возвращаются на склад
// и снова резервируются.
func (w *Workflow) PayInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	defer w.observe(domain.WorkflowStepPay)()
	return w.transition(ctx, id, transition{
		step:   domain.WorkflowStepPay,
		target: domain.InvoiceStatusPaid,
		event:  domain.EventInvoicePaid,
		check: func(inv domain.Invoice) error {
			if inv.Status != domain.InvoiceStatusCreated {
				return fmt.Errorf("%w of invoice", domain.ErrInvalidInvoiceStatus)
			}
			return nil
		},
		gatewayStep: domain.WorkflowStepConsume,
		gateway:     w.stock.ConfirmConsumption,
		undo:        sequence(w.stock.Restock, w.stock.Reserve),
	})
}

// RefundInvoice возвращает деньги по оплаченной накладной и возвращает товар на склад.
func (w *Workflow) RefundInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	defer w.observe(domain.WorkflowStepRefund)()
	return w.transition(ctx, id, transition{
		step:   domain.WorkflowStepRefund,
		target: domain.InvoiceStatusRefund,
		event:  domain.EventInvoiceRefunded,
		check: func(inv domain.Invoice) error {
			if inv.Status != domain.InvoiceStatusPaid {
				return domain.ErrInvoiceNotPaid
			}
			return nil
		},
		gatewayStep: domain.WorkflowStepRestock,
		gateway:     w.stock.Restock,
		undo:        sequence(w.stock.Reserve, w.stock.ConfirmConsumption),
	})
}

// CancelExpiredInvoices отменяет накладные в статусе CREATED с ExpiresAt < cutoff.
// Возвращает число отменённых накладных. Накладные, которые успели оплатить или отменить,
// пропускаются; сбои склада по отдельным накладным не прерывают проход и возвращаются вместе.
func (w *Workflow) CancelExpiredInvoices(ctx context.Context, cutoff time.Time) (int, error) {
	defer w.observe(domain.WorkflowStepExpire)()

	failed := make(map[int64]struct{})
	var errs []error
	cancelled := 0

	for {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}

		batch, err := w.invoices.ListExpired(cutoff, w.batchSize+len(failed))
		if err != nil {
			return cancelled, fmt.Errorf("list expired invoices: %w", err)
		}

		progressed := false
		for _, inv := range batch {
			if _, skip := failed[inv.ID]; skip {
				continue
			}
			if err := ctx.Err(); err != nil {
				return cancelled, err
			}
			progressed = true

			if _, err := w.apply(ctx, inv, w.expireTransition(cutoff)); err != nil {
				if errors.Is(err, domain.ErrInvalidInvoiceStatus) {
					w.logger.WithField("invoice_id", inv.ID).Debug("invoice no longer expirable, skipping")
					continue
				}
				failed[inv.ID] = struct{}{}
				errs = append(errs, fmt.Errorf("expire invoice %d: %w", inv.ID, err))
				continue
			}
			cancelled++
		}

		if !progressed {
			break
		}
	}

	if cancelled > 0 || len(errs) > 0 {
		w.logger.WithFields(log.Fields{
			"cutoff":    cutoff.Format(time.RFC3339),
			"cancelled": cancelled,
			"failed":    len(errs),
		}).Info("expired invoices processed")
	}
	return cancelled, errors.Join(errs...)
}

// GetInvoice возвращает накладную по идентификатору.
func (w *Workflow) GetInvoice(_ context.Context, id int64) (domain.Invoice, error) {
	return w.invoices.Get(id)
}

// GetActiveInvoiceByOrder возвращает CREATED/PAID накладную заказа.
func (w *Workflow) GetActiveInvoiceByOrder(_ context.Context, orderID int64) (domain.Invoice, error) {
	return w.invoices.FindActiveByOrder(orderID)
}

// ListInvoicesByOrder возвращает все накладные заказа.
func (w *Workflow) ListInvoicesByOrder(_ context.Context, orderID int64) ([]domain.Invoice, error) {
	return w.invoices.ListByOrder(orderID)
}

// Timeline возвращает историю событий накладной.
func (w *Workflow) Timeline(_ context.Context, id int64) ([]domain.TimelineEvent, error) {
	if _, err := w.invoices.Get(id); err != nil {
		return nil, err
	}
	if w.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return w.timeline.List(id)
}

func mergeRequests(orderID int64, items []LineItemRequest) ([]LineItemRequest, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrOrderIDRequired)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrLineItemsRequired)
	}

	merged := make([]LineItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrQuantityInvalid)
		}
		if item.ProductID <= 0 {
			return nil, domain.ErrInvalidProducts
		}
		if pos, ok := index[item.ProductID]; ok {
			sum := int64(merged[pos].Quantity) + int64(item.Quantity)
			if sum > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrQuantityInvalid)
			}
			merged[pos].Quantity = int32(sum)
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// priceLines строит позиции накладной по цене продажи и названию товара.
func (w *Workflow) priceLines(ctx context.Context, requests []LineItemRequest) ([]domain.LineItem, error) {
	ids := make([]int64, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ProductID)
	}

	prices, err := w.prices.GetPricesByProductIDs(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	byProduct := make(map[int64]domain.PriceItem, len(prices))
	for _, p := range prices {
		byProduct[p.ProductID] = p
	}

	var names map[int64]string
	if w.products != nil {
		names, err = w.products.ProductNames(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load product names: %w", err)
		}
	}

	var missing []int64
	lines := make([]domain.LineItem, 0, len(requests))
	for _, r := range requests {
		price, ok := byProduct[r.ProductID]
		if !ok {
			missing = append(missing, r.ProductID)
			continue
		}
		var name string
		if names != nil {
			if name, ok = names[r.ProductID]; !ok {
				missing = append(missing, r.ProductID)
				continue
			}
		}
		lines = append(lines, domain.LineItem{
			PriceItemID: price.ID,
			ProductID:   r.ProductID,
			Name:        name,
			UnitPrice:   price.Price,
			Quantity:    r.Quantity,
		})
	}
	if len(missing) > 0 {
		w.logger.WithField("product_ids", missing).Warn("order contains products without price or name")
		return nil, domain.ErrInvalidProducts
	}
	return lines, nil
}

func (w *Workflow) releaseLines(ctx context.Context, orderID int64, lines []domain.LineItem) {
	for _, line := range lines {
		if err := w.stock.Release(ctx, line.PriceItemID, line.Quantity); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"order_id":      orderID,
				"price_item_id": line.PriceItemID,
			}).Error("release during compensation failed")
			w.recordFailure(domain.WorkflowStepRelease)
		}
	}
}
