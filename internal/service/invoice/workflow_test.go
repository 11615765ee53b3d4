package invoice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
	"github.com/vladislavdragonenkov/accountancy/internal/service/invoice"
	"github.com/vladislavdragonenkov/accountancy/internal/service/pricing"
	"github.com/vladislavdragonenkov/accountancy/internal/service/product"
	"github.com/vladislavdragonenkov/accountancy/internal/service/stock"
	"github.com/vladislavdragonenkov/accountancy/internal/storage/memory"
)

type fixture struct {
	workflow *invoice.Workflow
	catalog  *pricing.Catalog
	invoices domain.InvoiceRepository
	stock    *stock.MockGateway
	products *product.MockDirectory
	outbox   *memory.OutboxRepository
	timeline domain.TimelineRepository
	now      time.Time
}

func newFixture(t *testing.T, opts ...invoice.Option) *fixture {
	t.Helper()

	f := &fixture{
		invoices: memory.NewInvoiceRepository(),
		stock:    stock.NewMockGateway(),
		products: product.NewMockDirectory(map[int64]string{1: "Aspirin", 2: "Ibuprofen", 3: "Paracetamol"}),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.catalog = pricing.NewCatalog(memory.NewPriceItemRepository())

	base := []invoice.Option{
		invoice.WithClock(func() time.Time { return f.now }),
		invoice.WithMetrics(metrics.NewWorkflowMetricsWithRegisterer(prometheus.NewRegistry())),
	}
	f.workflow = invoice.NewWorkflow(invoice.Dependencies{
		Invoices: f.invoices,
		Prices:   f.catalog,
		Products: f.products,
		Stock:    f.stock,
		Outbox:   f.outbox,
		Timeline: f.timeline,
	}, append(base, opts...)...)
	return f
}

func (f *fixture) price(t *testing.T, productID int64, price, markup string) domain.PriceItem {
	t.Helper()
	item, err := f.catalog.CreatePriceItem(context.Background(), productID,
		decimal.RequireFromString(price), decimal.RequireFromString(markup))
	require.NoError(t, err)
	return item
}

func (f *fixture) create(t *testing.T, orderID int64, items ...invoice.LineItemRequest) domain.Invoice {
	t.Helper()
	inv, err := f.workflow.CreateOutcomeInvoice(context.Background(), orderID, items)
	require.NoError(t, err)
	return inv
}

func (f *fixture) eventTypes(t *testing.T, invoiceID int64) []string {
	t.Helper()
	events, err := f.workflow.Timeline(context.Background(), invoiceID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestCreateOutcomeInvoice(t *testing.T) {
	f := newFixture(t)
	item := f.price(t, 1, "40.00", "0")

	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 3})

	assert.Equal(t, domain.InvoiceStatusCreated, inv.Status)
	assert.Equal(t, domain.InvoiceTypeOutcome, inv.Type)
	assert.Equal(t, "120.00", inv.Total.StringFixed(2))
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(120)))
	assert.NotEmpty(t, inv.InvoiceNumber)
	assert.Equal(t, f.now.Add(72*time.Hour), inv.ExpiresAt)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, item.ID, inv.LineItems[0].PriceItemID)
	assert.Equal(t, "Aspirin", inv.LineItems[0].Name)
	assert.EqualValues(t, 3, f.stock.Reserved(item.ID))

	stored, err := f.workflow.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ValidateInvariants())

	assert.Equal(t, []string{domain.EventInvoiceCreated}, f.eventTypes(t, inv.ID))
	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "invoice", pending[0].AggregateType)
	assert.Equal(t, domain.EventInvoiceCreated, pending[0].EventType)
}

func TestCreateOutcomeInvoice_SalePriceAndMerge(t *testing.T) {
	f := newFixture(t, invoice.WithTTLDays(1))
	f.price(t, 1, "40", "0.25")
	f.price(t, 2, "0.333", "0")

	inv := f.create(t, 7,
		invoice.LineItemRequest{ProductID: 1, Quantity: 1},
		invoice.LineItemRequest{ProductID: 2, Quantity: 3},
		invoice.LineItemRequest{ProductID: 1, Quantity: 2},
	)

	require.Len(t, inv.LineItems, 2)
	assert.EqualValues(t, 3, inv.LineItems[0].Quantity)
	assert.True(t, inv.LineItems[0].UnitPrice.Equal(decimal.NewFromInt(50)))
	// 50×3 + 0.333×3 без округления
	assert.Equal(t, "150.999", inv.Total.String())
	assert.Equal(t, f.now.Add(24*time.Hour), inv.ExpiresAt)
}

func TestCreateOutcomeInvoice_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.price(t, 1, "10", "0")
	f.price(t, 4, "10", "0") // без названия в каталоге товаров

	cases := []struct {
		name    string
		orderID int64
		items   []invoice.LineItemRequest
		target  error
	}{
		{"missing order", 0, []invoice.LineItemRequest{{ProductID: 1, Quantity: 1}}, domain.ErrValidation},
		{"no items", 1, nil, domain.ErrValidation},
		{"zero quantity", 1, []invoice.LineItemRequest{{ProductID: 1, Quantity: 0}}, domain.ErrQuantityInvalid},
		{"unpriced product", 1, []invoice.LineItemRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}}, domain.ErrInvalidProducts},
		{"unknown product name", 1, []invoice.LineItemRequest{{ProductID: 4, Quantity: 1}}, domain.ErrInvalidProducts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.workflow.CreateOutcomeInvoice(ctx, tc.orderID, tc.items)
			require.ErrorIs(t, err, tc.target)
		})
	}

	_, err := f.workflow.CreateOutcomeInvoice(ctx, 1, []invoice.LineItemRequest{{ProductID: 99, Quantity: 1}})
	require.EqualError(t, err, "order contains invalid products")

	reserve, _, _, _ := f.stock.Calls()
	assert.Zero(t, reserve, "rejected requests must not touch stock")
}

func TestCreateOutcomeInvoice_AlreadyConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.price(t, 1, "40.00", "0")
	req := invoice.LineItemRequest{ProductID: 1, Quantity: 1}

	first := f.create(t, 1, req)
	_, err := f.workflow.CreateOutcomeInvoice(ctx, 1, []invoice.LineItemRequest{req})
	require.ErrorIs(t, err, domain.ErrOrderAlreadyConfirmed)
	assert.EqualError(t, err, "order already confirmed")

	_, err = f.workflow.PayInvoice(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.workflow.CreateOutcomeInvoice(ctx, 1, []invoice.LineItemRequest{req})
	require.ErrorIs(t, err, domain.ErrOrderAlreadyConfirmed)

	_, err = f.workflow.RefundInvoice(ctx, first.ID)
	require.NoError(t, err)
	second := f.create(t, 1, req)

	_, err = f.workflow.CancelInvoice(ctx, second.ID)
	require.NoError(t, err)
	third := f.create(t, 1, req)

	all, err := f.workflow.ListInvoicesByOrder(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := f.workflow.GetActiveInvoiceByOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, third.ID, active.ID)
}

func TestCreateOutcomeInvoice_InsufficientStockReleasesReserved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.price(t, 1, "10", "0")
	second := f.price(t, 2, "20", "0")
	f.stock.SetStock(first.ID, 10)
	f.stock.SetStock(second.ID, 1)

	_, err := f.workflow.CreateOutcomeInvoice(ctx, 5, []invoice.LineItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 5},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	available, _ := f.stock.Available(first.ID)
	assert.EqualValues(t, 10, available, "reservation of the first line must be released")
	assert.Zero(t, f.stock.Reserved(first.ID))

	_, err = f.workflow.GetActiveInvoiceByOrder(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	assert.Empty(t, f.outbox.AllPending())
}

func TestCancelInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.price(t, 1, "40.00", "0")
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 3})

	cancelled, err := f.workflow.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)
	assert.Zero(t, f.stock.Reserved(item.ID))

	_, err = f.workflow.CancelInvoice(ctx, inv.ID)
	require.EqualError(t, err, "invalid status")

	_, err = f.workflow.CancelInvoice(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	assert.Equal(t, []string{domain.EventInvoiceCreated, domain.EventInvoiceCancelled}, f.eventTypes(t, inv.ID))
}

func TestPayAndRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.price(t, 1, "40.00", "0")
	f.stock.SetStock(item.ID, 5)
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 3})

	_, err := f.workflow.RefundInvoice(ctx, inv.ID)
	require.EqualError(t, err, "not paid")

	paid, err := f.workflow.PayInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
	assert.Zero(t, f.stock.Reserved(item.ID))
	available, _ := f.stock.Available(item.ID)
	assert.EqualValues(t, 2, available)

	_, err = f.workflow.CancelInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInvoiceStatus)

	_, err = f.workflow.PayInvoice(ctx, inv.ID)
	require.EqualError(t, err, "invalid status of invoice")

	refunded, err := f.workflow.RefundInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusRefund, refunded.Status)
	available, _ = f.stock.Available(item.ID)
	assert.EqualValues(t, 5, available)

	_, err = f.workflow.RefundInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNotPaid)

	assert.Equal(t, []string{
		domain.EventInvoiceCreated,
		domain.EventInvoicePaid,
		domain.EventInvoiceRefunded,
	}, f.eventTypes(t, inv.ID))
}

func TestTransition_GatewayFailureRevertsStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.price(t, 1, "40.00", "0")
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 3})

	f.stock.ConsumeErr = &domain.UpstreamError{Service: "store", Op: "consume", Err: errors.New("boom")}
	_, err := f.workflow.PayInvoice(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, domain.IsUpstream(err))

	stored, err := f.workflow.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCreated, stored.Status)
	assert.Equal(t, []string{domain.EventInvoiceCreated}, f.eventTypes(t, inv.ID))

	f.stock.ConsumeErr = nil
	paid, err := f.workflow.PayInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
}

func TestTransition_PartialReleaseIsUndone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.price(t, 1, "1", "0")
	f.price(t, 2, "2", "0")
	inv := f.create(t, 1,
		invoice.LineItemRequest{ProductID: 1, Quantity: 1},
		invoice.LineItemRequest{ProductID: 2, Quantity: 1},
	)

	flaky := &failOnCall{StockGateway: f.stock, op: domain.WorkflowStepRelease, failAt: 2}
	w := invoice.NewWorkflow(invoice.Dependencies{
		Invoices: f.invoices,
		Prices:   f.catalog,
		Stock:    flaky,
	})

	_, err := w.CancelInvoice(ctx, inv.ID)
	require.Error(t, err)
	assert.EqualValues(t, 1, f.stock.Reserved(first.ID), "released line must be reserved again")

	stored, err := w.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCreated, stored.Status)
}

// failOnCall отказывает на failAt-м вызове операции op (release, consume или restock).
type failOnCall struct {
	domain.StockGateway
	op     domain.WorkflowStep
	calls  int
	failAt int
}

func (f *failOnCall) fail(op domain.WorkflowStep) error {
	if op != f.op {
		return nil
	}
	f.calls++
	if f.calls == f.failAt {
		return &domain.UpstreamError{Service: "store", Op: string(op), Err: errors.New("connection reset")}
	}
	return nil
}

func (f *failOnCall) Release(ctx context.Context, priceItemID int64, qty int32) error {
	if err := f.fail(domain.WorkflowStepRelease); err != nil {
		return err
	}
	return f.StockGateway.Release(ctx, priceItemID, qty)
}

func (f *failOnCall) ConfirmConsumption(ctx context.Context, priceItemID int64, qty int32) error {
	if err := f.fail(domain.WorkflowStepConsume); err != nil {
		return err
	}
	return f.StockGateway.ConfirmConsumption(ctx, priceItemID, qty)
}

func (f *failOnCall) Restock(ctx context.Context, priceItemID int64, qty int32) error {
	if err := f.fail(domain.WorkflowStepRestock); err != nil {
		return err
	}
	return f.StockGateway.Restock(ctx, priceItemID, qty)
}

// twoLineInvoice выставляет накладную на 3 шт. первого и 2 шт. второго товара при остатке 10.
func twoLineInvoice(t *testing.T, f *fixture) (domain.Invoice, domain.PriceItem, domain.PriceItem) {
	t.Helper()
	first := f.price(t, 1, "1", "0")
	second := f.price(t, 2, "2", "0")
	f.stock.SetStock(first.ID, 10)
	f.stock.SetStock(second.ID, 10)
	inv := f.create(t, 1,
		invoice.LineItemRequest{ProductID: 1, Quantity: 3},
		invoice.LineItemRequest{ProductID: 2, Quantity: 2},
	)
	return inv, first, second
}

func (f *fixture) withStock(gateway domain.StockGateway) *invoice.Workflow {
	return invoice.NewWorkflow(invoice.Dependencies{
		Invoices: f.invoices,
		Prices:   f.catalog,
		Stock:    gateway,
	})
}

func (f *fixture) assertStock(t *testing.T, item domain.PriceItem, available, reserved int32) {
	t.Helper()
	got, _ := f.stock.Available(item.ID)
	assert.EqualValues(t, available, got, "available of price item %d", item.ID)
	assert.EqualValues(t, reserved, f.stock.Reserved(item.ID), "reserved of price item %d", item.ID)
}

func TestTransition_PartialConsumptionIsUndone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, first, second := twoLineInvoice(t, f)

	w := f.withStock(&failOnCall{StockGateway: f.stock, op: domain.WorkflowStepConsume, failAt: 2})
	_, err := w.PayInvoice(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, domain.IsUpstream(err))

	stored, err := w.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCreated, stored.Status)
	f.assertStock(t, first, 7, 3)
	f.assertStock(t, second, 8, 2)

	// отмена после неудачной оплаты возвращает ровно зарезервированное
	_, err = f.workflow.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)
	f.assertStock(t, first, 10, 0)
	f.assertStock(t, second, 10, 0)
}

func TestTransition_PartialRestockIsUndone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, first, second := twoLineInvoice(t, f)

	_, err := f.workflow.PayInvoice(ctx, inv.ID)
	require.NoError(t, err)
	f.assertStock(t, first, 7, 0)
	f.assertStock(t, second, 8, 0)

	w := f.withStock(&failOnCall{StockGateway: f.stock, op: domain.WorkflowStepRestock, failAt: 2})
	_, err = w.RefundInvoice(ctx, inv.ID)
	require.Error(t, err)

	stored, err := w.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)
	f.assertStock(t, first, 7, 0)
	f.assertStock(t, second, 8, 0)

	refunded, err := f.workflow.RefundInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusRefund, refunded.Status)
	f.assertStock(t, first, 10, 0)
	f.assertStock(t, second, 10, 0)
}

// brokenOutbox отказывает при постановке события в очередь.
type brokenOutbox struct {
	*memory.OutboxRepository
}

func (brokenOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox table is locked")
}

func failureCount(t *testing.T, reg *prometheus.Registry, step domain.WorkflowStep) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "accountancy_invoice_failures_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "step" && label.GetValue() == string(step) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestTransition_OutboxFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.price(t, 1, "40.00", "0")
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 1})

	reg := prometheus.NewRegistry()
	w := invoice.NewWorkflow(invoice.Dependencies{
		Invoices: f.invoices,
		Prices:   f.catalog,
		Stock:    f.stock,
		Outbox:   brokenOutbox{OutboxRepository: f.outbox},
		Timeline: f.timeline,
	}, invoice.WithMetrics(metrics.NewWorkflowMetricsWithRegisterer(reg)))

	paid, err := w.PayInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)

	assert.Len(t, f.outbox.AllPending(), 1, "only the creation event reaches the outbox")
	assert.Equal(t, []string{domain.EventInvoiceCreated, domain.EventInvoicePaid}, f.eventTypes(t, inv.ID))
	assert.EqualValues(t, 1, failureCount(t, reg, domain.WorkflowStepEmit))
}

func TestCancelExpiredInvoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, invoice.WithExpiryBatchSize(1))
	f.price(t, 1, "40.00", "0")
	req := invoice.LineItemRequest{ProductID: 1, Quantity: 1}

	expiredA := f.create(t, 1, req)
	expiredB := f.create(t, 2, req)
	paid := f.create(t, 3, req)
	cancelled := f.create(t, 4, req)
	_, err := f.workflow.PayInvoice(ctx, paid.ID)
	require.NoError(t, err)
	_, err = f.workflow.CancelInvoice(ctx, cancelled.ID)
	require.NoError(t, err)

	f.now = f.now.Add(72 * time.Hour)
	fresh := f.create(t, 5, req)

	cutoff := f.now.Add(2 * time.Hour) // позже ExpiresAt первых накладных, раньше fresh
	count, err := f.workflow.CancelExpiredInvoices(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for id, want := range map[int64]domain.InvoiceStatus{
		expiredA.ID:  domain.InvoiceStatusCancelled,
		expiredB.ID:  domain.InvoiceStatusCancelled,
		paid.ID:      domain.InvoiceStatusPaid,
		cancelled.ID: domain.InvoiceStatusCancelled,
		fresh.ID:     domain.InvoiceStatusCreated,
	} {
		got, err := f.workflow.GetInvoice(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "invoice %d", id)
	}

	events, err := f.workflow.Timeline(ctx, expiredA.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventInvoiceExpired, events[1].Type)
	assert.Equal(t, "expired", events[1].Reason)

	count, err = f.workflow.CancelExpiredInvoices(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, count, "second run must be a no-op")
}

func TestCancelExpiredInvoices_YesterdayScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.price(t, 1, "40.00", "0")
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 3})

	// накладная истекла вчера
	f.now = inv.ExpiresAt.Add(24 * time.Hour)
	count, err := f.workflow.CancelExpiredInvoices(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.workflow.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, got.Status)
}

func TestCancelExpiredInvoices_GatewayFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, invoice.WithExpiryBatchSize(1))
	f.price(t, 1, "40.00", "0")
	inv := f.create(t, 1, invoice.LineItemRequest{ProductID: 1, Quantity: 1})
	f.create(t, 2, invoice.LineItemRequest{ProductID: 1, Quantity: 1})

	f.stock.ReleaseErr = &domain.UpstreamError{Service: "store", Op: "release", Temporary: true, Err: errors.New("timeout")}
	count, err := f.workflow.CancelExpiredInvoices(ctx, f.now.Add(96*time.Hour))
	require.Error(t, err)
	assert.True(t, domain.IsUpstream(err))
	assert.Zero(t, count)

	got, err := f.workflow.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCreated, got.Status, "failed expiry must leave invoice untouched")

	f.stock.ReleaseErr = nil
	count, err = f.workflow.CancelExpiredInvoices(ctx, f.now.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTimeline_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.workflow.Timeline(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}
