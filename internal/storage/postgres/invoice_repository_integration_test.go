package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

func makeIntegrationInvoice(orderID int64, number string) domain.Invoice {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Invoice{
		OrderID:       orderID,
		InvoiceNumber: number,
		Type:          domain.InvoiceTypeOutcome,
		Status:        domain.InvoiceStatusCreated,
		LineItems: []domain.LineItem{
			{PriceItemID: 1, ProductID: 10, Name: "Aspirin", UnitPrice: decimal.RequireFromString("40.00"), Quantity: 3},
			{PriceItemID: 2, ProductID: 11, Name: "Bandage", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 2},
		},
		Total:     decimal.RequireFromString("125.00"),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(72 * time.Hour),
	}
}

func TestInvoiceRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInvoiceRepository(store)

	created, err := repo.Create(makeIntegrationInvoice(1, "INV-A"))
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected generated id")
	}

	loaded, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if len(loaded.LineItems) != 2 || loaded.LineItems[0].Name != "Aspirin" {
		t.Fatalf("line items must load eagerly in order: %+v", loaded.LineItems)
	}
	if !loaded.Total.Equal(decimal.NewFromInt(125)) {
		t.Fatalf("unexpected total %s", loaded.Total)
	}
	if errs := loaded.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("stored invoice breaks invariants: %v", errs)
	}

	if _, err := repo.Create(makeIntegrationInvoice(1, "INV-B")); !errors.Is(err, domain.ErrOrderAlreadyConfirmed) {
		t.Fatalf("expected already confirmed, got %v", err)
	}

	loaded.Status = domain.InvoiceStatusPaid
	loaded.UpdatedAt = time.Now().UTC()
	if err := repo.Save(loaded); err != nil {
		t.Fatalf("save invoice: %v", err)
	}

	stale := loaded
	stale.Status = domain.InvoiceStatusRefund
	if err := repo.Save(stale); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	active, err := repo.FindActiveByOrder(1)
	if err != nil || active.Status != domain.InvoiceStatusPaid {
		t.Fatalf("expected paid active invoice, got %+v (%v)", active, err)
	}

	missing := loaded
	missing.ID = 9999
	if err := repo.Save(missing); !errors.Is(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoiceRepository_PostgresListExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInvoiceRepository(store)
	now := time.Now().UTC()

	overdue := makeIntegrationInvoice(1, "INV-1")
	overdue.ExpiresAt = now.Add(-24 * time.Hour)
	overdue, err := repo.Create(overdue)
	if err != nil {
		t.Fatalf("create overdue: %v", err)
	}

	if _, err := repo.Create(makeIntegrationInvoice(2, "INV-2")); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	expired, err := repo.ListExpired(now, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != overdue.ID {
		t.Fatalf("expected only overdue invoice, got %+v", expired)
	}

	byOrder, err := repo.ListByOrder(1)
	if err != nil || len(byOrder) != 1 {
		t.Fatalf("list by order: %d (%v)", len(byOrder), err)
	}
}

func TestInvoiceRepository_PostgresKeepsExactSalePrice(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	prices := NewPriceItemRepository(store)
	repo := NewInvoiceRepository(store)
	now := time.Now().UTC().Truncate(time.Microsecond)

	item, err := prices.Create(domain.PriceItem{
		ProductID: 20,
		Price:     decimal.RequireFromString("10.01"),
		Markup:    decimal.RequireFromString("0.125"),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create price item: %v", err)
	}
	huge, err := prices.Create(domain.PriceItem{
		ProductID: 21,
		Price:     decimal.NewFromInt(100_000_000),
		Markup:    decimal.NewFromInt(100_000_000),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create price item at configured maximum: %v", err)
	}

	found, err := prices.ListByProductIDs([]int64{20, 21})
	if err != nil || len(found) != 2 {
		t.Fatalf("lookup by product: %+v (%v)", found, err)
	}
	byID := map[int64]domain.PriceItem{found[0].ID: found[0], found[1].ID: found[1]}
	sale := byID[item.ID].SalePrice()
	if !sale.Equal(decimal.RequireFromString("11.26125")) {
		t.Fatalf("sale price must survive storage unrounded, got %s", sale)
	}
	hugeSale := byID[huge.ID].SalePrice()
	if !hugeSale.Equal(decimal.RequireFromString("10000000100000000")) {
		t.Fatalf("unexpected sale price at maximum: %s", hugeSale)
	}

	lines := []domain.LineItem{
		{PriceItemID: item.ID, ProductID: 20, Name: "Vitamin C", UnitPrice: sale, Quantity: 3},
		{PriceItemID: huge.ID, ProductID: 21, Name: "Insulin", UnitPrice: hugeSale, Quantity: 1},
	}
	created, err := repo.Create(domain.Invoice{
		OrderID:       77,
		InvoiceNumber: "INV-EXACT",
		Type:          domain.InvoiceTypeOutcome,
		Status:        domain.InvoiceStatusCreated,
		LineItems:     lines,
		Total:         domain.SumLineItems(lines),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	loaded, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !loaded.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("11.26125")) {
		t.Fatalf("unit price rounded by storage: %s", loaded.LineItems[0].UnitPrice)
	}
	if !loaded.Total.Equal(decimal.RequireFromString("10000000100000033.78375")) {
		t.Fatalf("unexpected total %s", loaded.Total)
	}
	if errs := loaded.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("stored invoice breaks invariants: %v", errs)
	}
}

func TestCatalogRepositories_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	prices := NewPriceItemRepository(store)
	costs := NewPurchasedCostsRepository(store)
	timeline := NewTimelineRepository(store)
	outbox := NewOutboxRepository(store)
	now := time.Now().UTC()

	item, err := prices.Create(domain.PriceItem{
		ProductID: 10,
		Price:     decimal.RequireFromString("40.00"),
		Markup:    decimal.RequireFromString("0.1"),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create price item: %v", err)
	}
	if _, err := prices.Create(domain.PriceItem{ProductID: 10, CreatedAt: now, UpdatedAt: now}); !errors.Is(err, domain.ErrPriceItemExists) {
		t.Fatalf("expected duplicate product error, got %v", err)
	}

	item.Price = decimal.RequireFromString("42.10")
	updated, err := prices.Update(item)
	if err != nil || updated.ProductID != 10 {
		t.Fatalf("update price item: %+v (%v)", updated, err)
	}
	if _, err := prices.Update(domain.PriceItem{ID: 404}); !errors.Is(err, domain.ErrPriceItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	found, err := prices.ListByProductIDs([]int64{10, 11})
	if err != nil || len(found) != 1 || !found[0].Price.Equal(decimal.RequireFromString("42.1")) {
		t.Fatalf("lookup by product: %+v (%v)", found, err)
	}

	if _, err := costs.Append(domain.PurchasedCosts{PriceItemID: item.ID, Quantity: 5, DateOfPurchase: now}); err != nil {
		t.Fatalf("append purchased costs: %v", err)
	}
	entries, err := costs.ListBetween(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil || len(entries) != 1 {
		t.Fatalf("list purchased costs: %d (%v)", len(entries), err)
	}

	if err := timeline.Append(domain.TimelineEvent{InvoiceID: 1, Type: domain.EventInvoiceCreated}); err != nil {
		t.Fatalf("append timeline: %v", err)
	}
	events, err := timeline.List(1)
	if err != nil || len(events) != 1 {
		t.Fatalf("list timeline: %d (%v)", len(events), err)
	}

	msg, err := outbox.Enqueue(domain.OutboxMessage{AggregateType: "invoice", AggregateID: "1", EventType: domain.EventInvoiceCreated, Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("enqueue outbox: %v", err)
	}
	if err := outbox.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := outbox.MarkFailed("missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
	stats, err := outbox.Stats()
	if err != nil || stats.PendingCount != 0 {
		t.Fatalf("outbox stats: %+v (%v)", stats, err)
	}
}
