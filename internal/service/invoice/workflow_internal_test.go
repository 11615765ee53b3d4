package invoice

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/service/stock"
	"github.com/vladislavdragonenkov/accountancy/internal/storage/memory"
)

// racingRepo перед первым Save выполняет конкурирующее изменение накладной.
type racingRepo struct {
	domain.InvoiceRepository
	race  func(domain.InvoiceRepository)
	saves int
}

func (r *racingRepo) Save(inv domain.Invoice) error {
	r.saves++
	if r.race != nil {
		race := r.race
		r.race = nil
		race(r.InvoiceRepository)
	}
	return r.InvoiceRepository.Save(inv)
}

func seedInvoice(t *testing.T, repo domain.InvoiceRepository) domain.Invoice {
	t.Helper()
	line := domain.LineItem{PriceItemID: 1, ProductID: 1, Name: "Aspirin", UnitPrice: decimal.NewFromInt(40), Quantity: 3}
	inv, err := repo.Create(domain.Invoice{
		OrderID:   1,
		Type:      domain.InvoiceTypeOutcome,
		Status:    domain.InvoiceStatusCreated,
		LineItems: []domain.LineItem{line},
		Total:     line.Subtotal(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func setStatus(status domain.InvoiceStatus) func(domain.InvoiceRepository) {
	return func(repo domain.InvoiceRepository) {
		current, _ := repo.Get(1)
		current.Status = status
		_ = repo.Save(current)
	}
}

func TestUpdateStatus_RetriesOnVersionConflict(t *testing.T) {
	repo := &racingRepo{InvoiceRepository: memory.NewInvoiceRepository()}
	inv := seedInvoice(t, repo.InvoiceRepository)
	// конкурент сохраняет накладную без смены статуса, версия растёт
	repo.race = setStatus(domain.InvoiceStatusCreated)

	w := NewWorkflow(Dependencies{Invoices: repo, Stock: stock.NewMockGateway()})
	got, err := w.CancelInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("expected cancel to succeed after retry: %v", err)
	}
	if got.Status != domain.InvoiceStatusCancelled {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
	if repo.saves != 2 {
		t.Fatalf("expected 2 save attempts, got %d", repo.saves)
	}
}

func TestUpdateStatus_LostRaceFailsPrecondition(t *testing.T) {
	repo := &racingRepo{InvoiceRepository: memory.NewInvoiceRepository()}
	inv := seedInvoice(t, repo.InvoiceRepository)
	repo.race = setStatus(domain.InvoiceStatusPaid)

	gateway := stock.NewMockGateway()
	w := NewWorkflow(Dependencies{Invoices: repo, Stock: gateway})
	_, err := w.CancelInvoice(context.Background(), inv.ID)
	if !errors.Is(err, domain.ErrInvalidInvoiceStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, release, _, _ := gateway.Calls(); release != 0 {
		t.Fatalf("stock must not be touched when the race is lost, release calls=%d", release)
	}

	stored, _ := repo.Get(inv.ID)
	if stored.Status != domain.InvoiceStatusPaid {
		t.Fatalf("winner status must be kept, got %s", stored.Status)
	}
}

func TestMergeRequests(t *testing.T) {
	merged, err := mergeRequests(1, []LineItemRequest{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(merged) != 2 || merged[0].ProductID != 2 || merged[0].Quantity != 5 || merged[1].ProductID != 1 {
		t.Fatalf("unexpected merge result: %+v", merged)
	}

	_, err = mergeRequests(1, []LineItemRequest{
		{ProductID: 1, Quantity: math.MaxInt32},
		{ProductID: 1, Quantity: 1},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected overflow to fail validation, got %v", err)
	}

	if _, err := mergeRequests(1, []LineItemRequest{{ProductID: -1, Quantity: 1}}); !errors.Is(err, domain.ErrInvalidProducts) {
		t.Fatalf("expected invalid products, got %v", err)
	}
}
