package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/storage/memory"
)

func TestPriceItemRepository(t *testing.T) {
	repo := memory.NewPriceItemRepository()

	item, err := repo.Create(domain.PriceItem{ProductID: 10, Price: decimal.NewFromInt(40), Markup: decimal.Zero})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Create(domain.PriceItem{ProductID: 10}); !errors.Is(err, domain.ErrPriceItemExists) {
		t.Fatalf("expected duplicate product error, got %v", err)
	}

	item.Price = decimal.NewFromInt(45)
	updated, err := repo.Update(item)
	if err != nil || !updated.Price.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("update failed: %v %+v", err, updated)
	}
	if _, err := repo.Update(domain.PriceItem{ID: 99}); !errors.Is(err, domain.ErrPriceItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	found, err := repo.ListByProductIDs([]int64{10, 11, 10})
	if err != nil || len(found) != 1 || found[0].ID != item.ID {
		t.Fatalf("unexpected lookup result %+v (%v)", found, err)
	}
}

func TestPurchasedCostsRepository_ListBetween(t *testing.T) {
	repo := memory.NewPurchasedCostsRepository()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, offset := range []int{2, 0, 5} {
		_, err := repo.Append(domain.PurchasedCosts{
			PriceItemID:    int64(i + 1),
			Quantity:       10,
			DateOfPurchase: day.AddDate(0, 0, offset),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := repo.ListBetween(day, day.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in range, got %d", len(entries))
	}
	if !entries[0].DateOfPurchase.Equal(day) {
		t.Fatalf("entries must be ordered by date, got %v first", entries[0].DateOfPurchase)
	}
}
