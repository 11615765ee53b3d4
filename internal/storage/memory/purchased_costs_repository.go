package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

type purchasedCostsRepositoryInMemory struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.PurchasedCosts
}

// NewPurchasedCostsRepository создаёт in-memory журнал закупок.
func NewPurchasedCostsRepository() domain.PurchasedCostsRepository {
	return &purchasedCostsRepositoryInMemory{}
}

func (r *purchasedCostsRepositoryInMemory) Append(entry domain.PurchasedCosts) (domain.PurchasedCosts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *purchasedCostsRepositoryInMemory) ListBetween(from, to time.Time) ([]domain.PurchasedCosts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PurchasedCosts, 0)
	for _, entry := range r.entries {
		if entry.DateOfPurchase.Before(from) || entry.DateOfPurchase.After(to) {
			continue
		}
		result = append(result, entry)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DateOfPurchase.Before(result[j].DateOfPurchase)
	})
	return result, nil
}

var _ domain.PurchasedCostsRepository = (*purchasedCostsRepositoryInMemory)(nil)
