package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

type priceItemRepositoryInMemory struct {
	mu        sync.RWMutex
	nextID    int64
	items     map[int64]domain.PriceItem
	byProduct map[int64]int64
}

// NewPriceItemRepository создаёт in-memory каталог цен.
func NewPriceItemRepository() domain.PriceItemRepository {
	return &priceItemRepositoryInMemory{
		items:     make(map[int64]domain.PriceItem),
		byProduct: make(map[int64]int64),
	}
}

func (r *priceItemRepositoryInMemory) Create(item domain.PriceItem) (domain.PriceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byProduct[item.ProductID]; exists {
		return domain.PriceItem{}, domain.ErrPriceItemExists
	}
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	r.byProduct[item.ProductID] = item.ID
	return item, nil
}

func (r *priceItemRepositoryInMemory) Get(id int64) (domain.PriceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.PriceItem{}, domain.ErrPriceItemNotFound
	}
	return item, nil
}

// Update меняет цену и наценку; товар и дата создания сохраняются.
func (r *priceItemRepositoryInMemory) Update(item domain.PriceItem) (domain.PriceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok {
		return domain.PriceItem{}, domain.ErrPriceItemNotFound
	}
	current.Price = item.Price
	current.Markup = item.Markup
	current.UpdatedAt = item.UpdatedAt
	r.items[item.ID] = current
	return current, nil
}

func (r *priceItemRepositoryInMemory) ListByProductIDs(productIDs []int64) ([]domain.PriceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{}, len(productIDs))
	result := make([]domain.PriceItem, 0, len(productIDs))
	for _, productID := range productIDs {
		if _, dup := seen[productID]; dup {
			continue
		}
		seen[productID] = struct{}{}
		if id, ok := r.byProduct[productID]; ok {
			result = append(result, r.items[id])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.PriceItemRepository = (*priceItemRepositoryInMemory)(nil)
