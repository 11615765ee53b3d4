package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// invoiceRepositoryInMemory — простая in-memory реализация InvoiceRepository.
type invoiceRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.Invoice
}

// NewInvoiceRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewInvoiceRepository() domain.InvoiceRepository {
	return &invoiceRepositoryInMemory{
		items: make(map[int64]domain.Invoice),
	}
}

// Create сохраняет новую накладную, если у заказа ещё нет активной.
func (r *invoiceRepositoryInMemory) Create(invoice domain.Invoice) (domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if invoice.Status.Active() {
		for _, existing := range r.items {
			if existing.OrderID == invoice.OrderID && existing.Status.Active() {
				return domain.Invoice{}, domain.ErrOrderAlreadyConfirmed
			}
		}
	}

	r.nextID++
	invoice.ID = r.nextID
	invoice.Version = 0
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[invoice.ID] = cloneInvoice(invoice)
	return cloneInvoice(invoice), nil
}

// Get возвращает накладную или ErrInvoiceNotFound, если её нет.
func (r *invoiceRepositoryInMemory) Get(id int64) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.items[id]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return cloneInvoice(invoice), nil
}

func (r *invoiceRepositoryInMemory) FindActiveByOrder(orderID int64) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, invoice := range r.items {
		if invoice.OrderID == orderID && invoice.Status.Active() {
			return cloneInvoice(invoice), nil
		}
	}
	return domain.Invoice{}, domain.ErrInvoiceNotFound
}

func (r *invoiceRepositoryInMemory) ListByOrder(orderID int64) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Invoice, 0)
	for _, invoice := range r.items {
		if invoice.OrderID == orderID {
			result = append(result, cloneInvoice(invoice))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// ListExpired возвращает самые старые просроченные накладные первыми.
func (r *invoiceRepositoryInMemory) ListExpired(cutoff time.Time, limit int) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Invoice, 0)
	for _, invoice := range r.items {
		if invoice.Expired(cutoff) {
			result = append(result, cloneInvoice(invoice))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает накладную, проверяя версию (optimistic locking).
func (r *invoiceRepositoryInMemory) Save(invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[invoice.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if current.Version != invoice.Version {
		return domain.ErrInvoiceVersionConflict
	}
	// Возврат накладной в активный статус не должен нарушать уникальность по заказу.
	if invoice.Status.Active() && !current.Status.Active() {
		for id, other := range r.items {
			if id != invoice.ID && other.OrderID == invoice.OrderID && other.Status.Active() {
				return domain.ErrOrderAlreadyConfirmed
			}
		}
	}
	// Инкрементируем версию перед сохранением.
	invoice.Version++
	r.items[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func cloneInvoice(invoice domain.Invoice) domain.Invoice {
	items := make([]domain.LineItem, len(invoice.LineItems))
	copy(items, invoice.LineItems)
	invoice.LineItems = items
	return invoice
}

var _ domain.InvoiceRepository = (*invoiceRepositoryInMemory)(nil)
