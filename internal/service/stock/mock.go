package stock

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// MockGateway реализует конфигурируемую заглушку склада для dev-режима и тестов.
// Для позиций, которым задан остаток через SetStock, резерв проверяет доступное количество;
// остальные позиции считаются неограниченными.
type MockGateway struct {
	mu sync.Mutex

	ReserveErr error
	ReleaseErr error
	ConsumeErr error
	RestockErr error

	ReserveCalls int
	ReleaseCalls int
	ConsumeCalls int
	RestockCalls int

	available map[int64]int32
	reserved  map[int64]int32
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		available: make(map[int64]int32),
		reserved:  make(map[int64]int32),
	}
}

// SetStock задаёт доступный остаток позиции.
func (m *MockGateway) SetStock(priceItemID int64, qty int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available[priceItemID] = qty
}

// Available возвращает доступный остаток и признак того, что позиция отслеживается.
func (m *MockGateway) Available(priceItemID int64) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.available[priceItemID]
	return qty, ok
}

// Reserved возвращает текущий резерв позиции.
func (m *MockGateway) Reserved(priceItemID int64) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved[priceItemID]
}

// Calls возвращает счётчики вызовов под блокировкой.
func (m *MockGateway) Calls() (reserve, release, consume, restock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReserveCalls, m.ReleaseCalls, m.ConsumeCalls, m.RestockCalls
}

// Reserve резервирует товар или возвращает ErrInsufficientStock.
func (m *MockGateway) Reserve(_ context.Context, priceItemID int64, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReserveCalls++
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	if available, tracked := m.available[priceItemID]; tracked {
		if available < qty {
			return domain.ErrInsufficientStock
		}
		m.available[priceItemID] = available - qty
	}
	m.reserved[priceItemID] += qty
	return nil
}

// Release снимает резерв и возвращает товар в доступный остаток.
func (m *MockGateway) Release(_ context.Context, priceItemID int64, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	m.takeReserved(priceItemID, qty)
	if available, tracked := m.available[priceItemID]; tracked {
		m.available[priceItemID] = available + qty
	}
	return nil
}

// ConfirmConsumption списывает резерв окончательно.
func (m *MockGateway) ConfirmConsumption(_ context.Context, priceItemID int64, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsumeCalls++
	if m.ConsumeErr != nil {
		return m.ConsumeErr
	}
	m.takeReserved(priceItemID, qty)
	return nil
}

// Restock возвращает проданный товар на склад.
func (m *MockGateway) Restock(_ context.Context, priceItemID int64, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RestockCalls++
	if m.RestockErr != nil {
		return m.RestockErr
	}
	if available, tracked := m.available[priceItemID]; tracked {
		m.available[priceItemID] = available + qty
	}
	return nil
}

func (m *MockGateway) takeReserved(priceItemID int64, qty int32) {
	left := m.reserved[priceItemID] - qty
	if left <= 0 {
		delete(m.reserved, priceItemID)
		return
	}
	m.reserved[priceItemID] = left
}

var _ domain.StockGateway = (*MockGateway)(nil)
