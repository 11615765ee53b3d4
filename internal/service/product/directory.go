// Package product обращается к сервису продуктов за названиями товаров.
package product

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
	"github.com/vladislavdragonenkov/accountancy/internal/upstream"
)

type productResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// HTTPDirectory запрашивает GET {base}/api/v1/product?ids=1,2.
type HTTPDirectory struct {
	client *upstream.Client
}

// NewHTTPDirectory создаёт клиента сервиса продуктов.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{client: upstream.NewClient("product", baseURL, timeout)}
}

// ProductNames возвращает названия известных товаров.
func (d *HTTPDirectory) ProductNames(ctx context.Context, productIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(productIDs))
	if len(productIDs) == 0 {
		return names, nil
	}

	ids := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	query := url.Values{"ids": {strings.Join(ids, ",")}}

	var products []productResponse
	status, err := d.client.Do(ctx, "names", http.MethodGet, "/api/v1/product?"+query.Encode(), nil, &products)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return names, nil
	}
	if status < 200 || status >= 300 {
		return nil, d.client.StatusError("names", status)
	}

	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names, nil
}

var _ domain.ProductDirectory = (*HTTPDirectory)(nil)

// MockDirectory хранит in-memory каталог названий для dev-режима и тестов.
type MockDirectory struct {
	mu    sync.RWMutex
	names map[int64]string
	// Fallback включает генерацию названия "product-<id>" для незарегистрированных товаров.
	Fallback bool
	Err      error
}

// NewMockDirectory создаёт каталог с заданными названиями.
func NewMockDirectory(names map[int64]string) *MockDirectory {
	copied := make(map[int64]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &MockDirectory{names: copied}
}

// Set регистрирует название товара.
func (m *MockDirectory) Set(productID int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[productID] = name
}

// IDs возвращает зарегистрированные id по возрастанию.
func (m *MockDirectory) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.names))
	for id := range m.names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockDirectory) ProductNames(_ context.Context, productIDs []int64) (map[int64]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]string, len(productIDs))
	for _, id := range productIDs {
		if name, ok := m.names[id]; ok {
			out[id] = name
		} else if m.Fallback {
			out[id] = "product-" + strconv.FormatInt(id, 10)
		}
	}
	return out, nil
}

var _ domain.ProductDirectory = (*MockDirectory)(nil)
