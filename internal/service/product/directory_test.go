package product

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

func TestHTTPDirectory(t *testing.T) {
	known := map[int64]string{1: "Aspirin", 2: "Ibuprofen"}
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/product", r.URL.Path)
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var out []productResponse
		for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
			id, _ := strconv.ParseInt(raw, 10, 64)
			if name, ok := known[id]; ok {
				out = append(out, productResponse{ID: id, Name: name})
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	dir := NewHTTPDirectory(srv.URL, time.Second)
	ctx := context.Background()

	names, err := dir.ProductNames(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Aspirin", 2: "Ibuprofen"}, names)

	names, err = dir.ProductNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, names)

	failing.Store(true)
	_, err = dir.ProductNames(ctx, []int64{1})
	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "product", upstream.Service)
}

func TestMockDirectory(t *testing.T) {
	dir := NewMockDirectory(map[int64]string{1: "Aspirin"})
	dir.Set(3, "Paracetamol")
	ctx := context.Background()

	names, err := dir.ProductNames(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Aspirin", 3: "Paracetamol"}, names)
	assert.Equal(t, []int64{1, 3}, dir.IDs())

	dir.Fallback = true
	names, err = dir.ProductNames(ctx, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, "product-2", names[2])

	dir.Err = errors.New("down")
	_, err = dir.ProductNames(ctx, []int64{1})
	assert.Error(t, err)
}
