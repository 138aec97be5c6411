package market_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/api"
	"agromarket/internal/market"
	"agromarket/internal/session"
	"agromarket/internal/storage"
)

func newService(t *testing.T, handler http.Handler, loggedIn bool) *market.Service {
	t.Helper()

	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewStore(st)
	sessions.Hydrate()

	if loggedIn {
		_, ok := sessions.Login(session.LoginPayload{
			Token: "jwt-abc",
			User:  session.User{ID: "u1", Email: "buyer@example.com"},
		}, "BUYER")
		require.True(t, ok)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return market.NewService(api.NewClient(srv.URL, time.Second, sessions), sessions)
}

func TestProducts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/warehouse/marketplace/products", func(w http.ResponseWriter, r *http.Request) {
		products := []map[string]any{
			{"id": "p1", "productName": "Red Rice", "latestPrice": 350.0, "totalStock": 40, "district": "Anuradhapura"},
			{"id": "p2", "productName": "Carrots", "latestPrice": 180.0, "totalStock": 12, "district": "Nuwara Eliya"},
		}
		if district := r.URL.Query().Get("district"); district != "" {
			filtered := products[:0:0]
			for _, p := range products {
				if p["district"] == district {
					filtered = append(filtered, p)
				}
			}
			products = filtered
		}
		_ = json.NewEncoder(w).Encode(products)
	})

	svc := newService(t, mux, false)
	ctx := context.Background()

	all, err := svc.Products(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Red Rice", all[0].ProductName)
	assert.Equal(t, 350.0, all[0].LatestPrice)

	filtered, err := svc.Products(ctx, "Nuwara Eliya")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "p2", filtered[0].ID)
}

func TestProducts_EmptyCatalogueIsNotNil(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/warehouse/marketplace/products", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	svc := newService(t, mux, false)

	products, err := svc.Products(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/buyer/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"orders": []map[string]any{
				{"id": "o1", "totalAmount": 1200.0, "status": "PENDING", "paymentStatus": "PAID"},
			},
		})
	})

	svc := newService(t, mux, true)

	orders, err := svc.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, "PAID", orders[0].PaymentStatus)
}

func TestOrders_RequiresLogin(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}), false)

	_, err := svc.Orders(context.Background())
	assert.ErrorIs(t, err, market.ErrNotLoggedIn)
}

func TestStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalFarmers": 3, "totalBuyers": 10, "totalUsers": 14, "totalVerifiedUsers": 12,
		})
	})

	svc := newService(t, mux, true)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFarmers)
	assert.Equal(t, 14, stats.TotalUsers)
	assert.Equal(t, 12, stats.TotalVerifiedUsers)
}

func TestOrderDetailsAndCancel(t *testing.T) {
	var cancelled string

	mux := http.NewServeMux()
	mux.HandleFunc("/buyer/orders/o1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"order":   map[string]any{"id": "o1", "status": "PENDING", "deliveryCity": "Colombo"},
		})
	})
	mux.HandleFunc("/buyer/orders/o1/cancel", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		cancelled = "o1"
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	svc := newService(t, mux, true)
	ctx := context.Background()

	order, err := svc.OrderDetails(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Colombo", order.DeliveryCity)

	require.NoError(t, svc.CancelOrder(ctx, "o1"))
	assert.Equal(t, "o1", cancelled)

	assert.Error(t, svc.CancelOrder(ctx, ""))
}
