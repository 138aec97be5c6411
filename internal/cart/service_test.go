package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/api"
	"agromarket/internal/cart"
	"agromarket/internal/session"
	"agromarket/internal/storage"
)

func loggedInSessions(t *testing.T) *session.Store {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewStore(st)
	_, ok := sessions.Login(session.LoginPayload{
		Token: "tok-buyer",
		User:  session.User{ID: "b1", Email: "buyer@example.com"},
	}, "BUYER")
	require.True(t, ok)
	return sessions
}

func loggedOutSessions(t *testing.T) *session.Store {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewStore(st)
	sessions.Hydrate()
	return sessions
}

func newService(t *testing.T, handler http.Handler, sessions *session.Store, fallback cart.FallbackPolicy) (*cart.Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, time.Second, sessions)
	return cart.NewService(client, sessions, fallback), srv
}

func TestService_AddValidation(t *testing.T) {
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusCreated)
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)

	tests := []struct {
		name      string
		productID string
		quantity  int
	}{
		{name: "empty_id", productID: "", quantity: 1},
		{name: "undefined_sentinel", productID: "undefined", quantity: 1},
		{name: "null_sentinel", productID: "null", quantity: 1},
		{name: "whitespace_id", productID: "   ", quantity: 1},
		{name: "zero_quantity", productID: "p1", quantity: 0},
		{name: "negative_quantity", productID: "p1", quantity: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := svc.Add(context.Background(), tt.productID, tt.quantity)
			assert.False(t, ok)
			assert.NotEmpty(t, svc.Err())
			assert.Equal(t, int64(0), requests.Load(), "validation failures must not reach the network")
		})
	}
}

func TestService_AddSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"added"}`))
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)

	ok := svc.Add(context.Background(), " p1 ", 2)
	assert.True(t, ok)
	assert.Empty(t, svc.Err())
	assert.False(t, svc.Loading())
	assert.Equal(t, "/buyer/cart/add", gotPath)
	assert.Equal(t, "Bearer tok-buyer", gotAuth)
	assert.Equal(t, map[string]any{"productId": "p1", "quantity": float64(2)}, gotBody)
}

func TestService_UnauthenticatedFailsFast(t *testing.T) {
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	svc, _ := newService(t, handler, loggedOutSessions(t), nil)

	assert.False(t, svc.Add(context.Background(), "p1", 1))
	assert.Equal(t, "Please login to add items to cart", svc.Err())
	assert.False(t, svc.Clear(context.Background()))
	assert.Empty(t, svc.List(context.Background()))
	assert.Equal(t, int64(0), requests.Load())
}

func TestService_ListForbiddenWithDevFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/buyer/cart":
			w.WriteHeader(http.StatusForbidden)
		case "/dev/cart/test@buyer.com":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"productId":"p1","quantity":2,"productPrice":500}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	svc, _ := newService(t, handler, loggedInSessions(t), cart.DevFallback{})

	items := svc.List(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Empty(t, svc.Err())
}

func TestService_ListForbiddenWithoutFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	svc, _ := newService(t, handler, loggedInSessions(t), cart.NoFallback{})

	items := svc.List(context.Background())
	assert.NotNil(t, items, "List must return a sequence even on failure")
	assert.Empty(t, items)
	assert.Equal(t, "Access denied. You may need to login with a shopping-enabled account.", svc.Err())
}

func TestService_AddForbiddenWithDevFallback(t *testing.T) {
	var fallbackHit bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/buyer/cart/add":
			w.WriteHeader(http.StatusForbidden)
		case "/dev/cart/test@buyer.com/add":
			fallbackHit = true
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	svc, _ := newService(t, handler, loggedInSessions(t), cart.DevFallback{})

	assert.True(t, svc.Add(context.Background(), "p1", 1))
	assert.True(t, fallbackHit)
}

func TestService_SetQuantityBelowOneRemoves(t *testing.T) {
	items := map[string]int{"p1": 2}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/buyer/cart/remove/p1":
			delete(items, "p1")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/buyer/cart":
			resp := struct {
				Items []cart.Item `json:"items"`
			}{Items: []cart.Item{}}
			for id, qty := range items {
				resp.Items = append(resp.Items, cart.Item{ProductID: id, Quantity: qty})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)

	assert.True(t, svc.SetQuantity(context.Background(), "p1", 0))
	assert.Empty(t, svc.List(context.Background()), "line must be gone after a below-one set")
}

func TestService_SetQuantityPositiveUpdates(t *testing.T) {
	var gotMethod, gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)

	assert.True(t, svc.SetQuantity(context.Background(), "p1", 3))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/buyer/cart/update", gotPath)
}

func TestService_RemoveAbsentLineIsSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Server answers 2xx regardless of whether the line existed.
		w.WriteHeader(http.StatusOK)
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)
	assert.True(t, svc.Remove(context.Background(), "never-existed"))
}

func TestService_ErrClearedAfterSuccess(t *testing.T) {
	var failNext atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failNext.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	svc, _ := newService(t, handler, loggedInSessions(t), nil)

	failNext.Store(true)
	assert.False(t, svc.Clear(context.Background()))
	assert.Equal(t, "boom", svc.Err())

	failNext.Store(false)
	assert.True(t, svc.Clear(context.Background()))
	assert.Empty(t, svc.Err())
}
