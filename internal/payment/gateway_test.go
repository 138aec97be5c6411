package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/payment"
)

func TestIsMockKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "empty", key: "", want: true},
		{name: "mock_sentinel", key: "pk_test_mock_key_for_development", want: true},
		{name: "unconfigured_placeholder", key: "pk_test_PASTE_YOUR_ACTUAL_KEY_HERE", want: true},
		{name: "real_key", key: "pk_test_51Abc123", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payment.IsMockKey(tt.key))
		})
	}
}

func TestHTTPFactory(t *testing.T) {
	factory := payment.HTTPFactory("http://gateway.local", time.Second)

	gw, ok := factory("pk_test_mock_key_for_development")
	assert.False(t, ok)
	assert.Nil(t, gw)

	gw, ok = factory("pk_test_real")
	assert.True(t, ok)
	assert.NotNil(t, gw)
}

func TestHTTPGateway_ConfirmSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, "pk_test_real", time.Second)

	id, err := gw.ConfirmCardPayment(context.Background(), "pi_123_secret_456", payment.Card{
		Number:   "4242424242424242",
		ExpMonth: 12,
		ExpYear:  2030,
		CVC:      "123",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", id)
	assert.Equal(t, "/v1/payment_intents/pi_123/confirm", gotPath)
	assert.Equal(t, "Bearer pk_test_real", gotAuth)
	assert.Equal(t, "pi_123_secret_456", gotBody["client_secret"])
}

func TestHTTPGateway_ConfirmDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, "pk_test_real", time.Second)

	_, err := gw.ConfirmCardPayment(context.Background(), "pi_1_secret_2", payment.Card{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestHTTPGateway_MalformedClientSecret(t *testing.T) {
	gw := payment.NewHTTPGateway("http://gateway.local", "pk_test_real", time.Second)

	_, err := gw.ConfirmCardPayment(context.Background(), "garbage", payment.Card{})
	assert.Error(t, err)
}

func TestHTTPGateway_BreakerOpensOnRepeatedTransportFailure(t *testing.T) {
	// Nothing listens here, so every confirm is a transport failure.
	gw := payment.NewHTTPGateway("http://127.0.0.1:1", "pk_test_real", 50*time.Millisecond)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = gw.ConfirmCardPayment(context.Background(), "pi_1_secret_2", payment.Card{})
		require.Error(t, lastErr)
	}

	assert.Contains(t, lastErr.Error(), "temporarily unavailable")
}
