package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// The backend hands out these placeholder keys when no real gateway account
// is configured. They must never reach a live confirm call; the orchestrator
// switches to its labeled mock path instead.
const mockKeySentinel = "pk_test_mock_key_for_development"

// IsMockKey reports whether a publishable key marks the backend as running
// without live gateway credentials.
func IsMockKey(key string) bool {
	return key == "" || key == mockKeySentinel || strings.Contains(key, "PASTE_YOUR_ACTUAL")
}

// Card is the payment method detail collected from the user. It goes to the
// gateway only, never to the marketplace backend.
type Card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
}

// Gateway confirms a card payment directly with the payment provider. The
// direct client-to-gateway handshake is a security property of the flow: card
// data must bypass the marketplace backend.
type Gateway interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, card Card) (string, error)
}

// Factory builds a gateway for the publishable key delivered with a payment
// intent. Returns ok=false when the key is a mock sentinel, meaning no real
// gateway is available.
type Factory func(publishableKey string) (Gateway, bool)

// HTTPFactory returns a Factory producing HTTP gateways against gatewayURL.
func HTTPFactory(gatewayURL string, timeout time.Duration) Factory {
	return func(publishableKey string) (Gateway, bool) {
		if IsMockKey(publishableKey) {
			log.Warn().Msg("payment: mock gateway key, real confirmation unavailable")
			return nil, false
		}

		return NewHTTPGateway(gatewayURL, publishableKey, timeout), true
	}
}

type confirmResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPGateway talks to a Stripe-shaped payment API. Confirm calls run behind
// a circuit breaker so a flapping gateway fails fast instead of stacking up
// hung checkouts.
type HTTPGateway struct {
	baseURL        string
	publishableKey string
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker[*confirmResponse]
}

func NewHTTPGateway(baseURL, publishableKey string, timeout time.Duration) *HTTPGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
	}

	return &HTTPGateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		publishableKey: publishableKey,
		http:           &http.Client{Timeout: timeout},
		breaker:        gobreaker.NewCircuitBreaker[*confirmResponse](settings),
	}
}

// ConfirmCardPayment confirms the intent identified by clientSecret and
// returns the gateway's payment intent id on success.
func (g *HTTPGateway) ConfirmCardPayment(ctx context.Context, clientSecret string, card Card) (string, error) {
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return "", err
	}

	resp, err := g.breaker.Execute(func() (*confirmResponse, error) {
		return g.confirm(ctx, intentID, clientSecret, card)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", errors.New("payment: gateway temporarily unavailable, try again shortly")
		}
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("payment: gateway declined: %s", resp.Error.Message)
	}
	if resp.Status != "succeeded" {
		return "", fmt.Errorf("payment: unexpected gateway status %q", resp.Status)
	}

	return resp.ID, nil
}

func (g *HTTPGateway) confirm(ctx context.Context, intentID, clientSecret string, card Card) (*confirmResponse, error) {
	body, err := json.Marshal(map[string]any{
		"client_secret": clientSecret,
		"payment_method": map[string]any{
			"card": card,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("payment: failed to encode confirm request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", g.baseURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: failed to build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.publishableKey)

	httpResp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: gateway unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to read gateway response: %w", err)
	}

	var resp confirmResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("payment: malformed gateway response: %w", err)
	}

	// Declines come back with a non-2xx status and an error payload; that is
	// a gateway answer, not a transport failure, so it must not trip the
	// breaker via the error return.
	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("payment: gateway error: %d", httpResp.StatusCode)
	}

	return &resp, nil
}

// intentIDFromSecret extracts the intent id from a client secret shaped like
// "pi_123_secret_456".
func intentIDFromSecret(clientSecret string) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || id == "" {
		return "", errors.New("payment: malformed client secret")
	}

	return id, nil
}
