package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"agromarket/internal/api"
	"agromarket/internal/session"
)

var (
	ErrInvalidProductID = errors.New("cart: product id is required and must be valid")
	ErrInvalidQuantity  = errors.New("cart: quantity must be a positive number")
)

// Service is the facade over the remote cart resource. Operations report
// success as a bool and capture the failure reason in a readable error field
// instead of propagating it; the server stays authoritative and the facade
// refetches rather than merging optimistically.
//
// One busy flag covers all operations: overlapping calls share it, so two
// in-flight requests look like one continuous busy period. That is the chosen
// policy, not an oversight.
type Service struct {
	api      *api.Client
	sessions *session.Store
	fallback FallbackPolicy

	mu      sync.Mutex
	loading bool
	lastErr string
}

func NewService(apiClient *api.Client, sessions *session.Store, fallback FallbackPolicy) *Service {
	if fallback == nil {
		fallback = NoFallback{}
	}

	return &Service{api: apiClient, sessions: sessions, fallback: fallback}
}

// Loading reports whether any cart operation is currently in flight.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// Err returns the message of the most recent failure, or "" after a success.
func (s *Service) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

func (s *Service) begin(errMsgIfLoggedOut string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Current(); !ok {
		s.lastErr = errMsgIfLoggedOut
		return false
	}

	s.loading = true
	s.lastErr = ""

	return true
}

func (s *Service) finish(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
	if err == nil {
		s.lastErr = ""
		return true
	}

	if api.IsStatus(err, http.StatusForbidden) {
		s.lastErr = "Access denied. You may need to login with a shopping-enabled account."
	} else {
		s.lastErr = err.Error()
	}

	return false
}

// Add creates the line or increments it server-side. Validation failures are
// caught before any network round trip.
func (s *Service) Add(ctx context.Context, productID string, quantity int) bool {
	cleanID, err := validateProductID(productID)
	if err != nil {
		return s.fail(err)
	}
	if quantity <= 0 {
		return s.fail(ErrInvalidQuantity)
	}

	if !s.begin("Please login to add items to cart") {
		return false
	}

	body := map[string]any{"productId": cleanID, "quantity": quantity}

	err = s.api.Post(ctx, "/buyer/cart/add", body, nil)
	if api.IsStatus(err, http.StatusForbidden) {
		if email, ok := s.fallback.FallbackEmail(); ok {
			log.Warn().Str("email", email).Msg("cart: buyer endpoint forbidden, using dev fallback endpoint (non-production)")
			err = s.api.Post(ctx, "/dev/cart/"+url.PathEscape(email)+"/add", body, nil)
		}
	}

	return s.finish(err)
}

// Update issues a literal quantity update. The removal-below-one policy lives
// in SetQuantity, not here.
func (s *Service) Update(ctx context.Context, productID string, quantity int) bool {
	cleanID, err := validateProductID(productID)
	if err != nil {
		return s.fail(err)
	}

	if !s.begin("Please login to update cart") {
		return false
	}

	body := map[string]any{"productId": cleanID, "quantity": quantity}

	return s.finish(s.api.Put(ctx, "/buyer/cart/update", body, nil))
}

// SetQuantity is the caller-level policy around Update: any requested
// quantity below one means "remove this line", decided before the request is
// sent.
func (s *Service) SetQuantity(ctx context.Context, productID string, quantity int) bool {
	if quantity < 1 {
		return s.Remove(ctx, productID)
	}

	return s.Update(ctx, productID, quantity)
}

// Remove deletes the line. Removing an absent line is treated as success.
func (s *Service) Remove(ctx context.Context, productID string) bool {
	cleanID, err := validateProductID(productID)
	if err != nil {
		return s.fail(err)
	}

	if !s.begin("Please login to update cart") {
		return false
	}

	return s.finish(s.api.Delete(ctx, "/buyer/cart/remove/"+url.PathEscape(cleanID), nil))
}

// Clear removes every line for the current identity.
func (s *Service) Clear(ctx context.Context) bool {
	if !s.begin("Please login to update cart") {
		return false
	}

	return s.finish(s.api.Delete(ctx, "/buyer/cart/clear", nil))
}

// List returns the authoritative lines, or an empty slice on any failure so
// callers can render unconditionally.
func (s *Service) List(ctx context.Context) []Item {
	items, err := s.ListItems(ctx)
	if err != nil {
		return []Item{}
	}

	return items
}

// ListItems is List with the error preserved, for callers like the checkout
// orchestrator that must distinguish "empty cart" from "failed to load".
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	if !s.begin("Please login to view your cart") {
		return nil, api.ErrUnauthenticated
	}

	var resp listResponse
	err := s.api.Get(ctx, "/buyer/cart", &resp)
	if api.IsStatus(err, http.StatusForbidden) {
		if email, ok := s.fallback.FallbackEmail(); ok {
			log.Warn().Str("email", email).Msg("cart: buyer endpoint forbidden, using dev fallback endpoint (non-production)")
			err = s.api.Get(ctx, "/dev/cart/"+url.PathEscape(email), &resp)
		}
	}

	if !s.finish(err) {
		return nil, fmt.Errorf("cart: failed to load cart: %w", err)
	}

	if resp.Items == nil {
		resp.Items = []Item{}
	}

	return resp.Items, nil
}

func (s *Service) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err.Error()

	return false
}

// validateProductID rejects the ids a buggy caller produces by stringifying a
// missing value before they waste a network round trip.
func validateProductID(productID string) (string, error) {
	clean := strings.TrimSpace(productID)
	if clean == "" || clean == "undefined" || clean == "null" {
		return "", ErrInvalidProductID
	}

	return clean, nil
}
