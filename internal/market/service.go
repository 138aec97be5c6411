package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"agromarket/internal/api"
	"agromarket/internal/session"
)

var ErrNotLoggedIn = errors.New("market: not logged in")

// Product is a marketplace listing.
type Product struct {
	ID          string  `json:"id"`
	FarmerID    string  `json:"farmerId"`
	ProductName string  `json:"productName"`
	Location    string  `json:"location"`
	District    string  `json:"district,omitempty"`
	TotalStock  int     `json:"totalStock"`
	LatestPrice float64 `json:"latestPrice"`
	HarvestDay  string  `json:"harvestDay,omitempty"`
}

// Order is a placed order as the buyer sees it.
type Order struct {
	ID                 string     `json:"id"`
	CustomerEmail      string     `json:"customerEmail"`
	TotalAmount        float64    `json:"totalAmount"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"paymentStatus"`
	PaymentID          string     `json:"paymentId,omitempty"`
	DeliveryAddress    string     `json:"deliveryAddress"`
	DeliveryCity       string     `json:"deliveryCity"`
	DeliveryPostalCode string     `json:"deliveryPostalCode"`
	ContactPhone       string     `json:"contactPhone"`
	Instructions       string     `json:"instructions,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
}

// Service reads the public catalogue and the buyer's order history.
type Service struct {
	api      *api.Client
	sessions *session.Store
}

func NewService(apiClient *api.Client, sessions *session.Store) *Service {
	return &Service{api: apiClient, sessions: sessions}
}

// Products lists the marketplace catalogue. The district filter is optional;
// the endpoint is public and needs no session.
func (s *Service) Products(ctx context.Context, district string) ([]Product, error) {
	path := "/warehouse/marketplace/products"
	if district != "" {
		path += "?district=" + url.QueryEscape(district)
	}

	var products []Product
	if err := s.api.Get(ctx, path, &products); err != nil {
		return nil, fmt.Errorf("market: failed to load products: %w", err)
	}
	if products == nil {
		products = []Product{}
	}

	return products, nil
}

type ordersResponse struct {
	Success bool    `json:"success"`
	Orders  []Order `json:"orders"`
	Error   string  `json:"error,omitempty"`
}

// Orders lists the logged-in buyer's order history, newest first as the
// backend returns them.
func (s *Service) Orders(ctx context.Context) ([]Order, error) {
	if s.sessions.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp ordersResponse
	if err := s.api.Get(ctx, "/buyer/orders", &resp); err != nil {
		return nil, fmt.Errorf("market: failed to load orders: %w", err)
	}
	if resp.Orders == nil {
		resp.Orders = []Order{}
	}

	return resp.Orders, nil
}

type orderResponse struct {
	Success bool   `json:"success"`
	Order   Order  `json:"order"`
	Error   string `json:"error,omitempty"`
}

// OrderDetails fetches one order by id.
func (s *Service) OrderDetails(ctx context.Context, orderID string) (*Order, error) {
	if s.sessions.Token() == "" {
		return nil, ErrNotLoggedIn
	}
	if orderID == "" {
		return nil, errors.New("market: order id is required")
	}

	var resp orderResponse
	if err := s.api.Get(ctx, "/buyer/orders/"+url.PathEscape(orderID), &resp); err != nil {
		return nil, fmt.Errorf("market: failed to load order %s: %w", orderID, err)
	}

	return &resp.Order, nil
}

// AdminStats is the user-count summary backing the admin dashboard.
type AdminStats struct {
	TotalFarmers       int `json:"totalFarmers"`
	TotalBuyers        int `json:"totalBuyers"`
	TotalDrivers       int `json:"totalDrivers"`
	TotalAdmins        int `json:"totalAdmins"`
	TotalUsers         int `json:"totalUsers"`
	TotalVerifiedUsers int `json:"totalVerifiedUsers"`
}

// Stats fetches the admin dashboard counters. Requires an admin session.
func (s *Service) Stats(ctx context.Context) (*AdminStats, error) {
	if s.sessions.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var stats AdminStats
	if err := s.api.Get(ctx, "/admin/stats", &stats); err != nil {
		return nil, fmt.Errorf("market: failed to load stats: %w", err)
	}

	return &stats, nil
}

// CancelOrder cancels a pending order. Orders already shipped are refused by
// the backend.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	if s.sessions.Token() == "" {
		return ErrNotLoggedIn
	}
	if orderID == "" {
		return errors.New("market: order id is required")
	}

	if err := s.api.Put(ctx, "/buyer/orders/"+url.PathEscape(orderID)+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("market: failed to cancel order %s: %w", orderID, err)
	}

	return nil
}
