package checkout

import (
	"strings"

	"agromarket/internal/cart"
)

// PaymentMethod selects how an order gets paid. Values match the wire format
// the backend expects.
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodCashOnDelivery PaymentMethod = "cod"
)

// Pricing policy, in LKR. The threshold is exclusive: a subtotal exactly at
// it still pays the flat fee.
const (
	FreeShippingThreshold = 5000.0
	FlatShippingFee       = 200.0
)

// CODPaymentID is the sentinel confirmation id for cash-on-delivery orders,
// which never touch the gateway but go through the same confirm endpoint.
const CODPaymentID = "cod_payment"

// ShippingDetails is the address block collected in the DETAILS step. Every
// field is required; validation runs before any network call.
type ShippingDetails struct {
	FullName     string `json:"fullName" validate:"required"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	PhoneNumber  string `json:"phoneNumber" validate:"required"`
	Instructions string `json:"instructions"`
}

func (d ShippingDetails) trimmed() ShippingDetails {
	return ShippingDetails{
		FullName:     strings.TrimSpace(d.FullName),
		Address:      strings.TrimSpace(d.Address),
		City:         strings.TrimSpace(d.City),
		PostalCode:   strings.TrimSpace(d.PostalCode),
		PhoneNumber:  strings.TrimSpace(d.PhoneNumber),
		Instructions: strings.TrimSpace(d.Instructions),
	}
}

// Intent is the payment-gateway resource created for one order.
type Intent struct {
	PaymentIntentID string  `json:"paymentIntentId"`
	ClientSecret    string  `json:"clientSecret"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

// Subtotal sums price×quantity over the cart lines.
func Subtotal(items []cart.Item) float64 {
	sum := 0.0
	for _, item := range items {
		sum += item.ProductPrice * float64(item.Quantity)
	}

	return sum
}

// ShippingFee is zero only strictly above the free-shipping threshold.
func ShippingFee(subtotal float64) float64 {
	if subtotal > FreeShippingThreshold {
		return 0
	}

	return FlatShippingFee
}

// Total is subtotal plus shipping.
func Total(items []cart.Item) float64 {
	subtotal := Subtotal(items)

	return subtotal + ShippingFee(subtotal)
}

// Wire shapes of the three checkout endpoints.

type createOrderRequest struct {
	DeliveryAddress    string `json:"deliveryAddress"`
	DeliveryCity       string `json:"deliveryCity"`
	DeliveryPostalCode string `json:"deliveryPostalCode"`
	ContactPhone       string `json:"contactPhone"`
	Instructions       string `json:"instructions"`
}

type createOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message,omitempty"`
}

type createIntentRequest struct {
	OrderID       string        `json:"orderId"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type createIntentResponse struct {
	Success        bool   `json:"success"`
	PaymentIntent  Intent `json:"paymentIntent"`
	PublishableKey string `json:"publishableKey"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	OrderID         string `json:"orderId"`
}
