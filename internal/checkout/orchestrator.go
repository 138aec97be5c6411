package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"agromarket/internal/api"
	"agromarket/internal/cart"
	"agromarket/internal/payment"
)

var (
	// ErrEmptyCart means checkout is unreachable: the caller should send the
	// user back to the cart view. A guard, not a state.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrSubmissionInFlight guards against a double submit creating two
	// orders server-side.
	ErrSubmissionInFlight = errors.New("checkout: a submission is already in progress")

	ErrWrongState = errors.New("checkout: operation not allowed in current state")
)

// CartLister is the slice of the cart facade the orchestrator needs.
type CartLister interface {
	ListItems(ctx context.Context) ([]cart.Item, error)
}

// Orchestrator drives one checkout attempt through
// LOADING_CART → DETAILS → PAYMENT → SUCCESS. Each network step strictly
// awaits the previous one; a failure surfaces through Err and keeps the
// current state so the user retries in place.
type Orchestrator struct {
	api      *api.Client
	cart     CartLister
	gateways payment.Factory
	validate *validator.Validate

	mu             sync.Mutex
	state          State
	items          []cart.Item
	details        ShippingDetails
	method         PaymentMethod
	orderID        string
	intent         Intent
	publishableKey string
	gateway        payment.Gateway
	mockMode       bool
	submitting     bool
	lastErr        string
}

func New(apiClient *api.Client, cartSvc CartLister, gateways payment.Factory) *Orchestrator {
	return &Orchestrator{
		api:      apiClient,
		cart:     cartSvc,
		gateways: gateways,
		validate: validator.New(),
		state:    StateLoadingCart,
	}
}

// Begin loads the cart and enters DETAILS. An empty cart returns ErrEmptyCart
// without entering the flow. Retryable while still in LOADING_CART.
func (o *Orchestrator) Begin(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateLoadingCart {
		o.mu.Unlock()
		return ErrWrongState
	}
	o.mu.Unlock()

	items, err := o.cart.ListItems(ctx)
	if err != nil {
		o.setErr("Error loading cart: " + err.Error())
		return fmt.Errorf("checkout: %w", err)
	}

	if len(items) == 0 {
		return ErrEmptyCart
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.items = items
	o.transition(StateDetails)
	o.lastErr = ""

	return nil
}

// SubmitDetails validates the address, then runs the two strictly sequenced
// backend calls: create-order, then create-payment-intent for that order.
// Card payments move to PAYMENT; cash on delivery confirms immediately with
// the sentinel id and goes straight to SUCCESS.
func (o *Orchestrator) SubmitDetails(ctx context.Context, details ShippingDetails, method PaymentMethod) error {
	o.mu.Lock()
	if o.state != StateDetails {
		o.mu.Unlock()
		return ErrWrongState
	}
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmissionInFlight
	}
	o.submitting = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.submitting = false
		o.mu.Unlock()
	}()

	clean := details.trimmed()
	if msg, ok := o.validateDetails(clean); !ok {
		o.setErr(msg)
		return errors.New("checkout: " + msg)
	}
	if method != MethodCard && method != MethodCashOnDelivery {
		o.setErr("Unsupported payment method")
		return fmt.Errorf("checkout: unsupported payment method %q", method)
	}

	var orderResp createOrderResponse
	err := o.api.Post(ctx, "/buyer/checkout/create-order", createOrderRequest{
		DeliveryAddress:    clean.Address,
		DeliveryCity:       clean.City,
		DeliveryPostalCode: clean.PostalCode,
		ContactPhone:       clean.PhoneNumber,
		Instructions:       clean.Instructions,
	}, &orderResp)
	if err != nil {
		o.setErr(err.Error())
		return fmt.Errorf("checkout: failed to create order: %w", err)
	}
	if orderResp.OrderID == "" {
		o.setErr("Failed to create order")
		return errors.New("checkout: backend returned no order id")
	}

	o.mu.Lock()
	o.details = clean
	o.method = method
	o.orderID = orderResp.OrderID
	o.lastErr = ""
	o.mu.Unlock()

	log.Info().Str("order_id", orderResp.OrderID).Str("method", string(method)).Msg("checkout: order created")

	// Cash on delivery never touches the gateway: no payment intent, no
	// publishable key, just the sentinel confirmation.
	if method == MethodCashOnDelivery {
		return o.confirm(ctx, CODPaymentID)
	}

	var intentResp createIntentResponse
	err = o.api.Post(ctx, "/buyer/checkout/create-payment-intent", createIntentRequest{
		OrderID:       orderResp.OrderID,
		PaymentMethod: method,
	}, &intentResp)
	if err != nil {
		// The order exists server-side but the client treats the attempt as
		// not started; retrying re-creates the order. Exactly-once is the
		// backend's concern.
		o.setErr(err.Error())
		return fmt.Errorf("checkout: failed to create payment intent: %w", err)
	}

	o.mu.Lock()
	o.intent = intentResp.PaymentIntent
	o.publishableKey = intentResp.PublishableKey
	o.mu.Unlock()

	gateway, ok := o.gateways(intentResp.PublishableKey)

	o.mu.Lock()
	o.gateway = gateway
	o.mockMode = !ok
	o.transition(StatePayment)
	o.mu.Unlock()

	return nil
}

// ConfirmCardPayment runs the sensitive half of a card checkout: the card
// details go to the gateway directly, and only the resulting transaction id
// is reported back to the backend.
func (o *Orchestrator) ConfirmCardPayment(ctx context.Context, card payment.Card) error {
	o.mu.Lock()
	if o.state != StatePayment {
		o.mu.Unlock()
		return ErrWrongState
	}
	if o.mockMode {
		o.mu.Unlock()
		return errors.New("checkout: gateway not configured, use CompleteMockPayment")
	}
	gateway := o.gateway
	clientSecret := o.intent.ClientSecret
	o.mu.Unlock()

	confirmedID, err := gateway.ConfirmCardPayment(ctx, clientSecret, card)
	if err != nil {
		// Gateway failures come from a different trust boundary than backend
		// ones; keep them distinguishable for the user.
		o.setErr("Payment failed: " + err.Error())
		return fmt.Errorf("checkout: %w", err)
	}

	return o.confirm(ctx, confirmedID)
}

// CompleteMockPayment finishes a card checkout when the backend handed out a
// mock gateway key. Demo/testing path only; it is labeled, never silent.
func (o *Orchestrator) CompleteMockPayment(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StatePayment || !o.mockMode {
		o.mu.Unlock()
		return ErrWrongState
	}
	intentID := o.intent.PaymentIntentID
	o.mu.Unlock()

	log.Warn().Str("order_id", o.OrderID()).Msg("checkout: completing MOCK payment, no real gateway transaction")

	return o.confirm(ctx, intentID)
}

// BackToDetails leaves PAYMENT so the user can edit the order. A new submit
// re-creates the order.
func (o *Orchestrator) BackToDetails() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !CanTransition(o.state, StateDetails) {
		return ErrWrongState
	}
	o.transition(StateDetails)
	o.lastErr = ""

	return nil
}

// confirm reports the payment outcome to the backend and finishes the flow.
func (o *Orchestrator) confirm(ctx context.Context, paymentIntentID string) error {
	orderID := o.OrderID()

	err := o.api.Post(ctx, "/buyer/checkout/confirm-payment", confirmPaymentRequest{
		PaymentIntentID: paymentIntentID,
		OrderID:         orderID,
	}, nil)
	if err != nil {
		o.setErr(err.Error())
		return fmt.Errorf("checkout: payment confirmation failed: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.transition(StateSuccess)
	o.lastErr = ""

	log.Info().Str("order_id", orderID).Msg("checkout: order placed successfully")

	return nil
}

// transition must be called with the lock held.
func (o *Orchestrator) transition(to State) {
	if !CanTransition(o.state, to) {
		// Transitions are all internal; an illegal one is a programming
		// error worth being loud about in logs, but the user flow must not
		// die over it.
		log.Error().Str("from", o.state.String()).Str("to", to.String()).Msg("checkout: illegal state transition")
		return
	}
	o.state = to
}

func (o *Orchestrator) validateDetails(details ShippingDetails) (string, bool) {
	err := o.validate.Struct(details)
	if err == nil {
		return "", true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		switch validationErrors[0].Field() {
		case "FullName":
			return "Full name is required", false
		case "Address":
			return "Address is required", false
		case "City":
			return "City is required", false
		case "PostalCode":
			return "Postal code is required", false
		case "PhoneNumber":
			return "Phone number is required", false
		}
	}

	return "Shipping details are incomplete", false
}

func (o *Orchestrator) setErr(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastErr = msg
}

// State returns the current checkout state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Err returns the message overlaying the current state, or "".
func (o *Orchestrator) Err() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lastErr
}

// Items returns the cart lines loaded at Begin.
func (o *Orchestrator) Items() []cart.Item {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.items
}

// OrderID returns the backend order id once DETAILS has been submitted.
func (o *Orchestrator) OrderID() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.orderID
}

// PublishableKey returns the per-transaction gateway key, "" before the
// intent exists.
func (o *Orchestrator) PublishableKey() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.publishableKey
}

// MockMode reports whether the PAYMENT step runs without a real gateway.
func (o *Orchestrator) MockMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.mockMode
}

// Subtotal, Shipping and GrandTotal price the loaded cart.
func (o *Orchestrator) Subtotal() float64 {
	return Subtotal(o.Items())
}

func (o *Orchestrator) Shipping() float64 {
	return ShippingFee(o.Subtotal())
}

func (o *Orchestrator) GrandTotal() float64 {
	return Total(o.Items())
}
