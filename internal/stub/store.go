package stub

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound        = errors.New("stub: not found")
	ErrEmailExists     = errors.New("stub: email already registered")
	ErrBadCredentials  = errors.New("stub: invalid credentials")
	ErrUnverifiedEmail = errors.New("stub: email not verified")
	ErrBadCode         = errors.New("stub: invalid verification code")
	ErrEmptyCart       = errors.New("stub: cart is empty")
)

// Account is a registered user, verified or pending.
type Account struct {
	ID           string
	Email        string
	Username     string
	FirstName    string
	LastName     string
	PhoneNumber  string
	Address      string
	City         string
	PostalCode   string
	Role         string
	PasswordHash []byte
	Verified     bool
	PendingCode  string
}

// Product is a catalogue entry.
type Product struct {
	ID          string  `json:"id"`
	FarmerID    string  `json:"farmerId"`
	ProductName string  `json:"productName"`
	Location    string  `json:"location"`
	District    string  `json:"district"`
	TotalStock  int     `json:"totalStock"`
	LatestPrice float64 `json:"latestPrice"`
}

// CartLine joins a cart entry with its product at read time, so price changes
// always reflect the current catalogue.
type CartLine struct {
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	ProductPrice float64 `json:"productPrice"`
	Quantity     int     `json:"quantity"`
	TotalAmount  float64 `json:"totalAmount"`
}

// Order is a placed order.
type Order struct {
	ID                 string    `json:"id"`
	CustomerEmail      string    `json:"customerEmail"`
	TotalAmount        float64   `json:"totalAmount"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
	PaymentID          string    `json:"paymentId,omitempty"`
	DeliveryAddress    string    `json:"deliveryAddress"`
	DeliveryCity       string    `json:"deliveryCity"`
	DeliveryPostalCode string    `json:"deliveryPostalCode"`
	ContactPhone       string    `json:"contactPhone"`
	Instructions       string    `json:"instructions,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Intent is a pending gateway payment.
type Intent struct {
	ID           string
	ClientSecret string
	OrderID      string
	Amount       float64
	Status       string
}

// Pricing mirrors the client: orders below the threshold pay a flat fee.
const (
	freeShippingThreshold = 5000.0
	flatShippingFee       = 200.0
)

// Store holds all backend state in memory. Everything resets on restart,
// which is the point of a dev backend.
type Store struct {
	mu          sync.Mutex
	accounts    map[string]*Account // by email
	products    map[string]*Product
	carts       map[string]map[string]int // email -> productID -> quantity
	orders      map[string]*Order
	intents     map[string]*Intent
	resetTokens map[string]string // token -> email
	seq         int
}

func NewStore() *Store {
	s := &Store{
		accounts:    make(map[string]*Account),
		products:    make(map[string]*Product),
		carts:       make(map[string]map[string]int),
		orders:      make(map[string]*Order),
		intents:     make(map[string]*Intent),
		resetTokens: make(map[string]string),
	}
	s.seed()

	return s
}

func (s *Store) seed() {
	for _, p := range []*Product{
		{ID: "prod-rice-01", FarmerID: "farmer-1", ProductName: "Red Rice", Location: "Anuradhapura", District: "Anuradhapura", TotalStock: 120, LatestPrice: 350},
		{ID: "prod-carrot-01", FarmerID: "farmer-2", ProductName: "Carrots", Location: "Nuwara Eliya", District: "Nuwara Eliya", TotalStock: 60, LatestPrice: 180},
		{ID: "prod-mango-01", FarmerID: "farmer-1", ProductName: "Mangoes", Location: "Jaffna", District: "Jaffna", TotalStock: 45, LatestPrice: 90},
		{ID: "prod-tea-01", FarmerID: "farmer-3", ProductName: "Ceylon Tea Leaves", Location: "Kandy", District: "Kandy", TotalStock: 200, LatestPrice: 1500},
	} {
		s.products[p.ID] = p
	}
}

// SeedAccount registers a pre-verified account, for tests and local demos.
func (s *Store) SeedAccount(email, password, role string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("stub: failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	if _, exists := s.accounts[email]; exists {
		return nil, ErrEmailExists
	}

	acc := &Account{
		ID:           s.nextID("user"),
		Email:        email,
		Username:     strings.SplitN(email, "@", 2)[0],
		Role:         strings.ToUpper(role),
		PasswordHash: hash,
		Verified:     true,
	}
	s.accounts[email] = acc

	return acc, nil
}

// Register creates a pending account and returns the verification code a real
// deployment would email out.
func (s *Store) Register(acc Account, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("stub: failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(acc.Email)
	if existing, exists := s.accounts[email]; exists && existing.Verified {
		return "", ErrEmailExists
	}

	acc.ID = s.nextID("user")
	acc.Email = email
	acc.Role = strings.ToUpper(acc.Role)
	acc.PasswordHash = hash
	acc.Verified = false
	acc.PendingCode = s.nextCode()
	s.accounts[email] = &acc

	return acc.PendingCode, nil
}

// Verify finishes registration with the emailed code.
func (s *Store) Verify(email, code string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	if acc.Verified {
		return acc, nil
	}
	if acc.PendingCode == "" || acc.PendingCode != code {
		return nil, ErrBadCode
	}

	acc.Verified = true
	acc.PendingCode = ""

	return acc, nil
}

// ResendCode issues a fresh verification code for a pending account.
func (s *Store) ResendCode(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return "", ErrNotFound
	}
	if acc.Verified {
		return "", fmt.Errorf("stub: %s is already verified", email)
	}

	acc.PendingCode = s.nextCode()

	return acc.PendingCode, nil
}

// Authenticate checks credentials against email or phone number.
func (s *Store) Authenticate(identifier, password string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(identifier)]
	if !ok {
		for _, candidate := range s.accounts {
			if candidate.PhoneNumber != "" && candidate.PhoneNumber == identifier {
				acc, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	if bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	if !acc.Verified {
		return acc, ErrUnverifiedEmail
	}

	return acc, nil
}

// AccountByEmail looks an account up regardless of verification state.
func (s *Store) AccountByEmail(email string) (*Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(email)]

	return acc, ok
}

// UpdateProfile overwrites the editable account fields.
func (s *Store) UpdateProfile(email, firstName, lastName, phone, address, city, postalCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return ErrNotFound
	}

	acc.FirstName = firstName
	acc.LastName = lastName
	acc.PhoneNumber = phone
	acc.Address = address
	acc.City = city
	acc.PostalCode = postalCode

	return nil
}

// ChangePassword rotates the password after checking the current one.
func (s *Store) ChangePassword(email, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return ErrNotFound
	}
	if bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(current)) != nil {
		return ErrBadCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("stub: failed to hash password: %w", err)
	}
	acc.PasswordHash = hash

	return nil
}

// CreateResetToken starts a password reset for the given email.
func (s *Store) CreateResetToken(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[normalizeEmail(email)]; !ok {
		return "", ErrNotFound
	}

	token := newUUID()
	s.resetTokens[token] = normalizeEmail(email)

	return token, nil
}

// ResetPassword redeems a reset token. Tokens are single use.
func (s *Store) ResetPassword(token, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.resetTokens[token]
	if !ok {
		return ErrNotFound
	}
	acc, ok := s.accounts[email]
	if !ok {
		return ErrNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("stub: failed to hash password: %w", err)
	}
	acc.PasswordHash = hash
	delete(s.resetTokens, token)

	return nil
}

// AccountStats counts registered accounts by role for the admin dashboard.
func (s *Store) AccountStats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]int{
		"totalFarmers": 0, "totalBuyers": 0, "totalDrivers": 0,
		"totalAdmins": 0, "totalUsers": 0, "totalVerifiedUsers": 0,
	}
	for _, acc := range s.accounts {
		switch acc.Role {
		case "FARMER":
			stats["totalFarmers"]++
		case "BUYER":
			stats["totalBuyers"]++
		case "DRIVER":
			stats["totalDrivers"]++
		case "ADMIN":
			stats["totalAdmins"]++
		}
		stats["totalUsers"]++
		if acc.Verified {
			stats["totalVerifiedUsers"]++
		}
	}

	return stats
}

// Products lists the catalogue, optionally filtered by district.
func (s *Store) Products(district string) []*Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Product, 0, len(s.products))
	for _, p := range s.products {
		if district == "" || strings.EqualFold(p.District, district) {
			out = append(out, p)
		}
	}

	return out
}

// AddToCart creates or increments a line. The product must exist.
func (s *Store) AddToCart(email, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return ErrNotFound
	}

	email = normalizeEmail(email)
	if s.carts[email] == nil {
		s.carts[email] = make(map[string]int)
	}
	s.carts[email][productID] += quantity

	return nil
}

// UpdateCart sets a line's quantity exactly; zero or less removes it.
func (s *Store) UpdateCart(email, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	if quantity <= 0 {
		delete(s.carts[email], productID)
		return nil
	}
	if _, ok := s.products[productID]; !ok {
		return ErrNotFound
	}
	if s.carts[email] == nil {
		s.carts[email] = make(map[string]int)
	}
	s.carts[email][productID] = quantity

	return nil
}

// RemoveFromCart drops a line; removing an absent line succeeds.
func (s *Store) RemoveFromCart(email, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts[normalizeEmail(email)], productID)
}

// ClearCart empties the cart.
func (s *Store) ClearCart(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, normalizeEmail(email))
}

// CartLines materializes the cart against the current catalogue.
func (s *Store) CartLines(email string) ([]CartLine, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cartLinesLocked(normalizeEmail(email))
}

func (s *Store) cartLinesLocked(email string) ([]CartLine, float64) {
	lines := make([]CartLine, 0, len(s.carts[email]))
	total := 0.0
	for productID, quantity := range s.carts[email] {
		p, ok := s.products[productID]
		if !ok {
			continue
		}
		amount := p.LatestPrice * float64(quantity)
		lines = append(lines, CartLine{
			ProductID:    productID,
			ProductName:  p.ProductName,
			ProductPrice: p.LatestPrice,
			Quantity:     quantity,
			TotalAmount:  amount,
		})
		total += amount
	}

	return lines, total
}

// CreateOrder snapshots the cart into a pending order. The cart is kept until
// payment confirms, matching the client's refetch-on-failure model.
func (s *Store) CreateOrder(email, address, city, postalCode, phone, instructions string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	_, subtotal := s.cartLinesLocked(email)
	if subtotal == 0 {
		return nil, ErrEmptyCart
	}

	total := subtotal
	if subtotal <= freeShippingThreshold {
		total += flatShippingFee
	}

	order := &Order{
		ID:                 s.nextID("order"),
		CustomerEmail:      email,
		TotalAmount:        total,
		Status:             "PENDING",
		PaymentStatus:      "PENDING",
		DeliveryAddress:    address,
		DeliveryCity:       city,
		DeliveryPostalCode: postalCode,
		ContactPhone:       phone,
		Instructions:       instructions,
		CreatedAt:          time.Now(),
	}
	s.orders[order.ID] = order

	return order, nil
}

// CreateIntent opens a gateway payment for an order.
func (s *Store) CreateIntent(orderID string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}

	s.seq++
	intent := &Intent{
		ID:      fmt.Sprintf("pi_%d", s.seq),
		OrderID: orderID,
		Amount:  order.TotalAmount,
		Status:  "requires_confirmation",
	}
	intent.ClientSecret = fmt.Sprintf("%s_secret_%s", intent.ID, newUUID())
	s.intents[intent.ID] = intent

	return intent, nil
}

// IntentByID looks a payment intent up, for the gateway side.
func (s *Store) IntentByID(id string) (*Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]

	return intent, ok
}

// MarkIntentSucceeded records a gateway confirmation.
func (s *Store) MarkIntentSucceeded(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return ErrNotFound
	}
	intent.Status = "succeeded"

	return nil
}

// ConfirmPayment finalizes an order and empties the buyer's cart. The
// paymentID may be a gateway intent id or the cash-on-delivery sentinel.
func (s *Store) ConfirmPayment(orderID, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}

	order.PaymentStatus = "PAID"
	if paymentID == "cod_payment" {
		order.PaymentStatus = "COD"
	}
	order.Status = "CONFIRMED"
	order.PaymentID = paymentID
	delete(s.carts, order.CustomerEmail)

	return nil
}

// OrdersByEmail lists a buyer's orders.
func (s *Store) OrdersByEmail(email string) []*Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	out := make([]*Order, 0)
	for _, order := range s.orders {
		if order.CustomerEmail == email {
			out = append(out, order)
		}
	}

	return out
}

// OrderByID fetches one order scoped to its owner.
func (s *Store) OrderByID(email, orderID string) (*Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.CustomerEmail != normalizeEmail(email) {
		return nil, false
	}

	return order, true
}

// CancelOrder cancels a not-yet-shipped order.
func (s *Store) CancelOrder(email, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.CustomerEmail != normalizeEmail(email) {
		return ErrNotFound
	}
	if order.Status == "SHIPPED" || order.Status == "DELIVERED" {
		return fmt.Errorf("stub: order %s already %s", orderID, strings.ToLower(order.Status))
	}

	order.Status = "CANCELLED"

	return nil
}

func (s *Store) nextID(prefix string) string {
	s.seq++

	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Store) nextCode() string {
	s.seq++

	return fmt.Sprintf("%06d", 100000+s.seq%900000)
}

func newUUID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}

	return id.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
