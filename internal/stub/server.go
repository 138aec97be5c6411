package stub

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Server is a self-contained marketplace backend for local development: real
// JWT auth, bcrypt accounts, a seeded catalogue and a Stripe-shaped gateway,
// all in memory. It exists so the client can be exercised end to end without
// a deployment.
type Server struct {
	cfg    *Config
	store  *Store
	tokens *tokenIssuer
}

func NewServer(cfg *Config, store *Store) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		tokens: newTokenIssuer(cfg.JWT.Secret, cfg.JWT.Expiry),
	}
}

type contextKey string

const claimsKey contextKey = "claims"

// Router mounts the marketplace API under /api and the payment gateway under
// /gateway, mirroring how the two services are addressed in configuration.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(newRateLimiter(s.cfg.RateLimit.PerSecond, s.cfg.RateLimit.Burst).middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Get("/auth/check-email", s.handleCheckEmail)
		r.Post("/auth/forgot-password", s.handleForgotPassword)
		r.Post("/auth/reset-password", s.handleResetPassword)

		r.Post("/verification/verify-email", s.handleVerifyEmail)
		r.Post("/verification/resend-code", s.handleResendCode)

		for _, role := range []string{"buyer", "farmer", "admin"} {
			role := role
			r.Post("/"+role+"/register", s.handleRegister(strings.ToUpper(role)))
			r.Post("/"+role+"/login", s.handleLegacyLogin)
		}

		r.Get("/warehouse/marketplace/products", s.handleProducts)

		r.Get("/dev/cart/{email}", s.handleDevCartList)
		r.Post("/dev/cart/{email}/add", s.handleDevCartAdd)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Put("/profile/update", s.handleProfileUpdate)
			r.Put("/profile/change-password", s.handleChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole("ADMIN"))

				r.Get("/admin/stats", s.handleAdminStats)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole("BUYER"))

				r.Get("/buyer/cart", s.handleCartList)
				r.Post("/buyer/cart/add", s.handleCartAdd)
				r.Put("/buyer/cart/update", s.handleCartUpdate)
				r.Delete("/buyer/cart/remove/{productId}", s.handleCartRemove)
				r.Delete("/buyer/cart/clear", s.handleCartClear)

				r.Post("/buyer/checkout/create-order", s.handleCreateOrder)
				r.Post("/buyer/checkout/create-payment-intent", s.handleCreateIntent)
				r.Post("/buyer/checkout/confirm-payment", s.handleConfirmPayment)

				r.Get("/buyer/orders", s.handleOrders)
				r.Get("/buyer/orders/{orderId}", s.handleOrderDetails)
				r.Put("/buyer/orders/{orderId}/cancel", s.handleCancelOrder)
			})
		})
	})

	r.Route("/gateway", func(r chi.Router) {
		r.Post("/v1/payment_intents/{intentId}/confirm", s.handleGatewayConfirm)
	})

	return r
}

// authenticate requires a valid bearer token and stashes its claims.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing or malformed Authorization header")
			return
		}

		claims, err := s.tokens.validate(raw)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requireRole gates a route group to one role with a 403, the same answer a
// production deployment gives a buyer route hit with a non-buyer token.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r)
			if claims == nil || claims.Role != role {
				respondWithError(w, http.StatusForbidden, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func claimsFrom(r *http.Request) *tokenClaims {
	claims, _ := r.Context().Value(claimsKey).(*tokenClaims)

	return claims
}

func accountJSON(acc *Account) map[string]any {
	return map[string]any{
		"id":          acc.ID,
		"email":       acc.Email,
		"username":    acc.Username,
		"firstName":   acc.FirstName,
		"lastName":    acc.LastName,
		"phoneNumber": acc.PhoneNumber,
		"role":        acc.Role,
	}
}

func (s *Server) loginResponse(w http.ResponseWriter, acc *Account) {
	token, err := s.tokens.issue(acc)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  accountJSON(acc),
		"role":  "ROLE_" + acc.Role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, err := s.store.Authenticate(req.Identifier, req.Password)
	if err != nil {
		if acc != nil && err == ErrUnverifiedEmail {
			respondWithJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "UNVERIFIED_EMAIL",
				"email":   acc.Email,
				"message": "Please verify your email before logging in",
			})
			return
		}
		respondWithError(w, http.StatusUnauthorized, "Invalid email/phone or password")
		return
	}

	s.loginResponse(w, acc)
}

func (s *Server) handleLegacyLogin(w http.ResponseWriter, r *http.Request) {
	// Same credentials check as the unified endpoint; the role segment in the
	// path is historical.
	s.handleLogin(w, r)
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.store.AccountByEmail(r.URL.Query().Get("email"))
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"exists": true, "role": acc.Role})
}

func (s *Server) handleRegister(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username    string `json:"username"`
			FirstName   string `json:"firstName"`
			LastName    string `json:"lastName"`
			Email       string `json:"email"`
			PhoneNumber string `json:"phoneNumber"`
			Address     string `json:"address"`
			City        string `json:"city"`
			PostalCode  string `json:"postalCode"`
			Password    string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			respondWithError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		code, err := s.store.Register(Account{
			Email:       req.Email,
			Username:    req.Username,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
			City:        req.City,
			PostalCode:  req.PostalCode,
			Role:        role,
		}, req.Password)
		if err != nil {
			respondWithError(w, mapErrorToStatusCode(err), "Email is already registered")
			return
		}

		// A real deployment emails the code; the stub logs it instead.
		log.Info().Str("email", req.Email).Str("code", code).Msg("stub: verification code issued")

		respondWithJSON(w, http.StatusOK, map[string]any{
			"requiresVerification": true,
			"message":              "Verification code sent",
		})
	}
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		UserType string `json:"userType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, err := s.store.Verify(req.Email, req.Code)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Invalid verification code")
		return
	}

	s.loginResponse(w, acc)
}

func (s *Server) handleResendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	code, err := s.store.ResendCode(req.Email)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to resend code")
		return
	}

	log.Info().Str("email", req.Email).Str("code", code).Msg("stub: verification code reissued")
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := s.store.CreateResetToken(req.Email)
	if err != nil {
		// Do not reveal whether the address is registered.
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a reset link was sent"})
		return
	}

	log.Info().Str("email", req.Email).Str("token", token).Msg("stub: password reset token issued")
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a reset link was sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.ResetPassword(req.Token, req.NewPassword); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req struct {
		FirstName   string `json:"firstName"`
		LastName    string `json:"lastName"`
		PhoneNumber string `json:"phoneNumber"`
		Address     string `json:"address"`
		City        string `json:"city"`
		PostalCode  string `json:"postalCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.store.UpdateProfile(claims.Email, req.FirstName, req.LastName, req.PhoneNumber, req.Address, req.City, req.PostalCode)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update profile")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.ChangePassword(claims.Email, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.store.AccountStats())
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.store.Products(r.URL.Query().Get("district")))
}

func cartJSON(lines []CartLine, total float64) map[string]any {
	return map[string]any{"items": lines, "totalAmount": total}
}

func (s *Server) handleCartList(w http.ResponseWriter, r *http.Request) {
	lines, total := s.store.CartLines(claimsFrom(r).Email)
	respondWithJSON(w, http.StatusOK, cartJSON(lines, total))
}

type cartMutation struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartMutation
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity <= 0 {
		respondWithError(w, http.StatusBadRequest, "Quantity must be positive")
		return
	}

	if err := s.store.AddToCart(claimsFrom(r).Email, req.ProductID, req.Quantity); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Product not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Added to cart"})
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req cartMutation
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.UpdateCart(claimsFrom(r).Email, req.ProductID, req.Quantity); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Product not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	s.store.RemoveFromCart(claimsFrom(r).Email, chi.URLParam(r, "productId"))
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Removed from cart"})
}

func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	s.store.ClearCart(claimsFrom(r).Email)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// Dev cart endpoints bypass auth and address a cart by email. They exist for
// the client's 403 fallback path and must never be exposed in production.
func (s *Server) handleDevCartList(w http.ResponseWriter, r *http.Request) {
	lines, total := s.store.CartLines(chi.URLParam(r, "email"))
	respondWithJSON(w, http.StatusOK, cartJSON(lines, total))
}

func (s *Server) handleDevCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartMutation
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.AddToCart(chi.URLParam(r, "email"), req.ProductID, req.Quantity); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Product not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Added to cart"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryAddress    string `json:"deliveryAddress"`
		DeliveryCity       string `json:"deliveryCity"`
		DeliveryPostalCode string `json:"deliveryPostalCode"`
		ContactPhone       string `json:"contactPhone"`
		Instructions       string `json:"instructions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := s.store.CreateOrder(claimsFrom(r).Email, req.DeliveryAddress, req.DeliveryCity, req.DeliveryPostalCode, req.ContactPhone, req.Instructions)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": order.ID})
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	intent, err := s.store.CreateIntent(req.OrderID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create payment intent")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"paymentIntent": map[string]any{
			"paymentIntentId": intent.ID,
			"clientSecret":    intent.ClientSecret,
			"amount":          intent.Amount,
			"currency":        "lkr",
		},
		"publishableKey": s.cfg.Gateway.PublishableKey,
	})
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentIntentID string `json:"paymentIntentId"`
		OrderID         string `json:"orderId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.store.ConfirmPayment(req.OrderID, req.PaymentIntentID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Payment confirmation failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Payment processed successfully"})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  s.store.OrdersByEmail(claimsFrom(r).Email),
	})
}

func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	order, ok := s.store.OrderByID(claimsFrom(r).Email, chi.URLParam(r, "orderId"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.store.CancelOrder(claimsFrom(r).Email, chi.URLParam(r, "orderId")); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleGatewayConfirm is the Stripe-shaped confirm endpoint. A card number
// ending in 0002 declines, everything else succeeds.
func (s *Server) handleGatewayConfirm(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	key, found := strings.CutPrefix(header, "Bearer ")
	if !found || key != s.cfg.Gateway.PublishableKey {
		respondWithJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]string{"message": "Invalid publishable key"},
		})
		return
	}

	var req struct {
		ClientSecret  string `json:"client_secret"`
		PaymentMethod struct {
			Card struct {
				Number string `json:"number"`
			} `json:"card"`
		} `json:"payment_method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": "Invalid request body"},
		})
		return
	}

	intentID := chi.URLParam(r, "intentId")
	intent, ok := s.store.IntentByID(intentID)
	if !ok || intent.ClientSecret != req.ClientSecret {
		respondWithJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"message": "No such payment intent"},
		})
		return
	}

	if strings.HasSuffix(req.PaymentMethod.Card.Number, "0002") {
		respondWithJSON(w, http.StatusPaymentRequired, map[string]any{
			"error": map[string]string{"message": "Your card was declined."},
		})
		return
	}

	if err := s.store.MarkIntentSucceeded(intentID); err != nil {
		respondWithJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"message": "No such payment intent"},
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"id": intentID, "status": "succeeded"})
}
