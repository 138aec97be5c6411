package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"agromarket/internal/api"
	"agromarket/internal/session"
)

var ErrInvalidCredentials = errors.New("auth: invalid email/phone or password")

// UnverifiedEmailError means the credentials were right but the account has
// not finished email verification. The caller should route the user to the
// verification step with the carried email.
type UnverifiedEmailError struct {
	Email   string
	Message string
}

func (e *UnverifiedEmailError) Error() string {
	return fmt.Sprintf("auth: email %s is not verified", e.Email)
}

// Service handles login, registration and the email verification loop, and
// commits the resulting session to durable storage.
type Service struct {
	api      *api.Client
	sessions *session.Store
	validate *validator.Validate
}

func NewService(apiClient *api.Client, sessions *session.Store) *Service {
	return &Service{
		api:      apiClient,
		sessions: sessions,
		validate: validator.New(),
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
	Role  string       `json:"role"`
}

type unverifiedEmailBody struct {
	Error   string `json:"error"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Login authenticates against the unified endpoint; the identifier may be an
// email or a phone number. On success the session is persisted before return.
func (s *Service) Login(ctx context.Context, identifier, password string) (*session.Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var resp loginResponse
	err := s.api.Post(ctx, "/auth/login", loginRequest{Identifier: identifier, Password: password}, &resp)
	if err != nil {
		if unverified := asUnverified(err); unverified != nil {
			return nil, unverified
		}
		if api.IsStatus(err, http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: login failed: %w", err)
	}

	return s.commit(resp)
}

// LoginAs uses the legacy per-role endpoint kept for older deployments.
func (s *Service) LoginAs(ctx context.Context, role session.Role, email, password string) (*session.Session, error) {
	var resp loginResponse
	path := "/" + strings.ToLower(string(role)) + "/login"
	err := s.api.Post(ctx, path, loginRequest{Identifier: email, Password: password}, &resp)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: login failed: %w", err)
	}

	if resp.Role == "" {
		resp.Role = string(role)
	}

	return s.commit(resp)
}

func (s *Service) commit(resp loginResponse) (*session.Session, error) {
	sess, ok := s.sessions.Login(session.LoginPayload{
		Token: resp.Token,
		User:  resp.User,
		Role:  resp.Role,
	}, resp.Role)
	if !ok {
		return nil, errors.New("auth: backend returned an incomplete login response")
	}

	log.Info().Str("role", string(sess.Role)).Msg("auth: logged in")

	return sess, nil
}

// asUnverified unpacks the structured 401 body the backend sends when the
// account exists but the email is unverified.
func asUnverified(err error) *UnverifiedEmailError {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return nil
	}

	var body unverifiedEmailBody
	if json.Unmarshal(apiErr.Body, &body) != nil || body.Error != "UNVERIFIED_EMAIL" {
		return nil
	}

	return &UnverifiedEmailError{Email: body.Email, Message: body.Message}
}

// Logout clears the stored session. Safe to call when already logged out.
func (s *Service) Logout() {
	s.sessions.Logout()
}

// Registration is the sign-up form. The shipping address is collected up
// front so buyers can check out without editing their profile first.
type Registration struct {
	Username    string `json:"username" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Address     string `json:"address"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Password    string `json:"password" validate:"required,min=6"`
}

type RegisterResult struct {
	RequiresVerification bool   `json:"requiresVerification"`
	Message              string `json:"message"`
}

// Register signs a new account up under the given role. Most deployments
// respond with RequiresVerification set; the flow then continues through
// VerifyEmail.
func (s *Service) Register(ctx context.Context, role session.Role, form Registration) (*RegisterResult, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, fmt.Errorf("auth: invalid registration: %w", err)
	}

	var result RegisterResult
	path := "/" + strings.ToLower(string(role)) + "/register"
	if err := s.api.Post(ctx, path, form, &result); err != nil {
		return nil, fmt.Errorf("auth: registration failed: %w", err)
	}

	return &result, nil
}

type emailCheck struct {
	Exists bool   `json:"exists"`
	Role   string `json:"role"`
}

// CheckEmail reports whether the address is already registered, and under
// which role when it is.
func (s *Service) CheckEmail(ctx context.Context, email string) (bool, session.Role, error) {
	var resp emailCheck
	path := "/auth/check-email?email=" + url.QueryEscape(email)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return false, "", fmt.Errorf("auth: email check failed: %w", err)
	}

	role, _ := session.ParseRole(resp.Role)

	return resp.Exists, role, nil
}

type verifyEmailRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	UserType string `json:"userType"`
}

// VerifyEmail submits the emailed code and completes registration. The
// backend issues a token right away, so a successful verification leaves the
// user logged in.
func (s *Service) VerifyEmail(ctx context.Context, email, code string, role session.Role) (*session.Session, error) {
	var resp loginResponse
	err := s.api.Post(ctx, "/verification/verify-email", verifyEmailRequest{
		Email:    email,
		Code:     code,
		UserType: string(role),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("auth: verification failed: %w", err)
	}

	return s.commit(resp)
}

// ResendCode requests a fresh verification code for a pending registration.
func (s *Service) ResendCode(ctx context.Context, email string, role session.Role) error {
	err := s.api.Post(ctx, "/verification/resend-code", map[string]string{
		"email":    email,
		"userType": string(role),
	}, nil)
	if err != nil {
		return fmt.Errorf("auth: failed to resend code: %w", err)
	}

	return nil
}

// ForgotPassword starts a password reset; the backend mails a reset token.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	err := s.api.Post(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil)
	if err != nil {
		return fmt.Errorf("auth: failed to request password reset: %w", err)
	}

	return nil
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPassword redeems a reset token for a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return errors.New("auth: passwords do not match")
	}
	if len(newPassword) < 6 {
		return errors.New("auth: password must be at least 6 characters")
	}

	err := s.api.Post(ctx, "/auth/reset-password", resetPasswordRequest{
		Token:           token,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}, nil)
	if err != nil {
		return fmt.Errorf("auth: password reset failed: %w", err)
	}

	return nil
}
