package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"agromarket/internal/api"
	"agromarket/internal/session"
)

var ErrNotLoggedIn = errors.New("profile: not logged in")

// Profile is the editable slice of the account. Email is intentionally
// absent: it is the account identity and changes only through verification.
type Profile struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
}

// Service updates the authenticated user's account details.
type Service struct {
	api      *api.Client
	sessions *session.Store
}

func NewService(apiClient *api.Client, sessions *session.Store) *Service {
	return &Service{api: apiClient, sessions: sessions}
}

// Update replaces the editable profile fields.
func (s *Service) Update(ctx context.Context, p Profile) error {
	if s.sessions.Token() == "" {
		return ErrNotLoggedIn
	}

	if err := s.api.Put(ctx, "/profile/update", p, nil); err != nil {
		return fmt.Errorf("profile: update failed: %w", err)
	}

	log.Info().Msg("profile: updated")

	return nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword rotates the password for the logged-in account.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	if s.sessions.Token() == "" {
		return ErrNotLoggedIn
	}
	if len(next) < 6 {
		return errors.New("profile: new password must be at least 6 characters")
	}
	if current == next {
		return errors.New("profile: new password must differ from the current one")
	}

	err := s.api.Put(ctx, "/profile/change-password", changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, nil)
	if err != nil {
		return fmt.Errorf("profile: password change failed: %w", err)
	}

	return nil
}
