package session

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"agromarket/internal/storage"
)

// Role is the normalized actor role. The backend reports roles both bare
// ("BUYER") and prefixed ("ROLE_BUYER"); everything in this package works on
// the bare form.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleFarmer    Role = "FARMER"
	RoleBuyer     Role = "BUYER"
	RoleDriver    Role = "DRIVER"
	RoleWarehouse Role = "WAREHOUSE"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes a raw role string, stripping a ROLE_ prefix if present.
// The second return value reports whether the result is a known role.
func ParseRole(raw string) (Role, bool) {
	normalized := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "ROLE_")

	switch Role(normalized) {
	case RoleAdmin, RoleFarmer, RoleBuyer, RoleDriver, RoleWarehouse:
		return Role(normalized), true
	default:
		return "", false
	}
}

// User is the authenticated account record as returned by the login endpoint.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

// Session is the client's record of who is logged in.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
	Role  Role   `json:"role"`
}

// LoginPayload is the backend's login response body.
type LoginPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
	Role  string `json:"role,omitempty"`
}

// Storage keys. The combined shape under keyUser is what current logins
// write; the per-role keys are a legacy shape older builds wrote and are
// read for backward compatibility only.
const (
	keyToken = "token"
	keyUser  = "user"
)

var legacyKeys = []string{"admin", "farmer", "buyer"}

// Store is the single owner of the session. Everything else only reads it.
type Store struct {
	mu      sync.RWMutex
	storage *storage.Store
	current *Session
	loading bool
}

// NewStore returns a store in the loading state. Callers must not treat the
// absence of a session as "logged out" until Hydrate has run.
func NewStore(st *storage.Store) *Store {
	return &Store{storage: st, loading: true}
}

// Hydrate restores a prior session from durable storage. Absent, malformed or
// partially written entries all degrade to "no session"; Hydrate never fails.
func (s *Store) Hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() { s.loading = false }()

	if sess, ok := s.decodeCombined(); ok {
		s.current = sess
		log.Debug().Str("role", sess.Role.String()).Msg("session: restored from storage")
		return
	}

	for _, key := range legacyKeys {
		if sess, ok := s.decodeLegacy(key); ok {
			s.current = sess
			log.Debug().Str("role", sess.Role.String()).Str("key", key).Msg("session: restored from legacy storage shape")
			return
		}
	}

	s.current = nil
}

// decodeCombined attempts the current storage shape: the raw token under
// "token" and the full login payload under "user".
func (s *Store) decodeCombined() (*Session, bool) {
	userData, ok := s.storage.Get(keyUser)
	if !ok {
		return nil, false
	}

	var payload LoginPayload
	if err := json.Unmarshal(userData, &payload); err != nil {
		log.Warn().Err(err).Msg("session: ignoring malformed user record in storage")
		return nil, false
	}

	token := payload.Token
	if tokenData, ok := s.storage.Get(keyToken); ok {
		token = strings.TrimSpace(string(tokenData))
	}
	if token == "" {
		return nil, false
	}

	rawRole := payload.Role
	if rawRole == "" {
		rawRole = string(payload.User.Role)
	}
	role, ok := ParseRole(rawRole)
	if !ok {
		return nil, false
	}

	user := payload.User
	user.Role = role

	return &Session{Token: token, User: user, Role: role}, true
}

// legacyRecord is the old per-role shape: the account fields at the top level
// with the token alongside them.
type legacyRecord struct {
	Token       string `json:"token"`
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

func (s *Store) decodeLegacy(key string) (*Session, bool) {
	data, ok := s.storage.Get(key)
	if !ok {
		return nil, false
	}

	var rec legacyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("session: ignoring malformed legacy record in storage")
		return nil, false
	}
	if rec.Token == "" {
		return nil, false
	}

	role, ok := ParseRole(key)
	if !ok {
		return nil, false
	}

	return &Session{
		Token: rec.Token,
		User: User{
			ID:          rec.ID,
			Email:       rec.Email,
			Username:    rec.Username,
			FirstName:   rec.FirstName,
			LastName:    rec.LastName,
			PhoneNumber: rec.PhoneNumber,
			Role:        role,
		},
		Role: role,
	}, true
}

// Login records a successful authentication. It is a pure state transition:
// the network call has already happened in the auth service, this only
// normalizes the payload and persists it.
func (s *Store) Login(payload LoginPayload, rawRole string) (*Session, bool) {
	role, ok := ParseRole(rawRole)
	if !ok {
		log.Warn().Str("role", rawRole).Msg("session: refusing login with unknown role")
		return nil, false
	}

	user := payload.User
	user.Role = role

	sess := &Session{Token: payload.Token, User: user, Role: role}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = sess
	s.loading = false

	if err := s.storage.Set(keyToken, []byte(payload.Token)); err != nil {
		log.Warn().Err(err).Msg("session: failed to persist token")
	}

	stored := payload
	stored.Role = role.String()
	stored.User = user
	if data, err := json.Marshal(stored); err == nil {
		if err := s.storage.Set(keyUser, data); err != nil {
			log.Warn().Err(err).Msg("session: failed to persist user record")
		}
	}

	return sess, true
}

// Logout clears the in-memory session and every known storage key, current
// and legacy. Calling it while logged out is a no-op.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.loading = false

	for _, key := range append([]string{keyToken, keyUser}, legacyKeys...) {
		if err := s.storage.Delete(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("session: failed to clear storage key")
		}
	}
}

// Current returns a copy of the active session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Session{}, false
	}

	return *s.current, true
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return ""
	}

	return s.current.Token
}

// Loading reports whether Hydrate has not completed yet. Consumers must not
// render access-controlled behavior while this is true.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// AuthHeaders returns the headers outgoing requests need: empty when logged
// out, a single bearer entry otherwise. It never fails.
func (s *Store) AuthHeaders() map[string]string {
	token := s.Token()
	if token == "" {
		return map[string]string{}
	}

	return map[string]string{"Authorization": "Bearer " + token}
}

// ExpiresAt reads the expiry claim out of the bearer token without verifying
// its signature (the client has no signing key; the backend remains the
// authority). The second return value is false when the token is not a JWT or
// carries no expiry.
func (s *Store) ExpiresAt() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
