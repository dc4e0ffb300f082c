package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/session"
)

// TokenStorageKey is the storage entry holding the session token
const TokenStorageKey = "jwt_token"

// ErrNotAuthenticated is returned by operations that need a signed-in user
var ErrNotAuthenticated = errors.New("not signed in")

// AuthService manages the signed-in user and the stored token. It is the
// session provider consulted by command guards.
type AuthService struct {
	store   ports.KeyValueStore
	api     ports.APIGateway
	session *session.Session
	logger  ports.LoggingGateway
	now     func() time.Time
}

// NewAuthService creates a new auth service around sess
func NewAuthService(store ports.KeyValueStore, api ports.APIGateway, sess *session.Session, logger ports.LoggingGateway) *AuthService {
	return &AuthService{
		store:   store,
		api:     api,
		session: sess,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore seeds the session with the stored token, if any
func (s *AuthService) Restore(ctx context.Context) error {
	token, ok, err := s.store.GetItem(ctx, TokenStorageKey)
	if err != nil {
		return fmt.Errorf("failed to read stored token: %w", err)
	}
	if ok && token != "" {
		s.session.SetToken(token)
	}
	return nil
}

// Login signs in with email and password and stores the returned token
func (s *AuthService) Login(ctx context.Context, email, password string) (*session.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	user, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Log(ports.LogLevelInfo, "Signed in", map[string]interface{}{
		"username": user.Username,
	})
	return s.session.User(), nil
}

// Register creates an account, signs it in and stores the returned token
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*session.User, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required")
	}

	user, err := s.api.Register(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Log(ports.LogLevelInfo, "Account registered", map[string]interface{}{
		"username": user.Username,
	})
	return s.session.User(), nil
}

// Logout forgets the user and removes the stored token
func (s *AuthService) Logout(ctx context.Context) error {
	s.session.Clear()
	if err := s.store.RemoveItem(ctx, TokenStorageKey); err != nil {
		return fmt.Errorf("failed to remove stored token: %w", err)
	}
	return nil
}

// CheckAuth loads the user owning the stored token. It does nothing without
// a token or when a user is already loaded. A locally expired token is
// dropped without a network call; any failure clears the session and is
// returned.
func (s *AuthService) CheckAuth(ctx context.Context) error {
	token := s.session.Token()
	if token == "" || s.session.IsAuthenticated() {
		return nil
	}

	if err := session.CheckTokenExpiry(token, s.now()); err != nil {
		s.clearAuth(ctx)
		return err
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.logger.LogError(err, "Token verification failed", nil)
		s.clearAuth(ctx)
		return err
	}

	if user.Token == "" {
		user.Token = token
	}
	s.session.SetUser(user)
	return nil
}

// UpdateSettings applies patch on the server and merges the result into the
// loaded user
func (s *AuthService) UpdateSettings(ctx context.Context, patch session.UserPatch) (*session.User, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("no settings to update")
	}
	if s.session.Token() == "" {
		return nil, ErrNotAuthenticated
	}

	updated, err := s.api.UpdateUser(ctx, patch)
	if err != nil {
		return nil, err
	}

	if current := s.session.User(); current != nil {
		current.Merge(updated)
		s.session.SetUser(current)
	}

	if updated.Token != "" && updated.Token != s.session.Token() {
		s.session.SetToken(updated.Token)
		if err := s.store.SetItem(ctx, TokenStorageKey, updated.Token); err != nil {
			return updated, fmt.Errorf("failed to store token: %w", err)
		}
	}

	return updated, nil
}

// User returns a copy of the signed-in user, or nil
func (s *AuthService) User() *session.User {
	return s.session.User()
}

// Token returns the stored token
func (s *AuthService) Token() string {
	return s.session.Token()
}

// IsAuthenticated reports whether a user is loaded
func (s *AuthService) IsAuthenticated() bool {
	return s.session.IsAuthenticated()
}

// UserImage returns the avatar to show for the current visitor
func (s *AuthService) UserImage() string {
	return s.session.Image()
}

func (s *AuthService) signIn(ctx context.Context, user *session.User) error {
	if user == nil || user.Token == "" {
		return fmt.Errorf("server returned no token")
	}
	s.session.SignIn(user)
	if err := s.store.SetItem(ctx, TokenStorageKey, user.Token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *AuthService) clearAuth(ctx context.Context) {
	s.session.Clear()
	if err := s.store.RemoveItem(ctx, TokenStorageKey); err != nil {
		s.logger.LogError(err, "Failed to remove stored token", nil)
	}
}
