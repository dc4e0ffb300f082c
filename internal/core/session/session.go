package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GuestImage is shown for visitors who are not signed in
const GuestImage = "https://api.dicebear.com/8.x/bottts-neutral/svg?seed=guest"

// DefaultAvatar is shown for signed-in users without an image
const DefaultAvatar = "http://localhost:9000/realworld-media/assets/default-avatar.jpg"

// User is the signed-in account as returned by the platform
type User struct {
	Email    string  `json:"email"`
	Token    string  `json:"token"`
	Username string  `json:"username"`
	Bio      *string `json:"bio"`
	Image    *string `json:"image"`
}

// UserPatch is a partial settings update; nil fields are left unchanged
type UserPatch struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Image    *string `json:"image,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p UserPatch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.Password == nil && p.Bio == nil && p.Image == nil
}

// Merge copies the non-empty fields of updated into u
func (u *User) Merge(updated *User) {
	if updated == nil {
		return
	}
	if updated.Email != "" {
		u.Email = updated.Email
	}
	if updated.Token != "" {
		u.Token = updated.Token
	}
	if updated.Username != "" {
		u.Username = updated.Username
	}
	u.Bio = updated.Bio
	u.Image = updated.Image
}

// Session holds the signed-in user and the stored token
type Session struct {
	mu    sync.RWMutex
	user  *User
	token string
}

// NewSession creates a session seeded with a previously stored token
func NewSession(token string) *Session {
	return &Session{token: token}
}

// SignIn records user and its token
func (s *Session) SignIn(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	if user != nil {
		s.token = user.Token
	}
}

// SetUser replaces the loaded user while keeping the token
func (s *Session) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// SetToken replaces the stored token without loading a user
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops both the user and the token
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
}

// User returns a copy of the signed-in user, or nil
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the stored token
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a user is loaded
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Image returns the user image, the default avatar, or the guest image
func (s *Session) Image() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.user != nil && s.user.Image != nil && *s.user.Image != "":
		return *s.user.Image
	case s.user != nil:
		return DefaultAvatar
	default:
		return GuestImage
	}
}

var ErrTokenExpired = errors.New("token has expired")

// CheckTokenExpiry inspects the exp claim of a JWT without verifying the
// signature. Tokens that are not JWTs or carry no exp claim pass; the server
// stays the authority on validity.
func CheckTokenExpiry(token string, now time.Time) error {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}
