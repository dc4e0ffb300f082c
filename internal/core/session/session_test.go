package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "liang",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestSession_SignInAndClear(t *testing.T) {
	s := NewSession("stored-token")
	assert.False(t, s.IsAuthenticated(), "Stored token alone should not authenticate")
	assert.Equal(t, "stored-token", s.Token())

	s.SignIn(&User{Username: "liang", Token: "fresh-token"})
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "fresh-token", s.Token())
	assert.Equal(t, "liang", s.User().Username)

	s.Clear()
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
	assert.Nil(t, s.User())
}

func TestSession_UserReturnsCopy(t *testing.T) {
	s := NewSession("")
	s.SignIn(&User{Username: "liang"})

	u := s.User()
	u.Username = "mallory"

	assert.Equal(t, "liang", s.User().Username)
}

func TestSession_Image(t *testing.T) {
	s := NewSession("")
	assert.Equal(t, GuestImage, s.Image())

	s.SignIn(&User{Username: "liang"})
	assert.Equal(t, DefaultAvatar, s.Image())

	s.SetUser(&User{Username: "liang", Image: strPtr("https://cdn/me.png")})
	assert.Equal(t, "https://cdn/me.png", s.Image())
}

func TestUser_Merge(t *testing.T) {
	u := &User{Email: "a@b.c", Token: "t1", Username: "liang", Bio: strPtr("old")}
	u.Merge(&User{Username: "liang2", Bio: strPtr("new")})

	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, "t1", u.Token)
	assert.Equal(t, "liang2", u.Username)
	assert.Equal(t, "new", *u.Bio)
	assert.Nil(t, u.Image)
}

func TestUserPatch_IsEmpty(t *testing.T) {
	assert.True(t, UserPatch{}.IsEmpty())
	assert.False(t, UserPatch{Bio: strPtr("")}.IsEmpty())
}

func TestCheckTokenExpiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{name: "ValidToken", token: signedToken(t, now.Add(time.Hour))},
		{name: "ExpiredToken", token: signedToken(t, now.Add(-time.Hour)), expired: true},
		{name: "OpaqueToken", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTokenExpiry(tt.token, now)
			if tt.expired {
				assert.True(t, errors.Is(err, ErrTokenExpired))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := NewSession("")
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SignIn(&User{Username: "liang", Token: "t"})
		}()
		go func() {
			defer wg.Done()
			_ = s.IsAuthenticated()
			_ = s.Token()
		}()
	}

	wg.Wait()
	assert.True(t, s.IsAuthenticated())
}
