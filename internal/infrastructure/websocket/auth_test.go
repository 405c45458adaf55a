package websocket

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoAuth_AdmitsEveryone(t *testing.T) {
	subject, err := NewNoAuth().Authenticate(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, "anonymous", subject)
}

func TestJWTAuth_BearerHeaderRoundTrip(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.MintToken("user-1", time.Minute)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	subject, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestJWTAuth_QueryParamFallback(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.MintToken("user-2", time.Minute)
	require.NoError(t, err)

	subject, err := auth.Authenticate(httptest.NewRequest("GET", "/ws?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-2", subject)
}

func TestJWTAuth_Rejections(t *testing.T) {
	auth := NewJWTAuth("secret")

	expired := func() string {
		claims := jwt.RegisteredClaims{
			Subject:   "user-3",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}()
	wrongSecret, err := NewJWTAuth("other").MintToken("user-4", time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"missing", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"wrong secret", wrongSecret, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			_, err := auth.Authenticate(r)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
