package websocket

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Authenticator validates a connecting client before the upgrade and
// returns a subject identifier for logging.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// NoAuth admits every connection. The default when no JWT secret is
// configured.
type NoAuth struct{}

func NewNoAuth() NoAuth { return NoAuth{} }

func (NoAuth) Authenticate(*http.Request) (string, error) {
	return "anonymous", nil
}

// JWTAuth validates an HMAC-signed bearer token carried in the
// Authorization header or, since browser WebSocket clients cannot set
// headers, the "token" query parameter.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Authenticate extracts and validates the token, returning its subject.
func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims := token.Claims.(*jwt.RegisteredClaims)
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// MintToken issues a token for subject, valid for ttl. The server side of
// the pair; exposed so an embedding service can hand tokens to its own
// clients without duplicating the claims layout.
func (a *JWTAuth) MintToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
