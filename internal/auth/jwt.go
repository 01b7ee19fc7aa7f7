// Package auth provides JWT bearer token management for dashboard
// sessions. A single token type (24h TTL) carries the account id,
// username, and role; it is accepted from the Authorization header, the
// token query parameter, or the token cookie.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the bearer token lifetime. It matches the Max-Age of the
// cookie set on login.
const TokenTTL = 24 * time.Hour

// CookieName is the cookie carrying the token for browser clients.
const CookieName = "token"

// Claims extends the standard JWT claims with the account identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Manager signs and validates bearer tokens using HS256.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager creates a Manager with the given HMAC secret and issuer.
func NewManager(secret, issuer string) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// CreateToken signs a bearer token for the given account identity.
func (m *Manager) CreateToken(userID int, username, role string) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		UserID:   userID,
		Username: username,
		Role:     role,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and validates a bearer token, returning its claims.
// Returns an error if the token is malformed, expired, or signed with
// the wrong key or method.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.Username == "" {
		return nil, fmt.Errorf("auth: missing username claim")
	}

	return claims, nil
}

// Verify extracts a candidate token from the request and validates it.
// Extraction order: Authorization header, token query parameter, token
// cookie. Returns nil when no valid token is present; absence of an
// identity is the failure signal, never an error.
func (m *Manager) Verify(r *http.Request) *Claims {
	token := TokenFromRequest(r)
	if token == "" {
		return nil
	}
	claims, err := m.Validate(token)
	if err != nil {
		return nil
	}
	return claims
}

// TokenFromRequest extracts the raw token string from the Authorization
// header (Bearer scheme), the token query parameter, or the token
// cookie, in that order. Returns "" when none is present.
func TokenFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}

	if token := r.URL.Query().Get(CookieName); token != "" {
		return token
	}

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
