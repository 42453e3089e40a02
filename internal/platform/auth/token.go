package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 bearer token for username with the given role.
func IssueToken(secret string, username string, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("signing secret is required")
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: strings.ToLower(strings.TrimSpace(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(username),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 bearer token and returns the caller's
// identity. Any verification failure maps to ErrUnauthenticated.
func ParseToken(secret string, tokenString string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}
	if !ValidRole(c.Role) {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, c.Role)
	}
	return Identity{Username: c.Subject, Role: c.Role}, nil
}
