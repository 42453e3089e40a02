// Package auth implements the portal's authentication boundary: static
// users exchanged for HS256 bearer tokens, and role checks over the three
// platform roles.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/idp-labs/portal/internal/platform/env"
)

const (
	RoleViewer    = "viewer"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Username string
	Role     string
}

var roleLevels = map[string]int{
	RoleViewer:    1,
	RoleDeveloper: 2,
	RoleAdmin:     3,
}

// ValidRole reports whether role is one of the platform roles.
func ValidRole(role string) bool {
	_, ok := roleLevels[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// HasAtLeast reports whether role meets or exceeds the required role.
func HasAtLeast(role string, required string) bool {
	requiredLevel := roleLevels[strings.ToLower(strings.TrimSpace(required))]
	if requiredLevel == 0 {
		return false
	}
	return roleLevels[strings.ToLower(strings.TrimSpace(role))] >= requiredLevel
}

type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	UsersFile string
}

func ConfigFromEnv() (Config, error) {
	tokenTTL, err := env.Duration("AUTH_TOKEN_TTL", 8*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		JWTSecret: env.String("AUTH_JWT_SECRET", "dev-secret"),
		TokenTTL:  tokenTTL,
		UsersFile: env.String("AUTH_USERS_FILE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	return nil
}
