package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKeyIdentity struct{}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// Middleware guards handlers with bearer-token authentication and a
// minimum-role check.
type Middleware struct {
	Logger    *slog.Logger
	JWTSecret string
}

// Require wraps next so it only runs for callers holding at least the
// required role. The authenticated identity is placed on the request
// context.
func (m Middleware) Require(required string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.deny(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := ParseToken(m.JWTSecret, token)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, "invalid_token")
			return
		}
		if !HasAtLeast(identity.Role, required) {
			if m.Logger != nil {
				m.Logger.Warn("request forbidden",
					"request_id", r.Header.Get("X-Request-Id"),
					"method", r.Method,
					"path", r.URL.Path,
					"username", identity.Username,
					"role", identity.Role,
					"required", required,
				)
			}
			m.deny(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity{}, identity)))
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
