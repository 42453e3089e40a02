package main

import (
	"net/http"
	"strings"

	"github.com/idp-labs/portal/internal/platform/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (api *portalAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		api.writeError(w, r, http.StatusBadRequest, "credentials_required")
		return
	}

	identity, err := api.users.Authenticate(req.Username, req.Password)
	if err != nil {
		api.writeError(w, r, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	token, err := auth.IssueToken(api.authCfg.JWTSecret, identity.Username, identity.Role, api.authCfg.TokenTTL)
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: identity.Role})
}
