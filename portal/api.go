package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/platform/auth"
	"github.com/idp-labs/portal/internal/repo"
	"github.com/idp-labs/portal/internal/service/actions"
)

type portalAPI struct {
	logger          *slog.Logger
	stores          repo.Stores
	core            *actions.Service
	users           *auth.UserStore
	authCfg         auth.Config
	callbackToken   string
	grafana         grafanaConfig
	allowedRuntimes map[string]struct{}
}

func newPortalAPI(
	logger *slog.Logger,
	stores repo.Stores,
	core *actions.Service,
	users *auth.UserStore,
	authCfg auth.Config,
	callbackToken string,
	grafana grafanaConfig,
	allowedRuntimes []string,
) *portalAPI {
	runtimes := make(map[string]struct{}, len(allowedRuntimes))
	for _, runtime := range allowedRuntimes {
		runtimes[strings.ToLower(strings.TrimSpace(runtime))] = struct{}{}
	}
	return &portalAPI{
		logger:          logger,
		stores:          stores,
		core:            core,
		users:           users,
		authCfg:         authCfg,
		callbackToken:   strings.TrimSpace(callbackToken),
		grafana:         grafana,
		allowedRuntimes: runtimes,
	}
}

// runtimeAllowed reports whether the runtime is in the configured set.
// An empty set admits any runtime.
func (api *portalAPI) runtimeAllowed(runtime string) bool {
	if len(api.allowedRuntimes) == 0 {
		return true
	}
	_, ok := api.allowedRuntimes[strings.ToLower(strings.TrimSpace(runtime))]
	return ok
}

func (api *portalAPI) register(mux *http.ServeMux, mw auth.Middleware) {
	mux.HandleFunc("POST /auth/login", api.handleLogin)

	mux.HandleFunc("GET /services", mw.Require(auth.RoleViewer, api.handleListServices))
	mux.HandleFunc("POST /services", mw.Require(auth.RoleAdmin, api.handleCreateService))
	mux.HandleFunc("GET /services/{service_id}", mw.Require(auth.RoleViewer, api.handleGetService))
	mux.HandleFunc("PUT /services/{service_id}", mw.Require(auth.RoleAdmin, api.handleUpdateService))
	mux.HandleFunc("DELETE /services/{service_id}", mw.Require(auth.RoleAdmin, api.handleDeleteService))

	mux.HandleFunc("GET /tenants", mw.Require(auth.RoleViewer, api.handleListTenants))

	mux.HandleFunc("POST /services/{service_id}/actions/provision", mw.Require(auth.RoleDeveloper, api.handleProvision))
	mux.HandleFunc("POST /services/{service_id}/actions/deprovision", mw.Require(auth.RoleDeveloper, api.handleDeprovision))
	mux.HandleFunc("GET /services/{service_id}/actions/status", mw.Require(auth.RoleViewer, api.handleProvisionStatus))
	mux.HandleFunc("GET /services/{service_id}/actions", mw.Require(auth.RoleViewer, api.handleListActions))

	mux.HandleFunc("POST /services/{service_id}/actions/deploy", mw.Require(auth.RoleDeveloper, api.handleDeploy))
	mux.HandleFunc("GET /services/{service_id}/actions/deploy/status", mw.Require(auth.RoleViewer, api.handleDeployStatus))

	mux.HandleFunc("POST /provisioning/callback", api.handleProvisionCallback)
	mux.HandleFunc("POST /deploy/callback", api.handleDeployCallback)
}

type grafanaConfig struct {
	BaseURL      string
	DashboardUID string
	OrgID        int
}

// dashboardURL composes the per-service Grafana dashboard link. An empty
// base URL disables the link entirely.
func (g grafanaConfig) dashboardURL(serviceName string) string {
	if strings.TrimSpace(g.BaseURL) == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/d/%s?orgId=%d&var-service=%s&refresh=10s",
		strings.TrimRight(g.BaseURL, "/"),
		g.DashboardUID,
		g.OrgID,
		url.QueryEscape(serviceName),
	)
}

type actionResponse struct {
	ServiceID   string `json:"service_id"`
	RecordID    string `json:"record_id,omitempty"`
	Action      string `json:"action"`
	Environment string `json:"environment,omitempty"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

func toActionResponse(result actions.ActionResult) actionResponse {
	return actionResponse{
		ServiceID:   result.ServiceID,
		RecordID:    result.RecordID,
		Action:      string(result.Action),
		Environment: result.Environment,
		Status:      string(result.Status),
		Detail:      result.Detail,
	}
}

// handleActionError maps the core's sentinel errors onto HTTP statuses.
func (api *portalAPI) handleActionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, repo.ErrConflict):
		api.writeError(w, r, http.StatusConflict, "action_conflict")
	case errors.Is(err, domain.ErrInvalidEnvironment):
		api.writeError(w, r, http.StatusUnprocessableEntity, "invalid_environment")
	case errors.Is(err, actions.ErrInvalidStatus):
		api.writeError(w, r, http.StatusBadRequest, "invalid_status")
	default:
		api.logger.Error("request failed",
			"request_id", r.Header.Get("X-Request-Id"),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *portalAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *portalAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}
