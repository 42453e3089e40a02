package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/service/actions"
)

type deployRequest struct {
	Environment string `json:"environment"`
}

func (api *portalAPI) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	result, err := api.core.RequestDeploy(r.Context(), r.PathValue("service_id"), req.Environment)
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toActionResponse(result))
}

func (api *portalAPI) handleDeployStatus(w http.ResponseWriter, r *http.Request) {
	environment := r.URL.Query().Get("environment")
	result, err := api.core.DeployStatus(r.Context(), r.PathValue("service_id"), environment)
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toActionResponse(result))
}

type deployCallbackRequest struct {
	ServiceID    string `json:"service_id"`
	DeploymentID string `json:"deployment_id"`
	Environment  string `json:"environment"`
	Status       string `json:"status"`
	Detail       string `json:"detail"`
	ExecutionARN string `json:"execution_arn"`
}

func (api *portalAPI) handleDeployCallback(w http.ResponseWriter, r *http.Request) {
	if !api.validCallbackToken(r) {
		api.writeError(w, r, http.StatusForbidden, "invalid_callback_token")
		return
	}
	var req deployCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	applied, err := api.core.ApplyDeployCallback(r.Context(), actions.CallbackReport{
		ServiceID:   req.ServiceID,
		RecordID:    req.DeploymentID,
		Environment: req.Environment,
		Status:      domain.ActionStatus(req.Status),
		Detail:      req.Detail,
		Handle:      req.ExecutionARN,
	})
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "applied": applied})
}
