package main

import (
	"crypto/hmac"
	"fmt"
	"net/http"
	"strings"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/service/actions"
)

func (api *portalAPI) handleProvision(w http.ResponseWriter, r *http.Request) {
	result, err := api.core.RequestProvision(r.Context(), r.PathValue("service_id"))
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toActionResponse(result))
}

func (api *portalAPI) handleDeprovision(w http.ResponseWriter, r *http.Request) {
	result, err := api.core.RequestDeprovision(r.Context(), r.PathValue("service_id"))
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toActionResponse(result))
}

func (api *portalAPI) handleProvisionStatus(w http.ResponseWriter, r *http.Request) {
	result, err := api.core.ProvisionStatus(r.Context(), r.PathValue("service_id"))
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	if result.Detail == "" {
		environment := strings.TrimSpace(r.URL.Query().Get("environment"))
		if environment == "" {
			environment = "default"
		}
		result.Detail = fmt.Sprintf("Service healthy in %s", environment)
	}
	api.writeJSON(w, http.StatusOK, toActionResponse(result))
}

type actionRecordPayload struct {
	ID              string `json:"id"`
	ServiceID       string `json:"service_id"`
	Tenant          string `json:"tenant"`
	Action          string `json:"action"`
	Environment     string `json:"environment,omitempty"`
	Status          string `json:"status"`
	Detail          string `json:"detail"`
	ExecutionHandle string `json:"execution_arn,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func (api *portalAPI) handleListActions(w http.ResponseWriter, r *http.Request) {
	records, err := api.core.History(r.Context(), r.PathValue("service_id"), 100)
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	payloads := make([]actionRecordPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, actionRecordPayload{
			ID:              record.ID,
			ServiceID:       record.ServiceID,
			Tenant:          record.Tenant,
			Action:          string(record.Kind),
			Environment:     record.Environment,
			Status:          string(record.Status),
			Detail:          record.Detail,
			ExecutionHandle: record.ExecutionHandle,
			CreatedAt:       record.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	api.writeJSON(w, http.StatusOK, payloads)
}

type provisionCallbackRequest struct {
	ServiceID    string `json:"service_id"`
	Tenant       string `json:"tenant"`
	Action       string `json:"action"`
	Status       string `json:"status"`
	Detail       string `json:"detail"`
	ExecutionARN string `json:"execution_arn"`
}

func (api *portalAPI) handleProvisionCallback(w http.ResponseWriter, r *http.Request) {
	if !api.validCallbackToken(r) {
		api.writeError(w, r, http.StatusForbidden, "invalid_callback_token")
		return
	}
	var req provisionCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	kind := domain.ActionProvision
	if req.Action != "" {
		kind = domain.NormalizeActionKind(req.Action)
		if kind == "" {
			api.writeError(w, r, http.StatusBadRequest, "invalid_action")
			return
		}
	}
	applied, err := api.core.ApplyProvisionCallback(r.Context(), actions.CallbackReport{
		ServiceID: req.ServiceID,
		Tenant:    req.Tenant,
		Kind:      kind,
		Status:    domain.ActionStatus(req.Status),
		Detail:    req.Detail,
		Handle:    req.ExecutionARN,
	})
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "applied": applied})
}

// validCallbackToken compares the shared secret in constant time.
func (api *portalAPI) validCallbackToken(r *http.Request) bool {
	token := strings.TrimSpace(r.Header.Get("X-Callback-Token"))
	if token == "" || api.callbackToken == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(api.callbackToken))
}
