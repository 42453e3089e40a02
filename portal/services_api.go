package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/idp-labs/portal/internal/domain"
)

type serviceInput struct {
	Name                 string   `json:"name"`
	RepoURL              string   `json:"repo_url"`
	OwnerTeam            string   `json:"owner_team"`
	Runtime              string   `json:"runtime"`
	Tier                 string   `json:"tier"`
	Environments         []string `json:"environments"`
	Tenant               string   `json:"tenant"`
	ObservabilityEnabled bool     `json:"observability_enabled"`
}

type servicePayload struct {
	ID                        string   `json:"id"`
	Name                      string   `json:"name"`
	RepoURL                   string   `json:"repo_url"`
	OwnerTeam                 string   `json:"owner_team"`
	Runtime                   string   `json:"runtime"`
	Tier                      string   `json:"tier"`
	Environments              []string `json:"environments"`
	Tenant                    string   `json:"tenant"`
	ObservabilityEnabled      bool     `json:"observability_enabled"`
	ObservabilityDashboardURL string   `json:"observability_dashboard_url,omitempty"`
	ProvisionStatus           string   `json:"provision_status"`
	ProvisionDetail           string   `json:"provision_detail"`
}

func (api *portalAPI) toServicePayload(svc domain.Service) servicePayload {
	payload := servicePayload{
		ID:                   svc.ID,
		Name:                 svc.Name,
		RepoURL:              svc.RepoURL,
		OwnerTeam:            svc.OwnerTeam,
		Runtime:              svc.Runtime,
		Tier:                 svc.Tier,
		Environments:         svc.Environments,
		Tenant:               svc.Tenant,
		ObservabilityEnabled: svc.ObservabilityEnabled,
		ProvisionStatus:      string(svc.ProvisionStatus),
		ProvisionDetail:      svc.ProvisionDetail,
	}
	if payload.Environments == nil {
		payload.Environments = []string{}
	}
	if svc.ObservabilityEnabled {
		payload.ObservabilityDashboardURL = api.grafana.dashboardURL(svc.Name)
	}
	return payload
}

func (in serviceInput) apply(svc domain.Service) domain.Service {
	svc.Name = strings.TrimSpace(in.Name)
	svc.RepoURL = strings.TrimSpace(in.RepoURL)
	svc.OwnerTeam = strings.TrimSpace(in.OwnerTeam)
	svc.Runtime = strings.TrimSpace(in.Runtime)
	svc.Tier = strings.TrimSpace(in.Tier)
	svc.Tenant = strings.TrimSpace(in.Tenant)
	svc.ObservabilityEnabled = in.ObservabilityEnabled
	svc.Environments = svc.Environments[:0]
	for _, env := range in.Environments {
		env = strings.TrimSpace(env)
		if env != "" {
			svc.Environments = append(svc.Environments, env)
		}
	}
	return svc
}

func (api *portalAPI) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := api.stores.Services().List(r.Context())
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	payloads := make([]servicePayload, 0, len(services))
	for _, svc := range services {
		payloads = append(payloads, api.toServicePayload(svc))
	}
	api.writeJSON(w, http.StatusOK, payloads)
}

func (api *portalAPI) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var in serviceInput
	if err := decodeJSON(r, &in); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	svc := in.apply(domain.Service{
		ID:              uuid.NewString(),
		ProvisionStatus: domain.StatusNotRequested,
	})
	if err := svc.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_service")
		return
	}
	if !api.runtimeAllowed(svc.Runtime) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_runtime")
		return
	}
	if err := api.stores.Services().Create(r.Context(), svc); err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, api.toServicePayload(svc))
}

func (api *portalAPI) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := api.stores.Services().Get(r.Context(), r.PathValue("service_id"))
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, api.toServicePayload(svc))
}

func (api *portalAPI) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var in serviceInput
	if err := decodeJSON(r, &in); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	svc, err := api.stores.Services().Get(r.Context(), r.PathValue("service_id"))
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	svc = in.apply(svc)
	if err := svc.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_service")
		return
	}
	if !api.runtimeAllowed(svc.Runtime) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_runtime")
		return
	}
	if err := api.stores.Services().Update(r.Context(), svc); err != nil {
		api.handleActionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, api.toServicePayload(svc))
}

func (api *portalAPI) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := api.stores.Services().Delete(r.Context(), r.PathValue("service_id")); err != nil {
		api.handleActionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tenantPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail"`
	Namespace string `json:"namespace,omitempty"`
	RDSSchema string `json:"rds_schema,omitempty"`
	S3Bucket  string `json:"s3_bucket,omitempty"`
}

func (api *portalAPI) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := api.stores.Tenants().List(r.Context())
	if err != nil {
		api.handleActionError(w, r, err)
		return
	}
	payloads := make([]tenantPayload, 0, len(tenants))
	for _, tenant := range tenants {
		payloads = append(payloads, tenantPayload{
			ID:        tenant.ID,
			Name:      tenant.Name,
			Status:    string(tenant.Status),
			Detail:    tenant.Detail,
			Namespace: tenant.Namespace,
			RDSSchema: tenant.RDSSchema,
			S3Bucket:  tenant.S3Bucket,
		})
	}
	api.writeJSON(w, http.StatusOK, payloads)
}
