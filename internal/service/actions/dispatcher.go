package actions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/idp-labs/portal/internal/domain"
)

// OutcomeKind classifies the result of handing an action to the workflow
// engine.
type OutcomeKind int

const (
	// OutcomeNotConfigured means no engine endpoint is configured; the
	// action resolves locally and is never reconciled.
	OutcomeNotConfigured OutcomeKind = iota
	// OutcomeStarted means the engine accepted the execution request.
	OutcomeStarted
	// OutcomeDispatchFailed means the start call itself failed. The
	// attempt is recorded terminally; retrying means requesting a new
	// action.
	OutcomeDispatchFailed
)

type DispatchOutcome struct {
	Kind   OutcomeKind
	Handle string
	Err    error
}

type executionTenant struct {
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	RDSSchema  string `json:"rds_schema"`
	S3Bucket   string `json:"s3_bucket"`
	DBPassword string `json:"db_password,omitempty"`
}

type executionService struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RepoURL      string   `json:"repo_url"`
	OwnerTeam    string   `json:"owner_team"`
	Runtime      string   `json:"runtime"`
	Tier         string   `json:"tier"`
	Environments []string `json:"environments"`
}

type executionInput struct {
	Action      string           `json:"action"`
	Environment string           `json:"environment,omitempty"`
	Tenant      executionTenant  `json:"tenant"`
	Service     executionService `json:"service"`
}

// dispatch hands the action to the workflow engine. The provisioning input
// carries a fresh per-attempt database credential; it is generated here,
// sent once and never stored.
func (s *Service) dispatch(ctx context.Context, svc domain.Service, tenant domain.Tenant, record domain.ActionRecord) DispatchOutcome {
	if s.engine == nil {
		return DispatchOutcome{Kind: OutcomeNotConfigured}
	}

	input := executionInput{
		Action:      string(record.Kind),
		Environment: record.Environment,
		Tenant: executionTenant{
			Name:      tenant.Name,
			Namespace: tenant.Namespace,
			RDSSchema: tenant.RDSSchema,
			S3Bucket:  tenant.S3Bucket,
		},
		Service: executionService{
			ID:           svc.ID,
			Name:         svc.Name,
			RepoURL:      svc.RepoURL,
			OwnerTeam:    svc.OwnerTeam,
			Runtime:      svc.Runtime,
			Tier:         svc.Tier,
			Environments: svc.Environments,
		},
	}
	if record.Kind == domain.ActionProvision {
		password, err := newDBCredential()
		if err != nil {
			return DispatchOutcome{Kind: OutcomeDispatchFailed, Err: fmt.Errorf("generate credential: %w", err)}
		}
		input.Tenant.DBPassword = password
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return DispatchOutcome{Kind: OutcomeDispatchFailed, Err: fmt.Errorf("encode execution input: %w", err)}
	}

	handle, err := s.engine.Start(ctx, payload)
	if err != nil {
		return DispatchOutcome{Kind: OutcomeDispatchFailed, Err: err}
	}
	return DispatchOutcome{Kind: OutcomeStarted, Handle: handle}
}

// newDBCredential returns a URL-safe random secret. URL-safe encoding
// avoids shell and JSON escaping issues when the engine passes it through
// environment variables.
func newDBCredential() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
