// Package actions is the portal's orchestration core: it turns action
// requests into ledger records, hands them to the workflow engine, and
// converges their status from callbacks and polls.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/engine"
	"github.com/idp-labs/portal/internal/repo"
)

// ErrInvalidStatus is returned when a callback reports a status outside
// the transition table.
var ErrInvalidStatus = errors.New("invalid reported status")

type Config struct {
	// BucketPrefix seeds tenant bucket names, "<prefix>-<slug>".
	BucketPrefix string
}

type Service struct {
	logger *slog.Logger
	stores repo.Stores
	engine engine.Engine
	cfg    Config
}

// New wires the action core. A nil engine means the workflow integration
// is disabled: every action resolves locally and nothing is reconciled.
func New(logger *slog.Logger, stores repo.Stores, eng engine.Engine, cfg Config) *Service {
	if stores == nil {
		return nil
	}
	if cfg.BucketPrefix == "" {
		cfg.BucketPrefix = "idp-tenant"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, stores: stores, engine: eng, cfg: cfg}
}

// ActionResult describes one action attempt, or the current status of the
// latest one.
type ActionResult struct {
	RecordID    string
	ServiceID   string
	Action      domain.ActionKind
	Environment string
	Status      domain.ActionStatus
	Detail      string
}

func (s *Service) RequestProvision(ctx context.Context, serviceID string) (ActionResult, error) {
	return s.requestTenantAction(ctx, serviceID, domain.ActionProvision)
}

func (s *Service) RequestDeprovision(ctx context.Context, serviceID string) (ActionResult, error) {
	return s.requestTenantAction(ctx, serviceID, domain.ActionDeprovision)
}

// requestTenantAction runs the shared template for tenant-scoped actions:
// eligibility checks, ledger insert, dispatch, and outcome application,
// all committed as one transaction with the service row locked.
func (s *Service) requestTenantAction(ctx context.Context, serviceID string, kind domain.ActionKind) (ActionResult, error) {
	var result ActionResult
	err := s.stores.InTx(ctx, func(tx repo.Stores) error {
		svc, err := tx.Services().GetForUpdate(ctx, serviceID)
		if err != nil {
			return err
		}
		tenant, err := s.ensureTenant(ctx, tx, svc.Tenant)
		if err != nil {
			return err
		}
		for _, open := range []domain.ActionKind{domain.ActionProvision, domain.ActionDeprovision} {
			inFlight, err := tx.Actions().HasOpen(ctx, svc.ID, open)
			if err != nil {
				return err
			}
			if inFlight {
				return fmt.Errorf("%w: %s already in flight for service %s", repo.ErrConflict, open, svc.ID)
			}
		}

		record := domain.ActionRecord{
			ID:        uuid.NewString(),
			ServiceID: svc.ID,
			Tenant:    svc.Tenant,
			Kind:      kind,
			Status:    domain.StatusQueued,
			Detail:    queuedDetail(kind),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Actions().Create(ctx, record); err != nil {
			return err
		}

		outcome := s.dispatch(ctx, svc, tenant, record)
		status, detail, handle := resolveOutcome(kind, outcome)
		if _, err := tx.Actions().Update(ctx, record.ID, status, detail, handle); err != nil {
			return err
		}
		if err := tx.Services().SetProvisionState(ctx, svc.ID, status, detail); err != nil {
			return err
		}
		if err := tx.Tenants().SetState(ctx, svc.Tenant, status, detail); err != nil {
			return err
		}

		result = ActionResult{
			RecordID:  record.ID,
			ServiceID: svc.ID,
			Action:    kind,
			Status:    status,
			Detail:    detail,
		}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.logger.Info("action requested",
		"service_id", result.ServiceID,
		"record_id", result.RecordID,
		"kind", result.Action,
		"status", result.Status,
	)
	return result, nil
}

func (s *Service) RequestDeploy(ctx context.Context, serviceID string, environment string) (ActionResult, error) {
	var result ActionResult
	err := s.stores.InTx(ctx, func(tx repo.Stores) error {
		svc, err := tx.Services().GetForUpdate(ctx, serviceID)
		if err != nil {
			return err
		}
		resolved, err := svc.ResolveEnvironment(environment)
		if err != nil {
			return err
		}
		tenant, err := s.ensureTenant(ctx, tx, svc.Tenant)
		if err != nil {
			return err
		}
		inFlight, err := tx.Actions().HasOpen(ctx, svc.ID, domain.ActionDeploy)
		if err != nil {
			return err
		}
		if inFlight {
			return fmt.Errorf("%w: deploy already in flight for service %s", repo.ErrConflict, svc.ID)
		}

		record := domain.ActionRecord{
			ID:          uuid.NewString(),
			ServiceID:   svc.ID,
			Tenant:      svc.Tenant,
			Kind:        domain.ActionDeploy,
			Environment: resolved,
			Status:      domain.StatusQueued,
			Detail:      queuedDetail(domain.ActionDeploy),
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Actions().Create(ctx, record); err != nil {
			return err
		}

		outcome := s.dispatch(ctx, svc, tenant, record)
		status, detail, handle := resolveOutcome(domain.ActionDeploy, outcome)
		if _, err := tx.Actions().Update(ctx, record.ID, status, detail, handle); err != nil {
			return err
		}

		result = ActionResult{
			RecordID:    record.ID,
			ServiceID:   svc.ID,
			Action:      domain.ActionDeploy,
			Environment: resolved,
			Status:      status,
			Detail:      detail,
		}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.logger.Info("action requested",
		"service_id", result.ServiceID,
		"record_id", result.RecordID,
		"kind", result.Action,
		"environment", result.Environment,
		"status", result.Status,
	)
	return result, nil
}

// ProvisionStatus reports the current provisioning condition of a
// service, pulling the engine first when the latest record is still in
// flight.
func (s *Service) ProvisionStatus(ctx context.Context, serviceID string) (ActionResult, error) {
	svc, err := s.stores.Services().Get(ctx, serviceID)
	if err != nil {
		return ActionResult{}, err
	}
	record, err := s.latestTenantAction(ctx, svc.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ActionResult{
				ServiceID: svc.ID,
				Action:    domain.ActionProvision,
				Status:    svc.ProvisionStatus,
				Detail:    svc.ProvisionDetail,
			}, nil
		}
		return ActionResult{}, err
	}
	record = s.reconcile(ctx, record)
	return ActionResult{
		RecordID:  record.ID,
		ServiceID: svc.ID,
		Action:    record.Kind,
		Status:    record.Status,
		Detail:    record.Detail,
	}, nil
}

// DeployStatus reports the latest deployment for an environment. An
// unspecified environment resolves the same way a deploy request does.
func (s *Service) DeployStatus(ctx context.Context, serviceID string, environment string) (ActionResult, error) {
	svc, err := s.stores.Services().Get(ctx, serviceID)
	if err != nil {
		return ActionResult{}, err
	}
	resolved := environment
	if resolved == "" {
		resolved, err = svc.ResolveEnvironment("")
		if err != nil {
			return ActionResult{}, err
		}
	}
	record, err := s.stores.Actions().LatestDeploy(ctx, svc.ID, resolved)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ActionResult{
				ServiceID:   svc.ID,
				Action:      domain.ActionDeploy,
				Environment: resolved,
				Status:      domain.StatusNotRequested,
				Detail:      fmt.Sprintf("No deployment requested in %s", resolved),
			}, nil
		}
		return ActionResult{}, err
	}
	record = s.reconcile(ctx, record)
	return ActionResult{
		RecordID:    record.ID,
		ServiceID:   svc.ID,
		Action:      domain.ActionDeploy,
		Environment: record.Environment,
		Status:      record.Status,
		Detail:      record.Detail,
	}, nil
}

// History lists a service's action ledger, newest first.
func (s *Service) History(ctx context.Context, serviceID string, limit int) ([]domain.ActionRecord, error) {
	if _, err := s.stores.Services().Get(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.stores.Actions().ListByService(ctx, serviceID, limit)
}

func (s *Service) ensureTenant(ctx context.Context, tx repo.Stores, name string) (domain.Tenant, error) {
	tenant, err := tx.Tenants().GetByName(ctx, name)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Tenant{}, err
	}
	tenant = domain.NewTenant(uuid.NewString(), name, s.cfg.BucketPrefix)
	if err := tx.Tenants().Create(ctx, tenant); err != nil {
		return domain.Tenant{}, err
	}
	return tenant, nil
}

// latestTenantAction returns the newest provision or deprovision record
// for a service.
func (s *Service) latestTenantAction(ctx context.Context, serviceID string) (domain.ActionRecord, error) {
	provision, provisionErr := s.stores.Actions().Latest(ctx, serviceID, domain.ActionProvision)
	deprovision, deprovisionErr := s.stores.Actions().Latest(ctx, serviceID, domain.ActionDeprovision)

	switch {
	case provisionErr == nil && deprovisionErr == nil:
		if deprovision.CreatedAt.After(provision.CreatedAt) {
			return deprovision, nil
		}
		return provision, nil
	case provisionErr == nil:
		if !errors.Is(deprovisionErr, repo.ErrNotFound) {
			return domain.ActionRecord{}, deprovisionErr
		}
		return provision, nil
	case deprovisionErr == nil:
		if !errors.Is(provisionErr, repo.ErrNotFound) {
			return domain.ActionRecord{}, provisionErr
		}
		return deprovision, nil
	default:
		if !errors.Is(provisionErr, repo.ErrNotFound) {
			return domain.ActionRecord{}, provisionErr
		}
		return domain.ActionRecord{}, deprovisionErr
	}
}

func resolveOutcome(kind domain.ActionKind, outcome DispatchOutcome) (domain.ActionStatus, string, string) {
	switch outcome.Kind {
	case OutcomeStarted:
		return domain.StatusInProgress, startedDetail(kind), outcome.Handle
	case OutcomeDispatchFailed:
		return domain.StatusFailed, fmt.Sprintf("%s failed to start: %v", actionVerb(kind), outcome.Err), ""
	default:
		return domain.StatusSucceeded, localDetail(kind), ""
	}
}

func actionVerb(kind domain.ActionKind) string {
	switch kind {
	case domain.ActionDeprovision:
		return "Deprovisioning"
	case domain.ActionDeploy:
		return "Deployment"
	default:
		return "Provisioning"
	}
}

func queuedDetail(kind domain.ActionKind) string {
	return actionVerb(kind) + " request queued"
}

func startedDetail(kind domain.ActionKind) string {
	return actionVerb(kind) + " started via workflow engine"
}

func localDetail(kind domain.ActionKind) string {
	return actionVerb(kind) + " completed locally (workflow engine not configured)"
}

func successDetail(kind domain.ActionKind) string {
	return actionVerb(kind) + " succeeded"
}
