package actions

import (
	"context"
	"fmt"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/repo"
)

// CallbackReport is a status report pushed by the workflow engine once it
// reaches a checkpoint. The engine identifies the record either explicitly
// by RecordID or implicitly by service, kind and environment.
type CallbackReport struct {
	ServiceID   string
	Tenant      string
	Kind        domain.ActionKind
	RecordID    string
	Environment string
	Status      domain.ActionStatus
	Detail      string
	Handle      string
}

// ApplyProvisionCallback applies an engine report for a provision or
// deprovision action. Reports for records already terminal are absorbed
// and reported as not applied.
func (s *Service) ApplyProvisionCallback(ctx context.Context, report CallbackReport) (bool, error) {
	status := domain.NormalizeActionStatus(string(report.Status))
	if status == "" || status == domain.StatusNotRequested {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, report.Status)
	}
	kind := report.Kind
	if kind == "" {
		kind = domain.ActionProvision
	}
	if kind != domain.ActionProvision && kind != domain.ActionDeprovision {
		return false, fmt.Errorf("%w: kind %q", ErrInvalidStatus, kind)
	}
	detail := report.Detail
	if detail == "" {
		detail = defaultCallbackDetail(kind, status)
	}

	var applied bool
	err := s.stores.InTx(ctx, func(tx repo.Stores) error {
		svc, err := tx.Services().GetForUpdate(ctx, report.ServiceID)
		if err != nil {
			return err
		}
		tenant := report.Tenant
		if tenant == "" {
			tenant = svc.Tenant
		}
		if _, err := tx.Tenants().GetByName(ctx, tenant); err != nil {
			return err
		}
		record, err := tx.Actions().Latest(ctx, svc.ID, kind)
		if err != nil {
			return err
		}
		applied, err = tx.Actions().Update(ctx, record.ID, status, detail, report.Handle)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := tx.Services().SetProvisionState(ctx, svc.ID, status, detail); err != nil {
			return err
		}
		return tx.Tenants().SetState(ctx, tenant, status, detail)
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("provisioning callback applied",
		"service_id", report.ServiceID,
		"kind", kind,
		"status", status,
		"applied", applied,
	)
	return applied, nil
}

// ApplyDeployCallback applies an engine report for a deployment. Unlike
// provisioning, deployments never touch the denormalized target state.
func (s *Service) ApplyDeployCallback(ctx context.Context, report CallbackReport) (bool, error) {
	status := domain.NormalizeActionStatus(string(report.Status))
	if status == "" || status == domain.StatusNotRequested {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, report.Status)
	}
	detail := report.Detail
	if detail == "" {
		detail = defaultCallbackDetail(domain.ActionDeploy, status)
	}

	var applied bool
	err := s.stores.InTx(ctx, func(tx repo.Stores) error {
		svc, err := tx.Services().GetForUpdate(ctx, report.ServiceID)
		if err != nil {
			return err
		}
		var record domain.ActionRecord
		if report.RecordID != "" {
			record, err = tx.Actions().Get(ctx, report.RecordID)
			if err != nil {
				return err
			}
			if record.ServiceID != svc.ID || record.Kind != domain.ActionDeploy {
				return fmt.Errorf("%w: deployment %s", repo.ErrNotFound, report.RecordID)
			}
		} else {
			environment := report.Environment
			if environment == "" {
				environment, err = svc.ResolveEnvironment("")
				if err != nil {
					return err
				}
			}
			record, err = tx.Actions().LatestDeploy(ctx, svc.ID, environment)
			if err != nil {
				return err
			}
		}
		applied, err = tx.Actions().Update(ctx, record.ID, status, detail, report.Handle)
		return err
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("deployment callback applied",
		"service_id", report.ServiceID,
		"record_id", report.RecordID,
		"status", status,
		"applied", applied,
	)
	return applied, nil
}

func defaultCallbackDetail(kind domain.ActionKind, status domain.ActionStatus) string {
	switch status {
	case domain.StatusSucceeded:
		return successDetail(kind)
	case domain.StatusFailed:
		return actionVerb(kind) + " failed"
	case domain.StatusInProgress:
		return startedDetail(kind)
	default:
		return queuedDetail(kind)
	}
}
