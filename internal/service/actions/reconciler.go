package actions

import (
	"context"
	"fmt"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/engine"
	"github.com/idp-labs/portal/internal/repo"
)

// reconcile folds the engine's current view of an execution into the
// record before a status read is answered. The engine call happens
// before any transaction opens so no row stays locked while the portal
// waits on the network. A failed poll is logged and the stored record
// returned unchanged; reads never fail because the engine was slow.
func (s *Service) reconcile(ctx context.Context, record domain.ActionRecord) domain.ActionRecord {
	if s.engine == nil || record.Status.Terminal() || record.ExecutionHandle == "" {
		return record
	}

	exec, err := s.engine.Describe(ctx, record.ExecutionHandle)
	if err != nil {
		s.logger.Warn("execution poll failed",
			"record_id", record.ID,
			"handle", record.ExecutionHandle,
			"error", err,
		)
		return record
	}

	var status domain.ActionStatus
	var detail string
	switch exec.State {
	case engine.StateRunning:
		return record
	case engine.StateSucceeded:
		status = domain.StatusSucceeded
		detail = record.Detail
		if isGenericDetail(record.Kind, detail) {
			detail = successDetail(record.Kind)
		}
	default:
		status = domain.StatusFailed
		detail = failureDetail(exec)
	}

	err = s.stores.InTx(ctx, func(tx repo.Stores) error {
		applied, err := tx.Actions().Update(ctx, record.ID, status, detail, "")
		if err != nil {
			return err
		}
		if !applied {
			// Another writer finished the record first; serve its result.
			fresh, err := tx.Actions().Get(ctx, record.ID)
			if err != nil {
				return err
			}
			record = fresh
			return nil
		}
		record.Status = status
		record.Detail = detail
		if record.Kind != domain.ActionDeploy {
			if err := tx.Services().SetProvisionState(ctx, record.ServiceID, status, detail); err != nil {
				return err
			}
			if err := tx.Tenants().SetState(ctx, record.Tenant, status, detail); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("reconcile write failed", "record_id", record.ID, "error", err)
	}
	return record
}

// isGenericDetail reports whether the detail is one of the boilerplate
// messages written by the request path. Callback-provided details are
// kept verbatim through a successful poll.
func isGenericDetail(kind domain.ActionKind, detail string) bool {
	return detail == "" || detail == queuedDetail(kind) || detail == startedDetail(kind)
}

func failureDetail(exec engine.Execution) string {
	detail := exec.ErrorCode
	if detail == "" {
		detail = fmt.Sprintf("execution %s", exec.State)
	}
	if exec.Cause != "" {
		detail += ": " + exec.Cause
	}
	return detail
}
