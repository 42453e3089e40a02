package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/repo"
)

type actionStore struct {
	db DB
}

const actionColumns = `record_id, service_id, tenant, kind, environment, status, detail, execution_handle, created_at`

func (s *actionStore) Create(ctx context.Context, record domain.ActionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO action_records (
			record_id,
			service_id,
			tenant,
			kind,
			environment,
			status,
			detail,
			execution_handle,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(record.ID),
		strings.TrimSpace(record.ServiceID),
		nullIfEmpty(record.Tenant),
		string(record.Kind),
		nullIfEmpty(record.Environment),
		string(record.Status),
		record.Detail,
		nullIfEmpty(record.ExecutionHandle),
		normalizeTime(record.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return fmt.Errorf("insert action record: %w", err)
	}
	return nil
}

func (s *actionStore) Get(ctx context.Context, id string) (domain.ActionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ActionRecord{}, fmt.Errorf("record id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+actionColumns+` FROM action_records WHERE record_id = $1`,
		id,
	)
	record, err := scanAction(row)
	if err != nil {
		return domain.ActionRecord{}, handleNotFound(err)
	}
	return record, nil
}

// Update applies a guarded status transition. The current row is locked
// first so the read-check-write is the serialization point for concurrent
// callbacks and polls against the same record. A duplicate terminal report
// is absorbed: the call reports false and changes nothing.
func (s *actionStore) Update(ctx context.Context, id string, status domain.ActionStatus, detail string, handle string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("record id is required")
	}
	next := domain.NormalizeActionStatus(string(status))
	if next == "" || next == domain.StatusNotRequested {
		return false, fmt.Errorf("invalid action status %q", status)
	}

	var currentRaw string
	var currentHandle sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT status, execution_handle FROM action_records WHERE record_id = $1 FOR UPDATE`,
		id,
	)
	if err := row.Scan(&currentRaw, &currentHandle); err != nil {
		return false, handleNotFound(err)
	}
	current := domain.ActionStatus(currentRaw)

	if !domain.CanTransition(current, next) {
		if current.Terminal() {
			return false, nil
		}
		return false, fmt.Errorf("invalid transition %s -> %s", current, next)
	}
	if next == domain.StatusInProgress && strings.TrimSpace(handle) == "" && !currentHandle.Valid {
		return false, fmt.Errorf("transition to in_progress requires an execution handle")
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE action_records
		 SET status = $1,
		     detail = $2,
		     execution_handle = COALESCE($3, execution_handle)
		 WHERE record_id = $4`,
		string(next),
		detail,
		nullIfEmpty(handle),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("update action record: %w", err)
	}
	return true, nil
}

func (s *actionStore) Latest(ctx context.Context, serviceID string, kind domain.ActionKind) (domain.ActionRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+actionColumns+` FROM action_records
		 WHERE service_id = $1 AND kind = $2
		 ORDER BY created_at DESC, record_id DESC
		 LIMIT 1`,
		strings.TrimSpace(serviceID),
		string(kind),
	)
	record, err := scanAction(row)
	if err != nil {
		return domain.ActionRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *actionStore) LatestForTenant(ctx context.Context, tenant string, kind domain.ActionKind) (domain.ActionRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+actionColumns+` FROM action_records
		 WHERE tenant = $1 AND kind = $2
		 ORDER BY created_at DESC, record_id DESC
		 LIMIT 1`,
		strings.TrimSpace(tenant),
		string(kind),
	)
	record, err := scanAction(row)
	if err != nil {
		return domain.ActionRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *actionStore) LatestDeploy(ctx context.Context, serviceID string, environment string) (domain.ActionRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+actionColumns+` FROM action_records
		 WHERE service_id = $1 AND kind = $2 AND environment = $3
		 ORDER BY created_at DESC, record_id DESC
		 LIMIT 1`,
		strings.TrimSpace(serviceID),
		string(domain.ActionDeploy),
		strings.TrimSpace(environment),
	)
	record, err := scanAction(row)
	if err != nil {
		return domain.ActionRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *actionStore) HasOpen(ctx context.Context, serviceID string, kind domain.ActionKind) (bool, error) {
	var open bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM action_records
			WHERE service_id = $1 AND kind = $2 AND status IN ($3, $4)
		)`,
		strings.TrimSpace(serviceID),
		string(kind),
		string(domain.StatusQueued),
		string(domain.StatusInProgress),
	).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open actions: %w", err)
	}
	return open, nil
}

func (s *actionStore) ListByService(ctx context.Context, serviceID string, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+actionColumns+` FROM action_records
		 WHERE service_id = $1
		 ORDER BY created_at DESC, record_id DESC
		 LIMIT $2`,
		strings.TrimSpace(serviceID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list action records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ActionRecord, 0, limit)
	for rows.Next() {
		record, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list action records: %w", err)
	}
	return out, nil
}

func scanAction(row rowScanner) (domain.ActionRecord, error) {
	var record domain.ActionRecord
	var kind, status string
	var tenant, environment, handle sql.NullString
	if err := row.Scan(
		&record.ID,
		&record.ServiceID,
		&tenant,
		&kind,
		&environment,
		&status,
		&record.Detail,
		&handle,
		&record.CreatedAt,
	); err != nil {
		return domain.ActionRecord{}, err
	}
	record.Tenant = tenant.String
	record.Kind = domain.ActionKind(kind)
	record.Environment = environment.String
	record.Status = domain.ActionStatus(status)
	record.ExecutionHandle = handle.String
	return record, nil
}
