package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/repo"
)

type serviceStore struct {
	db DB
}

const serviceColumns = `service_id, name, repo_url, owner_team, runtime, tier, environments,
	tenant, observability_enabled, provision_status, provision_detail, updated_at`

func (s *serviceStore) Create(ctx context.Context, svc domain.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	environmentsJSON, err := encodeEnvironments(svc.Environments)
	if err != nil {
		return err
	}
	status := svc.ProvisionStatus
	if status == "" {
		status = domain.StatusNotRequested
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO services (
			service_id,
			name,
			repo_url,
			owner_team,
			runtime,
			tier,
			environments,
			tenant,
			observability_enabled,
			provision_status,
			provision_detail,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		strings.TrimSpace(svc.ID),
		strings.TrimSpace(svc.Name),
		strings.TrimSpace(svc.RepoURL),
		strings.TrimSpace(svc.OwnerTeam),
		strings.TrimSpace(svc.Runtime),
		strings.TrimSpace(svc.Tier),
		environmentsJSON,
		strings.TrimSpace(svc.Tenant),
		svc.ObservabilityEnabled,
		string(status),
		svc.ProvisionDetail,
		normalizeTime(svc.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (s *serviceStore) Get(ctx context.Context, id string) (domain.Service, error) {
	return s.get(ctx, id, false)
}

func (s *serviceStore) GetForUpdate(ctx context.Context, id string) (domain.Service, error) {
	return s.get(ctx, id, true)
}

func (s *serviceStore) get(ctx context.Context, id string, forUpdate bool) (domain.Service, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Service{}, fmt.Errorf("service id is required")
	}
	query := `SELECT ` + serviceColumns + ` FROM services WHERE service_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := s.db.QueryRowContext(ctx, query, id)
	svc, err := scanService(row)
	if err != nil {
		return domain.Service{}, handleNotFound(err)
	}
	return svc, nil
}

func (s *serviceStore) List(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+serviceColumns+` FROM services ORDER BY name ASC, service_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

func (s *serviceStore) Update(ctx context.Context, svc domain.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	environmentsJSON, err := encodeEnvironments(svc.Environments)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE services SET
			name = $1,
			repo_url = $2,
			owner_team = $3,
			runtime = $4,
			tier = $5,
			environments = $6,
			tenant = $7,
			observability_enabled = $8,
			updated_at = $9
		 WHERE service_id = $10`,
		strings.TrimSpace(svc.Name),
		strings.TrimSpace(svc.RepoURL),
		strings.TrimSpace(svc.OwnerTeam),
		strings.TrimSpace(svc.Runtime),
		strings.TrimSpace(svc.Tier),
		environmentsJSON,
		strings.TrimSpace(svc.Tenant),
		svc.ObservabilityEnabled,
		time.Now().UTC(),
		strings.TrimSpace(svc.ID),
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return requireRowAffected(res)
}

func (s *serviceStore) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("service id is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE service_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return requireRowAffected(res)
}

func (s *serviceStore) SetProvisionState(ctx context.Context, id string, status domain.ActionStatus, detail string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("service id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE services SET provision_status = $1, provision_detail = $2, updated_at = $3 WHERE service_id = $4`,
		string(status),
		detail,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update provision state: %w", err)
	}
	return requireRowAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (domain.Service, error) {
	var svc domain.Service
	var environmentsJSON []byte
	var status string
	if err := row.Scan(
		&svc.ID,
		&svc.Name,
		&svc.RepoURL,
		&svc.OwnerTeam,
		&svc.Runtime,
		&svc.Tier,
		&environmentsJSON,
		&svc.Tenant,
		&svc.ObservabilityEnabled,
		&status,
		&svc.ProvisionDetail,
		&svc.UpdatedAt,
	); err != nil {
		return domain.Service{}, err
	}
	svc.ProvisionStatus = domain.ActionStatus(status)
	environments, err := decodeEnvironments(environmentsJSON)
	if err != nil {
		return domain.Service{}, fmt.Errorf("decode environments: %w", err)
	}
	svc.Environments = environments
	return svc, nil
}

func encodeEnvironments(environments []string) ([]byte, error) {
	if environments == nil {
		environments = []string{}
	}
	out, err := json.Marshal(environments)
	if err != nil {
		return nil, fmt.Errorf("encode environments: %w", err)
	}
	return out, nil
}

func decodeEnvironments(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func requireRowAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
