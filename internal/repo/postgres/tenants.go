package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/repo"
)

type tenantStore struct {
	db DB
}

const tenantColumns = `tenant_id, name, status, detail, namespace, rds_schema, s3_bucket, updated_at`

func (s *tenantStore) Create(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	status := tenant.Status
	if status == "" {
		status = domain.StatusNotRequested
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tenants (
			tenant_id,
			name,
			status,
			detail,
			namespace,
			rds_schema,
			s3_bucket,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(tenant.ID),
		strings.TrimSpace(tenant.Name),
		string(status),
		tenant.Detail,
		nullIfEmpty(tenant.Namespace),
		nullIfEmpty(tenant.RDSSchema),
		nullIfEmpty(tenant.S3Bucket),
		normalizeTime(tenant.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *tenantStore) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tenant{}, fmt.Errorf("tenant name is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE name = $1`,
		name,
	)
	tenant, err := scanTenant(row)
	if err != nil {
		return domain.Tenant{}, handleNotFound(err)
	}
	return tenant, nil
}

func (s *tenantStore) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Tenant, 0)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}

func (s *tenantStore) SetState(ctx context.Context, name string, status domain.ActionStatus, detail string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tenant name is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tenants SET status = $1, detail = $2, updated_at = $3 WHERE name = $4`,
		string(status),
		detail,
		time.Now().UTC(),
		name,
	)
	if err != nil {
		return fmt.Errorf("update tenant state: %w", err)
	}
	return requireRowAffected(res)
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var tenant domain.Tenant
	var status string
	var namespace, rdsSchema, s3Bucket sql.NullString
	if err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&status,
		&tenant.Detail,
		&namespace,
		&rdsSchema,
		&s3Bucket,
		&tenant.UpdatedAt,
	); err != nil {
		return domain.Tenant{}, err
	}
	tenant.Status = domain.ActionStatus(status)
	tenant.Namespace = namespace.String
	tenant.RDSSchema = rdsSchema.String
	tenant.S3Bucket = s3Bucket.String
	return tenant, nil
}
