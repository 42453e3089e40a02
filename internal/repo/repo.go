package repo

import (
	"context"
	"errors"

	"github.com/idp-labs/portal/internal/domain"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an existing row
	// or an open action blocks a new one.
	ErrConflict = errors.New("conflict")
)

type ServiceStore interface {
	Create(ctx context.Context, svc domain.Service) error
	Get(ctx context.Context, id string) (domain.Service, error)
	// GetForUpdate locks the service row for the rest of the transaction.
	// It is only meaningful on stores bound to a transaction.
	GetForUpdate(ctx context.Context, id string) (domain.Service, error)
	List(ctx context.Context) ([]domain.Service, error)
	Update(ctx context.Context, svc domain.Service) error
	Delete(ctx context.Context, id string) error
	SetProvisionState(ctx context.Context, id string, status domain.ActionStatus, detail string) error
}

type TenantStore interface {
	GetByName(ctx context.Context, name string) (domain.Tenant, error)
	Create(ctx context.Context, tenant domain.Tenant) error
	List(ctx context.Context) ([]domain.Tenant, error)
	SetState(ctx context.Context, name string, status domain.ActionStatus, detail string) error
}

// ActionStore is the append-oriented action ledger. Records are created in
// queued and only ever move forward through the transition table; there is
// no delete.
type ActionStore interface {
	Create(ctx context.Context, record domain.ActionRecord) error
	Get(ctx context.Context, id string) (domain.ActionRecord, error)
	// Update applies a guarded transition. It reports false with a nil
	// error when the record is already terminal and the update is absorbed
	// as a duplicate.
	Update(ctx context.Context, id string, status domain.ActionStatus, detail string, handle string) (bool, error)
	Latest(ctx context.Context, serviceID string, kind domain.ActionKind) (domain.ActionRecord, error)
	LatestForTenant(ctx context.Context, tenant string, kind domain.ActionKind) (domain.ActionRecord, error)
	LatestDeploy(ctx context.Context, serviceID string, environment string) (domain.ActionRecord, error)
	HasOpen(ctx context.Context, serviceID string, kind domain.ActionKind) (bool, error)
	ListByService(ctx context.Context, serviceID string, limit int) ([]domain.ActionRecord, error)
}

// Stores bundles the per-entity stores plus transaction scoping. InTx runs
// fn against stores bound to one transaction; the work is committed when
// fn returns nil and rolled back otherwise.
type Stores interface {
	Services() ServiceStore
	Tenants() TenantStore
	Actions() ActionStore
	InTx(ctx context.Context, fn func(Stores) error) error
}
