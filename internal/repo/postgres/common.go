package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/idp-labs/portal/internal/repo"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of database/sql satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the postgres-backed stores. A Store created with New runs
// each call in auto-commit mode; InTx hands fn a Store bound to a single
// transaction.
type Store struct {
	root *sql.DB
	q    DB
}

func New(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{root: db, q: db}
}

func (s *Store) Services() repo.ServiceStore { return &serviceStore{db: s.q} }
func (s *Store) Tenants() repo.TenantStore   { return &tenantStore{db: s.q} }
func (s *Store) Actions() repo.ActionStore   { return &actionStore{db: s.q} }

func (s *Store) InTx(ctx context.Context, fn func(repo.Stores) error) error {
	if s.root == nil {
		// Already inside a transaction; join it.
		return fn(s)
	}
	tx, err := s.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
