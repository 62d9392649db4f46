package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

type Repository interface {
	Get(ctx context.Context, scope accounting.Scope, purpose accounting.Purpose) (AccountMapping, error)
	List(ctx context.Context, scope accounting.Scope) ([]AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const mappingColumns = `tenant_id, company_id, purpose, account_id, created_at, updated_at`

// Get resolves the account mapped to purpose.
func (r *repository) Get(ctx context.Context, scope accounting.Scope, purpose accounting.Purpose) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE tenant_id=$1 AND company_id=$2 AND purpose=$3`,
		scope.TenantID, scope.CompanyID, string(purpose)).
		Scan(&m.Scope.TenantID, &m.Scope.CompanyID, &m.Purpose, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: purpose %s", accounting.ErrMappingNotFound, purpose)
		}
		return AccountMapping{}, err
	}
	return m, nil
}

// List returns every mapping of the scope.
func (r *repository) List(ctx context.Context, scope accounting.Scope) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE tenant_id=$1 AND company_id=$2 ORDER BY purpose`,
		scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Scope.TenantID, &m.Scope.CompanyID, &m.Purpose, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert maps purpose to an account, replacing any previous mapping.
func (r *repository) Upsert(ctx context.Context, m AccountMapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (tenant_id, company_id, purpose, account_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (tenant_id, company_id, purpose) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`,
		m.Scope.TenantID, m.Scope.CompanyID, string(m.Purpose), m.AccountID)
	return err
}
