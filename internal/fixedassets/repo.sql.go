package fixedassets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists assets in PostgreSQL, sharing the ledger transaction.
type Repository struct {
	pool *pgxpool.Pool
	cfg  db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, cfg db.TxConfig) *Repository {
	return &Repository{pool: pool, cfg: cfg}
}

// WithTx runs fn in one transaction covering asset and ledger tables.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("fixed asset repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, r.cfg, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: accounting.NewTxRepository(tx)})
	})
	if err != nil && db.IsContention(err) {
		return fmt.Errorf("%w: %v", accounting.ErrConcurrency, err)
	}
	return err
}

type txRepository struct {
	*accounting.TxRepository
}

const categoryColumns = `id, tenant_id, company_id, code, name, useful_life_months, method, declining_multiplier, salvage_rate,
asset_account_id, expense_account_id, accumulated_account_id, disposal_gain_account_id, disposal_loss_account_id, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var (
		c          Category
		gain, loss *int64
	)
	err := row.Scan(&c.ID, &c.Scope.TenantID, &c.Scope.CompanyID, &c.Code, &c.Name, &c.UsefulLifeMonths, &c.Method,
		&c.DecliningMultiplier, &c.SalvageRate, &c.AssetAccountID, &c.ExpenseAccountID, &c.AccumulatedAccountID,
		&gain, &loss, &c.CreatedAt)
	if gain != nil {
		c.DisposalGainAccountID = *gain
	}
	if loss != nil {
		c.DisposalLossAccountID = *loss
	}
	return c, err
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func (r *txRepository) InsertCategory(ctx context.Context, c Category) (Category, error) {
	err := r.PgxTx().QueryRow(ctx, `INSERT INTO asset_categories (tenant_id, company_id, code, name, useful_life_months, method,
declining_multiplier, salvage_rate, asset_account_id, expense_account_id, accumulated_account_id,
disposal_gain_account_id, disposal_loss_account_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		c.Scope.TenantID, c.Scope.CompanyID, c.Code, c.Name, c.UsefulLifeMonths, string(c.Method), c.DecliningMultiplier,
		c.SalvageRate, c.AssetAccountID, c.ExpenseAccountID, c.AccumulatedAccountID,
		optionalID(c.DisposalGainAccountID), optionalID(c.DisposalLossAccountID), c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_asset_categories_code") {
			return Category{}, fmt.Errorf("%w: category %s", ErrDuplicateCode, c.Code)
		}
		return Category{}, err
	}
	return c, nil
}

func (r *txRepository) GetCategory(ctx context.Context, scope accounting.Scope, id int64) (Category, error) {
	c, err := scanCategory(r.PgxTx().QueryRow(ctx, `SELECT `+categoryColumns+` FROM asset_categories
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, fmt.Errorf("%w: id %d", ErrCategoryNotFound, id)
	}
	return c, err
}

func (r *txRepository) ListCategories(ctx context.Context, scope accounting.Scope) ([]Category, error) {
	rows, err := r.PgxTx().Query(ctx, `SELECT `+categoryColumns+` FROM asset_categories
WHERE tenant_id=$1 AND company_id=$2 ORDER BY code`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const assetColumns = `id, tenant_id, company_id, category_id, code, name, cost, currency, acquisition_date, depreciation_start,
salvage, useful_life_months, method, declining_multiplier, accumulated, last_period, status, disposed_at, disposal_proceeds,
disposal_entry_id, version, created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a          Asset
		start      string
		lastPeriod *string
		proceeds   decimal.NullDecimal
	)
	err := row.Scan(&a.ID, &a.Scope.TenantID, &a.Scope.CompanyID, &a.CategoryID, &a.Code, &a.Name, &a.Cost, &a.Currency,
		&a.AcquisitionDate, &start, &a.Salvage, &a.UsefulLifeMonths, &a.Method, &a.DecliningMultiplier, &a.Accumulated,
		&lastPeriod, &a.Status, &a.DisposedAt, &proceeds, &a.DisposalEntryID, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Asset{}, err
	}
	if a.DepreciationStart, err = ParsePeriod(start); err != nil {
		return Asset{}, err
	}
	if lastPeriod != nil {
		p, err := ParsePeriod(*lastPeriod)
		if err != nil {
			return Asset{}, err
		}
		a.LastPeriod = &p
	}
	if proceeds.Valid {
		a.DisposalProceeds = &proceeds.Decimal
	}
	return a, nil
}

func periodString(p *Period) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r *txRepository) InsertAsset(ctx context.Context, a Asset) (Asset, error) {
	err := r.PgxTx().QueryRow(ctx, `INSERT INTO fixed_assets (tenant_id, company_id, category_id, code, name, cost, currency,
acquisition_date, depreciation_start, salvage, useful_life_months, method, declining_multiplier, accumulated, status,
version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$16) RETURNING id, version`,
		a.Scope.TenantID, a.Scope.CompanyID, a.CategoryID, a.Code, a.Name, a.Cost, a.Currency, a.AcquisitionDate,
		a.DepreciationStart.String(), a.Salvage, a.UsefulLifeMonths, string(a.Method), a.DecliningMultiplier, a.Accumulated,
		string(a.Status), a.CreatedAt).Scan(&a.ID, &a.Version)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_fixed_assets_code") {
			return Asset{}, fmt.Errorf("%w: asset %s", ErrDuplicateCode, a.Code)
		}
		return Asset{}, err
	}
	return a, nil
}

func (r *txRepository) getAsset(ctx context.Context, scope accounting.Scope, id int64, lock bool) (Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM fixed_assets WHERE tenant_id=$1 AND company_id=$2 AND id=$3`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanAsset(r.PgxTx().QueryRow(ctx, query, scope.TenantID, scope.CompanyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, fmt.Errorf("%w: id %d", ErrAssetNotFound, id)
	}
	return a, err
}

func (r *txRepository) GetAsset(ctx context.Context, scope accounting.Scope, id int64) (Asset, error) {
	return r.getAsset(ctx, scope, id, false)
}

func (r *txRepository) GetAssetForUpdate(ctx context.Context, scope accounting.Scope, id int64) (Asset, error) {
	return r.getAsset(ctx, scope, id, true)
}

func (r *txRepository) UpdateAsset(ctx context.Context, a Asset) error {
	tag, err := r.PgxTx().Exec(ctx, `UPDATE fixed_assets SET accumulated=$4, last_period=$5, status=$6, disposed_at=$7,
disposal_proceeds=$8, disposal_entry_id=$9, version=version+1, updated_at=$10
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND version=$11`,
		a.Scope.TenantID, a.Scope.CompanyID, a.ID, a.Accumulated, periodString(a.LastPeriod), string(a.Status),
		a.DisposedAt, nullDecimal(a.DisposalProceeds), a.DisposalEntryID, a.UpdatedAt, a.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %d", accounting.ErrConcurrency, a.ID)
	}
	return nil
}

func (r *txRepository) ListAssets(ctx context.Context, scope accounting.Scope, statuses ...AssetStatus) ([]Asset, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	rows, err := r.PgxTx().Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets
WHERE tenant_id=$1 AND company_id=$2 AND (cardinality($3::text[]) = 0 OR status = ANY($3)) ORDER BY id`,
		scope.TenantID, scope.CompanyID, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const depreciationColumns = `id, tenant_id, company_id, asset_id, period, amount, accumulated, entry_id, created_at`

func scanDepreciation(row pgx.Row) (Depreciation, error) {
	var (
		d      Depreciation
		period string
	)
	if err := row.Scan(&d.ID, &d.Scope.TenantID, &d.Scope.CompanyID, &d.AssetID, &period, &d.Amount, &d.Accumulated,
		&d.EntryID, &d.CreatedAt); err != nil {
		return Depreciation{}, err
	}
	p, err := ParsePeriod(period)
	if err != nil {
		return Depreciation{}, err
	}
	d.Period = p
	return d, nil
}

func (r *txRepository) GetDepreciation(ctx context.Context, scope accounting.Scope, assetID int64, period Period) (Depreciation, bool, error) {
	d, err := scanDepreciation(r.PgxTx().QueryRow(ctx, `SELECT `+depreciationColumns+` FROM fixed_asset_depreciations
WHERE tenant_id=$1 AND company_id=$2 AND asset_id=$3 AND period=$4`, scope.TenantID, scope.CompanyID, assetID, period.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Depreciation{}, false, nil
	}
	if err != nil {
		return Depreciation{}, false, err
	}
	return d, true, nil
}

func (r *txRepository) InsertDepreciation(ctx context.Context, d Depreciation) (Depreciation, error) {
	err := r.PgxTx().QueryRow(ctx, `INSERT INTO fixed_asset_depreciations (tenant_id, company_id, asset_id, period, amount,
accumulated, entry_id, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		d.Scope.TenantID, d.Scope.CompanyID, d.AssetID, d.Period.String(), d.Amount, d.Accumulated, d.EntryID, d.CreatedAt).Scan(&d.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_fixed_asset_depreciations_period") {
			return Depreciation{}, fmt.Errorf("%w: asset %d period %s", ErrAlreadyDepreciated, d.AssetID, d.Period)
		}
		return Depreciation{}, err
	}
	return d, nil
}

func (r *txRepository) ListDepreciations(ctx context.Context, scope accounting.Scope, assetID int64) ([]Depreciation, error) {
	rows, err := r.PgxTx().Query(ctx, `SELECT `+depreciationColumns+` FROM fixed_asset_depreciations
WHERE tenant_id=$1 AND company_id=$2 AND asset_id=$3 ORDER BY period`, scope.TenantID, scope.CompanyID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Depreciation
	for rows.Next() {
		d, err := scanDepreciation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var (
	_ Store = (*Repository)(nil)
	_ Tx    = (*txRepository)(nil)
)
