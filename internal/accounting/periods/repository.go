package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	FindOpenPeriodByDate(ctx context.Context, tenantID, companyID int64, date time.Time) (Period, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db querier
	// lock share-locks the matched period so closing it waits for the reader's commit.
	lock bool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// NewTxRepository reads periods on tx and holds the covering row until tx ends.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx, lock: true}
}

const openPeriodQuery = `SELECT id, tenant_id, company_id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM periods WHERE tenant_id=$1 AND company_id=$2 AND status='OPEN' AND $3::date BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`

// FindOpenPeriodByDate returns the open period covering the supplied date.
func (r *repository) FindOpenPeriodByDate(ctx context.Context, tenantID, companyID int64, date time.Time) (Period, error) {
	var period Period
	query := openPeriodQuery
	if r.lock {
		query += " FOR SHARE"
	}
	err := r.db.QueryRow(ctx, query, tenantID, companyID, date).
		Scan(&period.ID, &period.TenantID, &period.CompanyID, &period.Code, &period.StartDate, &period.EndDate,
			&period.Status, &period.ClosedAt, &period.LockedBy, &period.CreatedAt, &period.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNoOpenPeriod
		}
		return Period{}, err
	}
	return period, nil
}
