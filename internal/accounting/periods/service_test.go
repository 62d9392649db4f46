package periods

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

type memoryPeriodRepo struct {
	periods []Period
	err     error
}

func (r *memoryPeriodRepo) FindOpenPeriodByDate(ctx context.Context, tenantID, companyID int64, date time.Time) (Period, error) {
	if r.err != nil {
		return Period{}, r.err
	}
	for _, p := range r.periods {
		if p.TenantID == tenantID && p.CompanyID == companyID && p.Status == PeriodStatusOpen && p.Covers(date) {
			return p, nil
		}
	}
	return Period{}, ErrNoOpenPeriod
}

func TestIsOpen(t *testing.T) {
	scope := accounting.Scope{TenantID: 1, CompanyID: 2}
	repo := &memoryPeriodRepo{periods: []Period{
		{ID: 1, TenantID: 1, CompanyID: 2, Code: "2024-01", Status: PeriodStatusOpen,
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{ID: 2, TenantID: 1, CompanyID: 2, Code: "2023-12", Status: PeriodStatusLocked,
			StartDate: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	open, err := svc.IsOpen(ctx, scope, time.Date(2024, 1, 31, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, open, "last day of period is inclusive")

	open, err = svc.IsOpen(ctx, scope, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, open, "locked period")

	open, err = svc.IsOpen(ctx, accounting.Scope{TenantID: 1, CompanyID: 3}, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, open, "other company")
}

func TestIsOpenPropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&memoryPeriodRepo{err: boom})
	_, err := svc.IsOpen(context.Background(), accounting.Scope{TenantID: 1, CompanyID: 1}, time.Now())
	require.ErrorIs(t, err, boom)
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

// recordingTx stands in for a pgx transaction; only QueryRow is exercised.
type recordingTx struct {
	pgx.Tx
	queries []string
}

func (tx *recordingTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	tx.queries = append(tx.queries, sql)
	return noRow{}
}

type ledgerTx struct {
	accounting.Tx
	pg *recordingTx
}

func (tx ledgerTx) PgxTx() pgx.Tx { return tx.pg }

func TestWithinTxLocksPeriodOnLedgerTransaction(t *testing.T) {
	scope := accounting.Scope{TenantID: 1, CompanyID: 2}
	svc := NewService(&memoryPeriodRepo{})
	pg := &recordingTx{}

	open, err := svc.WithinTx(ledgerTx{pg: pg}).IsOpen(context.Background(), scope, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, open)
	require.Len(t, pg.queries, 1)
	require.True(t, strings.HasSuffix(pg.queries[0], "FOR SHARE"))

	require.Same(t, svc, svc.WithinTx(nil))
}
