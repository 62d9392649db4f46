package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Service answers open-period questions for the ledger.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) FindOpenPeriodByDate(ctx context.Context, scope accounting.Scope, date time.Time) (Period, error) {
	return s.repo.FindOpenPeriodByDate(ctx, scope.TenantID, scope.CompanyID, date)
}

// IsOpen implements accounting.PeriodPredicate. Closed and locked periods, and
// dates outside every period, report false.
func (s *Service) IsOpen(ctx context.Context, scope accounting.Scope, date time.Time) (bool, error) {
	period, err := s.FindOpenPeriodByDate(ctx, scope, date)
	if err != nil {
		if errors.Is(err, ErrNoOpenPeriod) {
			return false, nil
		}
		return false, err
	}
	return period.Status == PeriodStatusOpen && period.Covers(date), nil
}

// WithinTx answers on the ledger transaction when tx is backed by PostgreSQL.
// Other stores keep the pool-level answer.
func (s *Service) WithinTx(tx accounting.Tx) accounting.PeriodPredicate {
	pg, ok := tx.(interface{ PgxTx() pgx.Tx })
	if !ok {
		return s
	}
	return NewService(NewTxRepository(pg.PgxTx()))
}

var _ accounting.TxPeriodPredicate = (*Service)(nil)
