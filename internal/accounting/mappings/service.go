package mappings

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Service loads purpose mappings for generated entries.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Load returns every mapping of the scope keyed by purpose.
func (s *Service) Load(ctx context.Context, scope accounting.Scope) (accounting.PurposeAccounts, error) {
	list, err := s.repo.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return ToPurposeAccounts(list), nil
}

// Set maps purpose to accountID after parsing the purpose name.
func (s *Service) Set(ctx context.Context, scope accounting.Scope, purpose string, accountID int64) error {
	p, err := accounting.ParsePurpose(purpose)
	if err != nil {
		return err
	}
	if accountID <= 0 {
		return fmt.Errorf("%w: account id required", accounting.ErrInvalidAccount)
	}
	return s.repo.Upsert(ctx, AccountMapping{Scope: scope, Purpose: p, AccountID: accountID})
}
