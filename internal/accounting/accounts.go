package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CreateAccountInput describes a new chart of accounts node.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

func (in CreateAccountInput) normalize() (CreateAccountInput, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	switch {
	case in.Code == "":
		return in, fmt.Errorf("%w: code required", ErrInvalidAccount)
	case in.Name == "":
		return in, fmt.Errorf("%w: name required", ErrInvalidAccount)
	case !in.Type.Valid():
		return in, fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, in.Type)
	}
	return in, nil
}

// CreateAccount adds an account under an optional parent in the same scope.
func (s *Service) CreateAccount(ctx context.Context, scope Scope, in CreateAccountInput, actor Actor) (Account, error) {
	if err := requireScope(scope); err != nil {
		return Account{}, err
	}
	in, err := in.normalize()
	if err != nil {
		return Account{}, err
	}
	var created Account
	err = s.inTx(ctx, "create_account", func(ctx context.Context, tx Tx) error {
		if in.ParentID != nil {
			if _, err := tx.GetAccount(ctx, scope, *in.ParentID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: parent %d not in company", ErrInvalidParent, *in.ParentID)
				}
				return err
			}
		}
		now := s.now()
		var err error
		created, err = tx.InsertAccount(ctx, Account{
			Scope:     scope,
			Code:      in.Code,
			Name:      in.Name,
			Type:      in.Type,
			ParentID:  in.ParentID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		accountID := created.ID
		return appendAudit(ctx, tx, AuditEvent{
			Scope:     scope,
			Action:    AuditAccountCreated,
			AccountID: &accountID,
			ActorID:   actor.ID,
			Meta:      map[string]any{"code": created.Code, "type": string(created.Type)},
			At:        now,
		})
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// ListAccounts returns the chart ordered by code.
func (s *Service) ListAccounts(ctx context.Context, scope Scope) ([]Account, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var accounts []Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, scope)
		return err
	})
	return accounts, err
}

// Chart loads the scope's chart of accounts as an arena.
func (s *Service) Chart(ctx context.Context, scope Scope) (*Chart, error) {
	accounts, err := s.ListAccounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	return NewChart(accounts)
}

// ResolveHierarchy returns the ancestor chain of accountID, nearest parent first.
func (s *Service) ResolveHierarchy(ctx context.Context, scope Scope, accountID int64) ([]Account, error) {
	chart, err := s.Chart(ctx, scope)
	if err != nil {
		return nil, err
	}
	if _, ok := chart.Account(accountID); !ok {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	return chart.Ancestors(accountID), nil
}

// RenameAccount changes an account's display name.
func (s *Service) RenameAccount(ctx context.Context, scope Scope, accountID int64, name string, actor Actor) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: name required", ErrInvalidAccount)
	}
	return s.changeAccount(ctx, scope, accountID, actor, "rename", func(ctx context.Context, tx Tx, acc *Account) error {
		acc.Name = name
		return nil
	})
}

// ReparentAccount moves an account under parentID, or to the root when nil.
func (s *Service) ReparentAccount(ctx context.Context, scope Scope, accountID int64, parentID *int64, actor Actor) (Account, error) {
	return s.changeAccount(ctx, scope, accountID, actor, "reparent", func(ctx context.Context, tx Tx, acc *Account) error {
		if parentID == nil {
			acc.ParentID = nil
			return nil
		}
		accounts, err := tx.ListAccounts(ctx, scope)
		if err != nil {
			return err
		}
		chart, err := NewChart(accounts)
		if err != nil {
			return err
		}
		if _, ok := chart.Account(*parentID); !ok {
			return fmt.Errorf("%w: parent %d not in company", ErrInvalidParent, *parentID)
		}
		if chart.WouldCycle(acc.ID, *parentID) {
			return fmt.Errorf("%w: moving %d under %d forms a cycle", ErrInvalidParent, acc.ID, *parentID)
		}
		pid := *parentID
		acc.ParentID = &pid
		return nil
	})
}

// DeactivateAccount blocks further postings to the account.
func (s *Service) DeactivateAccount(ctx context.Context, scope Scope, accountID int64, actor Actor) (Account, error) {
	return s.changeAccount(ctx, scope, accountID, actor, "deactivate", func(ctx context.Context, tx Tx, acc *Account) error {
		acc.IsActive = false
		return nil
	})
}

func (s *Service) changeAccount(ctx context.Context, scope Scope, accountID int64, actor Actor, change string, mutate func(context.Context, Tx, *Account) error) (Account, error) {
	if err := requireScope(scope); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.inTx(ctx, change+"_account", func(ctx context.Context, tx Tx) error {
		accs, err := tx.LockAccounts(ctx, scope, []int64{accountID})
		if err != nil {
			return err
		}
		if len(accs) == 0 {
			return fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
		}
		acc := accs[0]
		if err := mutate(ctx, tx, &acc); err != nil {
			return err
		}
		now := s.now()
		acc.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		acc.Version++
		updated = acc
		id := acc.ID
		return appendAudit(ctx, tx, AuditEvent{
			Scope:     scope,
			Action:    AuditAccountChanged,
			AccountID: &id,
			ActorID:   actor.ID,
			Meta:      map[string]any{"change": change},
			At:        now,
		})
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// DeleteAccount removes an account that no journal line references.
func (s *Service) DeleteAccount(ctx context.Context, scope Scope, accountID int64, actor Actor) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	return s.inTx(ctx, "delete_account", func(ctx context.Context, tx Tx) error {
		acc, err := tx.GetAccount(ctx, scope, accountID)
		if err != nil {
			return err
		}
		inUse, err := tx.AccountHasLines(ctx, scope, accountID)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: account %s", ErrAccountInUse, acc.Code)
		}
		accounts, err := tx.ListAccounts(ctx, scope)
		if err != nil {
			return err
		}
		for _, other := range accounts {
			if other.ParentID != nil && *other.ParentID == accountID {
				return fmt.Errorf("%w: account %s has child %s", ErrInvalidParent, acc.Code, other.Code)
			}
		}
		if err := tx.DeleteAccount(ctx, scope, accountID); err != nil {
			return err
		}
		return appendAudit(ctx, tx, AuditEvent{
			Scope:     scope,
			Action:    AuditAccountDeleted,
			AccountID: &accountID,
			ActorID:   actor.ID,
			Meta:      map[string]any{"code": acc.Code},
			At:        s.now(),
		})
	})
}
