package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store opens a unit of work. Implementations must roll back every write made
// through Tx when fn returns an error.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes the transactional operations of the ledger core.
type Tx interface {
	GetAccount(ctx context.Context, scope Scope, id int64) (Account, error)
	GetAccounts(ctx context.Context, scope Scope, ids []int64) ([]Account, error)
	ListAccounts(ctx context.Context, scope Scope) ([]Account, error)
	InsertAccount(ctx context.Context, account Account) (Account, error)
	// UpdateAccount writes name, parent and active flag when account.Version is
	// still current, then bumps the version.
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, scope Scope, id int64) error
	AccountHasLines(ctx context.Context, scope Scope, id int64) (bool, error)
	// LockAccounts locks the rows in ascending id order and returns them in that order.
	LockAccounts(ctx context.Context, scope Scope, ids []int64) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, scope Scope, id int64, balance decimal.Decimal, expectedVersion int64) error

	// InsertEntry assigns ID, Number and line IDs.
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetEntry(ctx context.Context, scope Scope, id int64) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, scope Scope, id int64) (JournalEntry, error)
	FindEntryBySource(ctx context.Context, scope Scope, module string, sourceID uuid.UUID) (JournalEntry, bool, error)
	// FindReversal returns a non-rejected entry reversing entryID.
	FindReversal(ctx context.Context, scope Scope, entryID int64) (int64, bool, error)
	UpdateEntryStatus(ctx context.Context, scope Scope, id int64, status EntryStatus, postedBy *int64, postedAt *time.Time) error

	InsertApproval(ctx context.Context, approval Approval) (Approval, error)
	GetApprovalForUpdate(ctx context.Context, scope Scope, id int64) (Approval, error)
	UpdateApproval(ctx context.Context, approval Approval) error
	ListApprovals(ctx context.Context, scope Scope, entryID int64) ([]Approval, error)
	ListPendingApprovals(ctx context.Context, scope Scope, requestedBefore time.Time) ([]Approval, error)

	// SumPostedByAccount totals posted lines dated on or before asOf.
	SumPostedByAccount(ctx context.Context, scope Scope, asOf time.Time) ([]AccountTotals, error)
	// SumPostedBefore totals posted lines of one account dated strictly before before.
	SumPostedBefore(ctx context.Context, scope Scope, accountID int64, before time.Time) (AccountTotals, error)
	// ListPostedLines returns posted lines in rng ordered by date, entry id and line number.
	ListPostedLines(ctx context.Context, scope Scope, accountID int64, rng Range) ([]PostedLine, error)

	LastAuditHash(ctx context.Context, scope Scope) ([]byte, error)
	AppendAudit(ctx context.Context, event AuditEvent) error
	// ListAudit returns the scope's audit events in append order.
	ListAudit(ctx context.Context, scope Scope) ([]AuditEvent, error)

	ListScopes(ctx context.Context) ([]Scope, error)
}

// PeriodPredicate answers whether a date falls in an open accounting period.
type PeriodPredicate interface {
	IsOpen(ctx context.Context, scope Scope, date time.Time) (bool, error)
}

// TxPeriodPredicate is a PeriodPredicate that can answer on the posting unit of
// work, so a concurrent period close waits for the posting to commit.
type TxPeriodPredicate interface {
	PeriodPredicate
	WithinTx(tx Tx) PeriodPredicate
}

// PeriodFunc adapts a function to PeriodPredicate.
type PeriodFunc func(ctx context.Context, scope Scope, date time.Time) (bool, error)

// IsOpen implements PeriodPredicate.
func (f PeriodFunc) IsOpen(ctx context.Context, scope Scope, date time.Time) (bool, error) {
	return f(ctx, scope, date)
}

// AllPeriodsOpen treats every date as open.
var AllPeriodsOpen = PeriodFunc(func(context.Context, Scope, time.Time) (bool, error) {
	return true, nil
})
