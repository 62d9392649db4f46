package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Clearance states why an entry may be posted.
type Clearance int

const (
	// ClearanceDirect posts a DRAFT entry whose type needs no approval.
	ClearanceDirect Clearance = iota + 1
	// ClearanceApproved posts a PENDING_APPROVAL entry whose final step was just approved.
	ClearanceApproved
)

// Poster is the only component that mutates account balances.
type Poster struct {
	validator *Validator
	now       func() time.Time
}

// NewPoster constructs a Poster.
func NewPoster(validator *Validator, now func() time.Time) *Poster {
	if now == nil {
		now = time.Now
	}
	return &Poster{validator: validator, now: now}
}

// Post applies entry to balances inside tx. The caller owns the transaction, so
// any error returned here must abort it.
func (p *Poster) Post(ctx context.Context, tx Tx, entry JournalEntry, actor Actor, clearance Clearance) (JournalEntry, error) {
	switch {
	case clearance == ClearanceDirect && entry.Status == EntryStatusDraft:
	case clearance == ClearanceApproved && entry.Status == EntryStatusPendingApproval:
	default:
		return JournalEntry{}, fmt.Errorf("%w: cannot post entry %d in status %s", ErrInvalidStatus, entry.ID, entry.Status)
	}
	if err := p.validator.CheckBalance(entry); err != nil {
		return JournalEntry{}, err
	}

	ids := entry.AccountIDs()
	locked, err := tx.LockAccounts(ctx, entry.Scope, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(locked) != len(ids) {
		return JournalEntry{}, fmt.Errorf("%w: entry %d references missing accounts", ErrAccountNotFound, entry.ID)
	}
	byID := make(map[int64]Account, len(locked))
	for _, acc := range locked {
		if !acc.IsActive {
			return JournalEntry{}, &ValidationError{Rule: RuleAccountActive, AccountID: acc.ID, Detail: "account is inactive"}
		}
		byID[acc.ID] = acc
	}
	deltas := make(map[int64]decimal.Decimal, len(locked))
	for _, line := range entry.Lines {
		acc := byID[line.AccountID]
		deltas[line.AccountID] = deltas[line.AccountID].Add(acc.Type.Signed(line.Debit, line.Credit))
	}

	now := p.now()
	entryID := entry.ID
	for _, acc := range locked {
		before := acc.Balance
		after := before.Add(deltas[acc.ID])
		if err := tx.UpdateAccountBalance(ctx, entry.Scope, acc.ID, after, acc.Version); err != nil {
			return JournalEntry{}, err
		}
		accountID := acc.ID
		if err := appendAudit(ctx, tx, AuditEvent{
			Scope:     entry.Scope,
			Action:    AuditBalanceApplied,
			EntryID:   &entryID,
			AccountID: &accountID,
			ActorID:   actor.ID,
			Before:    &before,
			After:     &after,
			At:        now,
		}); err != nil {
			return JournalEntry{}, err
		}
	}

	postedBy := actor.ID
	if err := tx.UpdateEntryStatus(ctx, entry.Scope, entry.ID, EntryStatusPosted, &postedBy, &now); err != nil {
		return JournalEntry{}, err
	}
	if err := appendAudit(ctx, tx, AuditEvent{
		Scope:   entry.Scope,
		Action:  AuditEntryPosted,
		EntryID: &entryID,
		ActorID: actor.ID,
		Meta: map[string]any{
			"number":     entry.Number,
			"amount":     entry.Amount().String(),
			"entry_type": entry.EntryType,
			"from":       string(entry.Status),
		},
		At: now,
	}); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = EntryStatusPosted
	entry.PostedBy = &postedBy
	entry.PostedAt = &now
	entry.UpdatedAt = now
	return entry, nil
}
