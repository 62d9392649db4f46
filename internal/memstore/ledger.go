package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

type tx struct {
	store *Store
	st    *state
}

// day truncates t to its calendar date, matching a SQL date column.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (t *tx) GetAccount(_ context.Context, scope accounting.Scope, id int64) (accounting.Account, error) {
	acc, ok := t.st.accounts[id]
	if !ok || acc.Scope != scope {
		return accounting.Account{}, fmt.Errorf("%w: id %d", accounting.ErrAccountNotFound, id)
	}
	return acc, nil
}

func (t *tx) GetAccounts(_ context.Context, scope accounting.Scope, ids []int64) ([]accounting.Account, error) {
	seen := make(map[int64]bool, len(ids))
	out := make([]accounting.Account, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if acc, ok := t.st.accounts[id]; ok && acc.Scope == scope {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ListAccounts(_ context.Context, scope accounting.Scope) ([]accounting.Account, error) {
	var out []accounting.Account
	for _, acc := range t.st.accounts {
		if acc.Scope == scope {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) InsertAccount(_ context.Context, acc accounting.Account) (accounting.Account, error) {
	for _, existing := range t.st.accounts {
		if existing.Scope == acc.Scope && existing.Code == acc.Code {
			return accounting.Account{}, fmt.Errorf("%w: %s", accounting.ErrDuplicateCode, acc.Code)
		}
	}
	if acc.ParentID != nil {
		parent, ok := t.st.accounts[*acc.ParentID]
		if !ok || parent.Scope != acc.Scope {
			return accounting.Account{}, accounting.ErrInvalidParent
		}
	}
	acc.ID = t.st.next("accounts")
	acc.Balance = decimal.Zero
	acc.Version = 1
	acc.UpdatedAt = acc.CreatedAt
	t.st.accounts[acc.ID] = acc
	return acc, nil
}

func (t *tx) UpdateAccount(_ context.Context, acc accounting.Account) error {
	current, ok := t.st.accounts[acc.ID]
	if !ok || current.Scope != acc.Scope || current.Version != acc.Version {
		return accounting.ErrStaleVersion
	}
	current.Name = acc.Name
	current.ParentID = acc.ParentID
	current.IsActive = acc.IsActive
	current.UpdatedAt = acc.UpdatedAt
	current.Version++
	t.st.accounts[acc.ID] = current
	return nil
}

func (t *tx) DeleteAccount(ctx context.Context, scope accounting.Scope, id int64) error {
	if _, err := t.GetAccount(ctx, scope, id); err != nil {
		return err
	}
	if used, _ := t.AccountHasLines(ctx, scope, id); used {
		return accounting.ErrAccountInUse
	}
	for _, acc := range t.st.accounts {
		if acc.ParentID != nil && *acc.ParentID == id {
			return accounting.ErrAccountInUse
		}
	}
	delete(t.st.accounts, id)
	return nil
}

func (t *tx) AccountHasLines(_ context.Context, scope accounting.Scope, id int64) (bool, error) {
	for _, e := range t.st.entries {
		if e.Scope != scope {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *tx) LockAccounts(ctx context.Context, scope accounting.Scope, ids []int64) ([]accounting.Account, error) {
	return t.GetAccounts(ctx, scope, ids)
}

func (t *tx) UpdateAccountBalance(_ context.Context, scope accounting.Scope, id int64, balance decimal.Decimal, expectedVersion int64) error {
	if t.store.conflicts > 0 {
		t.store.conflicts--
		return fmt.Errorf("%w: account %d", accounting.ErrStaleVersion, id)
	}
	acc, ok := t.st.accounts[id]
	if !ok || acc.Scope != scope || acc.Version != expectedVersion {
		return fmt.Errorf("%w: account %d", accounting.ErrStaleVersion, id)
	}
	acc.Balance = balance
	acc.Version++
	t.st.accounts[id] = acc
	return nil
}

func cloneEntry(e accounting.JournalEntry) accounting.JournalEntry {
	e.Lines = append([]accounting.JournalLine(nil), e.Lines...)
	return e
}

func (t *tx) InsertEntry(_ context.Context, e accounting.JournalEntry) (accounting.JournalEntry, error) {
	if e.SourceModule != "" && e.SourceID != uuid.Nil {
		for _, existing := range t.st.entries {
			if existing.Scope == e.Scope && existing.SourceModule == e.SourceModule && existing.SourceID == e.SourceID {
				return accounting.JournalEntry{}, fmt.Errorf("%w: source %s/%s", accounting.ErrConcurrency, e.SourceModule, e.SourceID)
			}
		}
	}
	t.st.numbers[e.Scope]++
	e.Number = t.st.numbers[e.Scope]
	e.ID = t.st.next("journal_entries")
	e.Date = day(e.Date)
	e = cloneEntry(e)
	for i := range e.Lines {
		e.Lines[i].ID = t.st.next("journal_lines")
		e.Lines[i].EntryID = e.ID
	}
	t.st.entries[e.ID] = e
	return cloneEntry(e), nil
}

func (t *tx) GetEntry(_ context.Context, scope accounting.Scope, id int64) (accounting.JournalEntry, error) {
	e, ok := t.st.entries[id]
	if !ok || e.Scope != scope {
		return accounting.JournalEntry{}, fmt.Errorf("%w: id %d", accounting.ErrEntryNotFound, id)
	}
	return cloneEntry(e), nil
}

func (t *tx) GetEntryForUpdate(ctx context.Context, scope accounting.Scope, id int64) (accounting.JournalEntry, error) {
	return t.GetEntry(ctx, scope, id)
}

func (t *tx) FindEntryBySource(_ context.Context, scope accounting.Scope, module string, sourceID uuid.UUID) (accounting.JournalEntry, bool, error) {
	for _, e := range t.st.entries {
		if e.Scope == scope && e.SourceModule == module && e.SourceID == sourceID {
			return cloneEntry(e), true, nil
		}
	}
	return accounting.JournalEntry{}, false, nil
}

func (t *tx) FindReversal(_ context.Context, scope accounting.Scope, entryID int64) (int64, bool, error) {
	var found int64
	for _, e := range t.st.entries {
		if e.Scope != scope || e.ReversalOf == nil || *e.ReversalOf != entryID || e.Status == accounting.EntryStatusRejected {
			continue
		}
		if found == 0 || e.ID < found {
			found = e.ID
		}
	}
	return found, found != 0, nil
}

func (t *tx) UpdateEntryStatus(_ context.Context, scope accounting.Scope, id int64, status accounting.EntryStatus, postedBy *int64, postedAt *time.Time) error {
	e, ok := t.st.entries[id]
	if !ok || e.Scope != scope {
		return fmt.Errorf("%w: id %d", accounting.ErrEntryNotFound, id)
	}
	e.Status = status
	if postedBy != nil {
		e.PostedBy = postedBy
	}
	if postedAt != nil {
		e.PostedAt = postedAt
	}
	t.st.entries[id] = e
	return nil
}

func (t *tx) InsertApproval(_ context.Context, a accounting.Approval) (accounting.Approval, error) {
	for _, existing := range t.st.approvals {
		if existing.Scope == a.Scope && existing.EntryID == a.EntryID && existing.Status == accounting.ApprovalPending {
			return accounting.Approval{}, fmt.Errorf("%w: entry %d already has a pending approval", accounting.ErrConcurrency, a.EntryID)
		}
	}
	a.ID = t.st.next("approvals")
	t.st.approvals[a.ID] = a
	return a, nil
}

func (t *tx) GetApprovalForUpdate(_ context.Context, scope accounting.Scope, id int64) (accounting.Approval, error) {
	a, ok := t.st.approvals[id]
	if !ok || a.Scope != scope {
		return accounting.Approval{}, fmt.Errorf("%w: id %d", accounting.ErrApprovalNotFound, id)
	}
	return a, nil
}

func (t *tx) UpdateApproval(_ context.Context, a accounting.Approval) error {
	current, ok := t.st.approvals[a.ID]
	if !ok || current.Scope != a.Scope {
		return fmt.Errorf("%w: id %d", accounting.ErrApprovalNotFound, a.ID)
	}
	current.Status = a.Status
	current.ApproverID = a.ApproverID
	current.Reason = a.Reason
	current.DecidedAt = a.DecidedAt
	current.EscalatedAt = a.EscalatedAt
	current.EscalatedRole = a.EscalatedRole
	t.st.approvals[a.ID] = current
	return nil
}

func (t *tx) ListApprovals(_ context.Context, scope accounting.Scope, entryID int64) ([]accounting.Approval, error) {
	var out []accounting.Approval
	for _, a := range t.st.approvals {
		if a.Scope == scope && a.EntryID == entryID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepIndex != out[j].StepIndex {
			return out[i].StepIndex < out[j].StepIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) ListPendingApprovals(_ context.Context, scope accounting.Scope, requestedBefore time.Time) ([]accounting.Approval, error) {
	var out []accounting.Approval
	for _, a := range t.st.approvals {
		if a.Scope == scope && a.Status == accounting.ApprovalPending && !a.RequestedAt.After(requestedBefore) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// posted visits every posted line of scope.
func (t *tx) posted(scope accounting.Scope, visit func(accounting.JournalEntry, accounting.JournalLine)) {
	for _, e := range t.st.entries {
		if e.Scope != scope || e.Status != accounting.EntryStatusPosted {
			continue
		}
		for _, l := range e.Lines {
			visit(e, l)
		}
	}
}

func (t *tx) SumPostedByAccount(_ context.Context, scope accounting.Scope, asOf time.Time) ([]accounting.AccountTotals, error) {
	limit := day(asOf)
	sums := map[int64]accounting.AccountTotals{}
	t.posted(scope, func(e accounting.JournalEntry, l accounting.JournalLine) {
		if e.Date.After(limit) {
			return
		}
		s, ok := sums[l.AccountID]
		if !ok {
			s = accounting.AccountTotals{AccountID: l.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
		}
		s.Debit = s.Debit.Add(l.Debit)
		s.Credit = s.Credit.Add(l.Credit)
		sums[l.AccountID] = s
	})
	out := make([]accounting.AccountTotals, 0, len(sums))
	for _, s := range sums {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (t *tx) SumPostedBefore(_ context.Context, scope accounting.Scope, accountID int64, before time.Time) (accounting.AccountTotals, error) {
	limit := day(before)
	out := accounting.AccountTotals{AccountID: accountID, Debit: decimal.Zero, Credit: decimal.Zero}
	t.posted(scope, func(e accounting.JournalEntry, l accounting.JournalLine) {
		if l.AccountID != accountID || !e.Date.Before(limit) {
			return
		}
		out.Debit = out.Debit.Add(l.Debit)
		out.Credit = out.Credit.Add(l.Credit)
	})
	return out, nil
}

func (t *tx) ListPostedLines(_ context.Context, scope accounting.Scope, accountID int64, rng accounting.Range) ([]accounting.PostedLine, error) {
	var out []accounting.PostedLine
	t.posted(scope, func(e accounting.JournalEntry, l accounting.JournalLine) {
		if l.AccountID != accountID {
			return
		}
		if !rng.From.IsZero() && e.Date.Before(day(rng.From)) {
			return
		}
		if !rng.To.IsZero() && e.Date.After(day(rng.To)) {
			return
		}
		memo := l.Memo
		if memo == "" {
			memo = e.Memo
		}
		out = append(out, accounting.PostedLine{
			EntryID: e.ID, EntryNumber: e.Number, Date: e.Date, Memo: memo,
			LineNo: l.LineNo, AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit,
		})
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.LineNo < b.LineNo
	})
	return out, nil
}

func (t *tx) LastAuditHash(_ context.Context, scope accounting.Scope) ([]byte, error) {
	for i := len(t.st.audit) - 1; i >= 0; i-- {
		if t.st.audit[i].Scope == scope {
			return t.st.audit[i].Hash, nil
		}
	}
	return nil, nil
}

func (t *tx) AppendAudit(_ context.Context, e accounting.AuditEvent) error {
	e.ID = t.st.next("audit_events")
	t.st.audit = append(t.st.audit, e)
	return nil
}

func (t *tx) ListAudit(_ context.Context, scope accounting.Scope) ([]accounting.AuditEvent, error) {
	var out []accounting.AuditEvent
	for _, e := range t.st.audit {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) ListScopes(_ context.Context) ([]accounting.Scope, error) {
	seen := map[accounting.Scope]bool{}
	var out []accounting.Scope
	for _, acc := range t.st.accounts {
		if !seen[acc.Scope] {
			seen[acc.Scope] = true
			out = append(out, acc.Scope)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].CompanyID < out[j].CompanyID
	})
	return out, nil
}
