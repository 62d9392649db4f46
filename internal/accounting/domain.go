package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope identifies the tenant and company every ledger operation runs under.
type Scope struct {
	TenantID  int64
	CompanyID int64
}

// Valid reports whether both identifiers are set.
func (s Scope) Valid() bool {
	return s.TenantID > 0 && s.CompanyID > 0
}

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide is the side on which an account's balance increases.
type NormalSide int

const (
	NormalDebit NormalSide = iota + 1
	NormalCredit
)

// NormalSide returns debit for assets and expenses, credit for everything else.
func (t AccountType) NormalSide() NormalSide {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return NormalDebit
	}
	return NormalCredit
}

// Signed converts a debit/credit pair into a movement on the normal side.
func (t AccountType) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if t.NormalSide() == NormalDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Account models a chart of accounts node with its running balance.
type Account struct {
	ID        int64
	Scope     Scope
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	Balance   decimal.Decimal
	IsActive  bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft           EntryStatus = "DRAFT"
	EntryStatusPendingApproval EntryStatus = "PENDING_APPROVAL"
	EntryStatusPosted          EntryStatus = "POSTED"
	EntryStatusRejected        EntryStatus = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s EntryStatus) Terminal() bool {
	return s == EntryStatusPosted || s == EntryStatusRejected
}

// Dimensions tags a line for management reporting.
type Dimensions struct {
	DepartmentID *int64
	ProjectID    *int64
	LocationID   *int64
}

// JournalEntry captures entry header and its ordered lines.
type JournalEntry struct {
	ID           int64
	Scope        Scope
	Number       int64
	Date         time.Time
	Memo         string
	Reference    string
	EntryType    string
	Status       EntryStatus
	CreatedBy    int64
	PostedBy     *int64
	PostedAt     *time.Time
	ReversalOf   *int64
	SourceModule string
	SourceID     uuid.UUID
	Lines        []JournalLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Totals returns the debit and credit sums of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Amount is the entry size used by approval thresholds.
func (e JournalEntry) Amount() decimal.Decimal {
	debit, _ := e.Totals()
	return debit
}

// AccountIDs returns the distinct accounts referenced by the lines, ascending.
func (e JournalEntry) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(e.Lines))
	ids := make([]int64, 0, len(e.Lines))
	for _, line := range e.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sortIDs(ids)
	return ids
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID         int64
	EntryID    int64
	LineNo     int
	AccountID  int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Memo       string
	Dimensions Dimensions
}

// LineInput describes a proposed journal line.
type LineInput struct {
	AccountID  int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Memo       string
	Dimensions Dimensions
}

// CreateEntryInput groups the fields of createEntry.
type CreateEntryInput struct {
	Date         time.Time
	Memo         string
	Reference    string
	EntryType    string
	SourceModule string
	SourceID     uuid.UUID
	Lines        []LineInput
}

func (in CreateEntryInput) toEntry(scope Scope, actorID int64, now time.Time) JournalEntry {
	entry := JournalEntry{
		Scope:        scope,
		Date:         in.Date,
		Memo:         in.Memo,
		Reference:    in.Reference,
		EntryType:    in.EntryType,
		Status:       EntryStatusDraft,
		CreatedBy:    actorID,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry.Lines = make([]JournalLine, 0, len(in.Lines))
	for idx, line := range in.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			LineNo:     idx + 1,
			AccountID:  line.AccountID,
			Debit:      line.Debit,
			Credit:     line.Credit,
			Memo:       line.Memo,
			Dimensions: line.Dimensions,
		})
	}
	return entry
}

// Actor is the acting user resolved by the caller.
type Actor struct {
	ID    int64
	Roles []string
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ApprovalStatus enumerates approval row states.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval is one step decision row for a journal entry.
type Approval struct {
	ID            int64
	Scope         Scope
	EntryID       int64
	EntryType     string
	StepIndex     int
	RequiredRole  string
	Status        ApprovalStatus
	RequestedBy   int64
	ApproverID    *int64
	Reason        string
	RequestedAt   time.Time
	DecidedAt     *time.Time
	EscalatedAt   *time.Time
	EscalatedRole string
}

// AuditAction names the events written to the immutable audit trail.
type AuditAction string

const (
	AuditEntryCreated     AuditAction = "entry.created"
	AuditEntrySubmitted   AuditAction = "entry.submitted"
	AuditEntryPosted      AuditAction = "entry.posted"
	AuditEntryRejected    AuditAction = "entry.rejected"
	AuditBalanceApplied   AuditAction = "balance.applied"
	AuditApprovalApproved AuditAction = "approval.approved"
	AuditApprovalEscalate AuditAction = "approval.escalated"
	AuditAccountCreated   AuditAction = "account.created"
	AuditAccountChanged   AuditAction = "account.changed"
	AuditAccountDeleted   AuditAction = "account.deleted"
)

// AuditEvent is an append-only record of a ledger state change.
type AuditEvent struct {
	ID        int64
	Scope     Scope
	Action    AuditAction
	EntryID   *int64
	AccountID *int64
	ActorID   int64
	Before    *decimal.Decimal
	After     *decimal.Decimal
	Meta      map[string]any
	At        time.Time
	PrevHash  []byte
	Hash      []byte
}

// Range bounds a general ledger query; both ends inclusive.
type Range struct {
	From time.Time
	To   time.Time
}

// PostedLine is a posted movement joined with its entry header.
type PostedLine struct {
	EntryID     int64
	EntryNumber int64
	Date        time.Time
	Memo        string
	LineNo      int
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// AccountTotals sums posted debit and credit for one account.
type AccountTotals struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}
