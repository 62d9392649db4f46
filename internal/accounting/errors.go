package accounting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by the ledger core unwraps to exactly one of these.
var (
	// ErrValidation covers structural, balance and account problems the caller can correct.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrWorkflow covers state-sequencing problems on an entry.
	ErrWorkflow = errors.New("accounting: workflow error")
	// ErrApproval covers authorization and decision problems on an approval.
	ErrApproval = errors.New("accounting: approval error")
	// ErrConcurrency indicates lock contention or a stale version; retry the whole operation.
	ErrConcurrency = errors.New("accounting: concurrent modification")
	// ErrNotFound indicates a missing ledger resource.
	ErrNotFound = errors.New("accounting: not found")
	// ErrIntegrity indicates persisted ledger data violates a double-entry invariant.
	ErrIntegrity = errors.New("accounting: ledger integrity violated")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	// ErrDuplicateCode indicates the account code exists for the tenant/company.
	ErrDuplicateCode = newKindError(ErrValidation, "accounting: account code already exists")
	// ErrInvalidParent indicates a missing, foreign or cycle-forming parent account.
	ErrInvalidParent = newKindError(ErrValidation, "accounting: invalid parent account")
	// ErrAccountInUse indicates journal lines still reference the account.
	ErrAccountInUse = newKindError(ErrValidation, "accounting: account referenced by journal lines")
	// ErrInvalidAccount indicates malformed account input.
	ErrInvalidAccount = newKindError(ErrValidation, "accounting: invalid account input")
	// ErrInvalidScope indicates missing tenant or company.
	ErrInvalidScope = newKindError(ErrValidation, "accounting: tenant and company required")

	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = newKindError(ErrNotFound, "accounting: account not found")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = newKindError(ErrNotFound, "accounting: journal entry not found")
	// ErrApprovalNotFound indicates a missing approval row.
	ErrApprovalNotFound = newKindError(ErrNotFound, "accounting: approval not found")
	// ErrMappingNotFound indicates no account is mapped for a purpose.
	ErrMappingNotFound = newKindError(ErrNotFound, "accounting: account mapping not found")

	// ErrInvalidStatus indicates the entry cannot make the requested transition.
	ErrInvalidStatus = newKindError(ErrWorkflow, "accounting: invalid status transition")
	// ErrApprovalRequired indicates the entry type must pass its workflow before posting.
	ErrApprovalRequired = newKindError(ErrWorkflow, "accounting: entry requires approval")
	// ErrAlreadyReversed indicates a reversing entry already exists.
	ErrAlreadyReversed = newKindError(ErrWorkflow, "accounting: entry already reversed")
	// ErrInvalidWorkflow indicates a workflow definition failed construction checks.
	ErrInvalidWorkflow = newKindError(ErrWorkflow, "accounting: invalid workflow definition")

	// ErrNotAuthorized indicates the actor lacks the role required by the current step.
	ErrNotAuthorized = newKindError(ErrApproval, "accounting: actor not authorized for approval step")
	// ErrAlreadyDecided indicates the approval row was decided before.
	ErrAlreadyDecided = newKindError(ErrApproval, "accounting: approval already decided")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = newKindError(ErrApproval, "accounting: rejection reason required")

	// ErrStaleVersion indicates an optimistic version check failed.
	ErrStaleVersion = newKindError(ErrConcurrency, "accounting: stale account version")

	// ErrTrialBalanceMismatch indicates debit and credit columns diverged.
	ErrTrialBalanceMismatch = newKindError(ErrIntegrity, "accounting: trial balance out of balance")
)

// Rule names a validation rule, in evaluation order.
type Rule string

const (
	RuleMinLines      Rule = "MIN_LINES"
	RuleAccountActive Rule = "ACCOUNT_ACTIVE"
	RuleLineAmounts   Rule = "LINE_AMOUNTS"
	RuleBalanced      Rule = "BALANCED"
	RuleOpenPeriod    Rule = "OPEN_PERIOD"
)

// ValidationError reports the first violated rule of an entry.
type ValidationError struct {
	Rule      Rule
	Line      int
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Detail    string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Rule == RuleBalanced:
		return fmt.Sprintf("accounting: %s: debit %s != credit %s", e.Rule, e.Debit.String(), e.Credit.String())
	case e.Line > 0:
		return fmt.Sprintf("accounting: %s: line %d: %s", e.Rule, e.Line, e.Detail)
	default:
		return fmt.Sprintf("accounting: %s: %s", e.Rule, e.Detail)
	}
}

// Unwrap classifies every ValidationError as ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Imbalance returns debit minus credit for a BALANCED failure.
func (e *ValidationError) Imbalance() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// RuleOf extracts the violated rule from err, if any.
func RuleOf(err error) (Rule, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Rule, true
	}
	return "", false
}
