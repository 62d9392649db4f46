package accounting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultScale is the minor-unit precision used when none is configured.
const DefaultScale int32 = 2

// Validator checks an entry's structural and balance invariants. Rules run in
// a fixed order and the first violation is returned.
type Validator struct {
	scale int32
}

// NewValidator constructs a Validator for amounts with the given minor-unit scale.
func NewValidator(scale int32) *Validator {
	if scale < 0 {
		scale = DefaultScale
	}
	return &Validator{scale: scale}
}

// Scale returns the configured minor-unit precision.
func (v *Validator) Scale() int32 { return v.scale }

// Validate runs every rule against entry. accounts must hold each account the
// lines reference that exists in the entry's scope.
func (v *Validator) Validate(ctx context.Context, entry JournalEntry, accounts map[int64]Account, periods PeriodPredicate) error {
	if len(entry.Lines) < 2 {
		return &ValidationError{Rule: RuleMinLines, Detail: fmt.Sprintf("entry has %d line(s), at least 2 required", len(entry.Lines))}
	}
	for _, line := range entry.Lines {
		acc, ok := accounts[line.AccountID]
		if !ok || acc.Scope != entry.Scope {
			return &ValidationError{Rule: RuleAccountActive, Line: line.LineNo, AccountID: line.AccountID, Detail: "account does not exist"}
		}
		if !acc.IsActive {
			return &ValidationError{Rule: RuleAccountActive, Line: line.LineNo, AccountID: line.AccountID, Detail: "account is inactive"}
		}
	}
	for _, line := range entry.Lines {
		if err := v.checkLine(line); err != nil {
			return err
		}
	}
	if err := v.CheckBalance(entry); err != nil {
		return err
	}
	if periods == nil {
		periods = AllPeriodsOpen
	}
	open, err := periods.IsOpen(ctx, entry.Scope, entry.Date)
	if err != nil {
		return err
	}
	if !open {
		return &ValidationError{Rule: RuleOpenPeriod, Detail: fmt.Sprintf("date %s is not in an open period", entry.Date.Format("2006-01-02"))}
	}
	return nil
}

func (v *Validator) checkLine(line JournalLine) error {
	fail := func(detail string) error {
		return &ValidationError{Rule: RuleLineAmounts, Line: line.LineNo, AccountID: line.AccountID, Detail: detail}
	}
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return fail("negative amount")
	}
	if !line.Debit.IsZero() && !line.Credit.IsZero() {
		return fail("line cannot be both debit and credit")
	}
	if !fitsScale(line.Debit, v.scale) || !fitsScale(line.Credit, v.scale) {
		return fail(fmt.Sprintf("amount has more than %d decimal places", v.scale))
	}
	return nil
}

// CheckBalance enforces Σ debit == Σ credit with exact decimal equality.
func (v *Validator) CheckBalance(entry JournalEntry) error {
	debit, credit := entry.Totals()
	if !debit.Equal(credit) {
		return &ValidationError{Rule: RuleBalanced, Debit: debit, Credit: credit, Detail: "entry does not balance"}
	}
	return nil
}

func fitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}
