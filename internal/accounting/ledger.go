package accounting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TrialBalanceRow nets one account's posted movement into a single column.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TrialBalance lists every account with posted movement as of a date.
type TrialBalance struct {
	AsOf        time.Time
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether the debit and credit columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// TrialBalance sums posted lines dated on or before asOf. The report is still
// returned alongside ErrTrialBalanceMismatch when the columns diverge.
func (s *Service) TrialBalance(ctx context.Context, scope Scope, asOf time.Time) (TrialBalance, error) {
	if err := requireScope(scope); err != nil {
		return TrialBalance{}, err
	}
	var (
		accounts []Account
		totals   []AccountTotals
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if accounts, err = tx.ListAccounts(ctx, scope); err != nil {
			return err
		}
		totals, err = tx.SumPostedByAccount(ctx, scope, asOf)
		return err
	})
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(asOf, accounts, totals)
	if !tb.Balanced() {
		s.metrics.mismatch()
		return tb, fmt.Errorf("%w: debit %s, credit %s", ErrTrialBalanceMismatch, tb.TotalDebit, tb.TotalCredit)
	}
	return tb, nil
}

// BuildTrialBalance buckets the net of each account's totals into the debit
// column when positive and the credit column otherwise. Rows are ordered by code.
func BuildTrialBalance(asOf time.Time, accounts []Account, totals []AccountTotals) TrialBalance {
	byID := make(map[int64]Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	tb := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, t := range totals {
		acc := byID[t.AccountID]
		row := TrialBalanceRow{
			AccountID: t.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      acc.Type,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		net := t.Debit.Sub(t.Credit)
		switch {
		case net.IsPositive():
			row.Debit = net
		case net.IsNegative():
			row.Credit = net.Neg()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	sort.Slice(tb.Rows, func(i, j int) bool {
		if tb.Rows[i].Code == tb.Rows[j].Code {
			return tb.Rows[i].AccountID < tb.Rows[j].AccountID
		}
		return tb.Rows[i].Code < tb.Rows[j].Code
	})
	return tb
}

// GeneralLedgerLine is one posted movement with the balance after it.
type GeneralLedgerLine struct {
	EntryID        int64
	Number         int64
	Date           time.Time
	Memo           string
	LineNo         int
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

// GeneralLedger is an account statement over a date range.
type GeneralLedger struct {
	Account     Account
	Range       Range
	Opening     decimal.Decimal
	Lines       []GeneralLedgerLine
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Closing     decimal.Decimal
}

// GeneralLedger lists posted lines of accountID within rng. Balances are
// signed to the account's normal side.
func (s *Service) GeneralLedger(ctx context.Context, scope Scope, accountID int64, rng Range) (GeneralLedger, error) {
	if err := requireScope(scope); err != nil {
		return GeneralLedger{}, err
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return GeneralLedger{}, fmt.Errorf("%w: range ends before it starts", ErrValidation)
	}
	var (
		acc     Account
		opening AccountTotals
		lines   []PostedLine
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if acc, err = tx.GetAccount(ctx, scope, accountID); err != nil {
			return err
		}
		if !rng.From.IsZero() {
			if opening, err = tx.SumPostedBefore(ctx, scope, accountID, rng.From); err != nil {
				return err
			}
		}
		lines, err = tx.ListPostedLines(ctx, scope, accountID, rng)
		return err
	})
	if err != nil {
		return GeneralLedger{}, err
	}
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.LineNo < b.LineNo
	})

	gl := GeneralLedger{
		Account:     acc,
		Range:       rng,
		Opening:     acc.Type.Signed(opening.Debit, opening.Credit),
		Lines:       make([]GeneralLedgerLine, 0, len(lines)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	running := gl.Opening
	for _, line := range lines {
		running = running.Add(acc.Type.Signed(line.Debit, line.Credit))
		gl.TotalDebit = gl.TotalDebit.Add(line.Debit)
		gl.TotalCredit = gl.TotalCredit.Add(line.Credit)
		gl.Lines = append(gl.Lines, GeneralLedgerLine{
			EntryID:        line.EntryID,
			Number:         line.EntryNumber,
			Date:           line.Date,
			Memo:           line.Memo,
			LineNo:         line.LineNo,
			Debit:          line.Debit,
			Credit:         line.Credit,
			RunningBalance: running,
		})
	}
	gl.Closing = running
	return gl, nil
}

// RollUp returns the balance of accountID plus that of every descendant.
func (s *Service) RollUp(ctx context.Context, scope Scope, accountID int64) (decimal.Decimal, error) {
	chart, err := s.Chart(ctx, scope)
	if err != nil {
		return decimal.Zero, err
	}
	total, ok := chart.RollUp(accountID)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	return total, nil
}

// RollUpAll returns the roll-up of every account in the chart.
func (s *Service) RollUpAll(ctx context.Context, scope Scope) (map[int64]decimal.Decimal, error) {
	chart, err := s.Chart(ctx, scope)
	if err != nil {
		return nil, err
	}
	return chart.RollUpAll(), nil
}

// BalanceDrift is an account whose stored balance disagrees with its posted lines.
type BalanceDrift struct {
	AccountID int64
	Code      string
	Stored    decimal.Decimal
	FromLines decimal.Decimal
}

// IntegrityReport summarises a full ledger check for one scope.
type IntegrityReport struct {
	Scope        Scope
	TrialBalance TrialBalance
	Drift        []BalanceDrift
}

// OK reports whether no problem was found.
func (r IntegrityReport) OK() bool {
	return r.TrialBalance.Balanced() && len(r.Drift) == 0
}

// CheckIntegrity recomputes every account balance from posted lines and
// compares it with the stored running balance.
func (s *Service) CheckIntegrity(ctx context.Context, scope Scope) (IntegrityReport, error) {
	if err := requireScope(scope); err != nil {
		return IntegrityReport{}, err
	}
	var (
		accounts []Account
		totals   []AccountTotals
	)
	asOf := time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if accounts, err = tx.ListAccounts(ctx, scope); err != nil {
			return err
		}
		totals, err = tx.SumPostedByAccount(ctx, scope, asOf)
		return err
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{Scope: scope, TrialBalance: BuildTrialBalance(asOf, accounts, totals)}
	if !report.TrialBalance.Balanced() {
		s.metrics.mismatch()
	}
	byID := make(map[int64]AccountTotals, len(totals))
	for _, t := range totals {
		byID[t.AccountID] = t
	}
	for _, acc := range accounts {
		t := byID[acc.ID]
		fromLines := acc.Type.Signed(t.Debit, t.Credit)
		if !fromLines.Equal(acc.Balance) {
			report.Drift = append(report.Drift, BalanceDrift{
				AccountID: acc.ID,
				Code:      acc.Code,
				Stored:    acc.Balance,
				FromLines: fromLines,
			})
		}
	}
	return report, nil
}

// ListScopes returns every tenant and company holding ledger data.
func (s *Service) ListScopes(ctx context.Context) ([]Scope, error) {
	var scopes []Scope
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		scopes, err = tx.ListScopes(ctx)
		return err
	})
	return scopes, err
}
