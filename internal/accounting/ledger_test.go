package accounting_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

var feb10 = time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)

func (f *fixture) seedQuarter() {
	f.t.Helper()
	f.postDirect(feb10, f.dr("1000", "1000"), f.cr("3000", "1000"))
	f.postDirect(march1, f.dr("5000", "300"), f.cr("1000", "300"))
	f.postDirect(march20, f.dr("1000", "500"), f.cr("4000", "500"))
}

func TestTrialBalanceAsOf(t *testing.T) {
	f := newFixture(t)
	f.seedQuarter()

	tb, err := f.svc.TrialBalance(f.ctx, testScope, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.True(t, tb.Balanced())
	require.True(t, tb.TotalDebit.Equal(dec("1000")))
	require.Len(t, tb.Rows, 3)
	want := []struct {
		code          string
		debit, credit string
	}{
		{"1000", "700", "0"},
		{"3000", "0", "1000"},
		{"5000", "300", "0"},
	}
	for i, w := range want {
		row := tb.Rows[i]
		require.Equal(t, w.code, row.Code)
		require.Truef(t, row.Debit.Equal(dec(w.debit)), "%s debit %s", row.Code, row.Debit)
		require.Truef(t, row.Credit.Equal(dec(w.credit)), "%s credit %s", row.Code, row.Credit)
	}

	full, err := f.svc.TrialBalance(f.ctx, testScope, march20)
	require.NoError(t, err)
	require.Len(t, full.Rows, 4)
	require.True(t, full.TotalCredit.Equal(dec("1500")))
}

func TestTrialBalanceIgnoresDrafts(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "10"), f.cr("4000", "10")), clerk)
	require.NoError(t, err)

	tb, err := f.svc.TrialBalance(f.ctx, testScope, march20)
	require.NoError(t, err)
	require.Empty(t, tb.Rows)
	require.True(t, tb.TotalDebit.IsZero())
}

func TestBuildTrialBalanceDetectsMismatch(t *testing.T) {
	accounts := []accounting.Account{{ID: 1, Code: "1000"}, {ID: 2, Code: "4000"}}
	totals := []accounting.AccountTotals{
		{AccountID: 1, Debit: dec("10"), Credit: decimal.Zero},
		{AccountID: 2, Debit: decimal.Zero, Credit: dec("9")},
	}
	tb := accounting.BuildTrialBalance(march1, accounts, totals)
	require.False(t, tb.Balanced())
}

func TestGeneralLedgerRunningBalance(t *testing.T) {
	f := newFixture(t)
	f.seedQuarter()

	gl, err := f.svc.GeneralLedger(f.ctx, testScope, f.id("1000"), accounting.Range{
		From: march1,
		To:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.True(t, gl.Opening.Equal(dec("1000")))
	require.Len(t, gl.Lines, 2)
	require.True(t, gl.Lines[0].Credit.Equal(dec("300")))
	require.True(t, gl.Lines[0].RunningBalance.Equal(dec("700")))
	require.True(t, gl.Lines[1].Debit.Equal(dec("500")))
	require.True(t, gl.Lines[1].RunningBalance.Equal(dec("1200")))
	require.True(t, gl.TotalDebit.Equal(dec("500")))
	require.True(t, gl.TotalCredit.Equal(dec("300")))
	require.True(t, gl.Closing.Equal(dec("1200")))
	require.Equal(t, "test entry", gl.Lines[0].Memo)

	revenue, err := f.svc.GeneralLedger(f.ctx, testScope, f.id("4000"), accounting.Range{})
	require.NoError(t, err)
	require.True(t, revenue.Opening.IsZero())
	require.True(t, revenue.Closing.Equal(dec("500")))
}

func TestGeneralLedgerRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GeneralLedger(f.ctx, testScope, f.id("1000"), accounting.Range{From: march20, To: march1})
	require.ErrorIs(t, err, accounting.ErrValidation)

	_, err = f.svc.GeneralLedger(f.ctx, testScope, 4040, accounting.Range{})
	require.ErrorIs(t, err, accounting.ErrAccountNotFound)
}

func TestRollUpIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	fixed := f.account("1500", "Fixed Assets", accounting.AccountTypeAsset, nil)
	equipment := f.account("1510", "Equipment", accounting.AccountTypeAsset, &fixed)
	f.account("1511", "Computers", accounting.AccountTypeAsset, &equipment)
	f.postDirect(march1, f.dr("1511", "200"), f.cr("3000", "200"))
	f.postDirect(march1, f.dr("1510", "50"), f.cr("3000", "50"))

	for code, want := range map[string]string{"1500": "250", "1510": "250", "1511": "200"} {
		got, err := f.svc.RollUp(f.ctx, testScope, f.id(code))
		require.NoError(t, err)
		require.Truef(t, got.Equal(dec(want)), "roll-up %s = %s, want %s", code, got, want)
	}

	chart, err := f.svc.Chart(f.ctx, testScope)
	require.NoError(t, err)
	all, err := f.svc.RollUpAll(f.ctx, testScope)
	require.NoError(t, err)
	require.Len(t, all, chart.Len())
	for id, total := range all {
		acc, ok := chart.Account(id)
		require.True(t, ok)
		sum := acc.Balance
		for _, child := range chart.Children(id) {
			sum = sum.Add(all[child.ID])
		}
		require.Truef(t, total.Equal(sum), "account %s", acc.Code)
	}

	_, err = f.svc.RollUp(f.ctx, testScope, 777)
	require.ErrorIs(t, err, accounting.ErrAccountNotFound)
}

func TestCheckIntegrityReportsDrift(t *testing.T) {
	f := newFixture(t)
	f.postDirect(march1, f.dr("1000", "100"), f.cr("4000", "100"))

	report, err := f.svc.CheckIntegrity(f.ctx, testScope)
	require.NoError(t, err)
	require.True(t, report.OK())

	require.True(t, f.store.OverwriteBalance(testScope, f.id("1000"), dec("999")))
	report, err = f.svc.CheckIntegrity(f.ctx, testScope)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.True(t, report.TrialBalance.Balanced())
	require.Len(t, report.Drift, 1)
	require.Equal(t, "1000", report.Drift[0].Code)
	require.True(t, report.Drift[0].Stored.Equal(dec("999")))
	require.True(t, report.Drift[0].FromLines.Equal(dec("100")))
}

func TestListScopes(t *testing.T) {
	f := newFixture(t)
	scopes, err := f.svc.ListScopes(f.ctx)
	require.NoError(t, err)
	require.Equal(t, []accounting.Scope{testScope}, scopes)
}
