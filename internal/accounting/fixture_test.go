package accounting_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/memstore"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

var (
	testScope = accounting.Scope{TenantID: 1, CompanyID: 7}
	clerk     = accounting.Actor{ID: 10, Roles: []string{"clerk"}}
	manager   = accounting.Actor{ID: 20, Roles: []string{"manager"}}
	director  = accounting.Actor{ID: 30, Roles: []string{"director"}}
	march1    = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	march20   = time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	svc      *accounting.Service
	clock    time.Time
	accounts map[string]int64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, workflows ...accounting.Workflow) *fixture {
	t.Helper()
	registry, err := accounting.NewWorkflowRegistry(workflows...)
	require.NoError(t, err)
	store := memstore.New()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		clock:    time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC),
		accounts: map[string]int64{},
	}
	f.svc = accounting.NewService(store.Ledger(), nil, accounting.ServiceConfig{
		Workflows: registry,
		Logger:    discardLogger(),
	})
	f.svc.WithNow(func() time.Time { return f.clock })
	for _, acc := range []struct {
		code string
		name string
		typ  accounting.AccountType
	}{
		{"1000", "Cash", accounting.AccountTypeAsset},
		{"1100", "Receivables", accounting.AccountTypeAsset},
		{"2000", "Payables", accounting.AccountTypeLiability},
		{"3000", "Owner Equity", accounting.AccountTypeEquity},
		{"4000", "Sales", accounting.AccountTypeRevenue},
		{"5000", "Rent Expense", accounting.AccountTypeExpense},
	} {
		f.account(acc.code, acc.name, acc.typ, nil)
	}
	return f
}

func (f *fixture) account(code, name string, typ accounting.AccountType, parent *int64) int64 {
	f.t.Helper()
	acc, err := f.svc.CreateAccount(f.ctx, testScope, accounting.CreateAccountInput{Code: code, Name: name, Type: typ, ParentID: parent}, clerk)
	require.NoError(f.t, err)
	f.accounts[code] = acc.ID
	return acc.ID
}

func (f *fixture) id(code string) int64 {
	f.t.Helper()
	id, ok := f.accounts[code]
	require.True(f.t, ok, "unknown account %s", code)
	return id
}

func (f *fixture) balance(code string) decimal.Decimal {
	f.t.Helper()
	accounts, err := f.svc.ListAccounts(f.ctx, testScope)
	require.NoError(f.t, err)
	for _, acc := range accounts {
		if acc.Code == code {
			return acc.Balance
		}
	}
	f.t.Fatalf("account %s not found", code)
	return decimal.Zero
}

func (f *fixture) requireBalance(code, want string) {
	f.t.Helper()
	got := f.balance(code)
	require.Truef(f.t, got.Equal(dec(want)), "account %s balance = %s, want %s", code, got, want)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) dr(code, amount string) accounting.LineInput {
	return accounting.LineInput{AccountID: f.id(code), Debit: dec(amount), Credit: decimal.Zero}
}

func (f *fixture) cr(code, amount string) accounting.LineInput {
	return accounting.LineInput{AccountID: f.id(code), Debit: decimal.Zero, Credit: dec(amount)}
}

func input(date time.Time, entryType string, lines ...accounting.LineInput) accounting.CreateEntryInput {
	return accounting.CreateEntryInput{Date: date, Memo: "test entry", EntryType: entryType, Lines: lines}
}

// postDirect creates and posts an entry of a type without workflow.
func (f *fixture) postDirect(date time.Time, lines ...accounting.LineInput) accounting.JournalEntry {
	f.t.Helper()
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(date, "GENERAL", lines...), clerk)
	require.NoError(f.t, err)
	posted, err := f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)
	require.NoError(f.t, err)
	return posted
}
