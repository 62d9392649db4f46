package fixedassets_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-ledger/internal/memstore"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

var (
	scope    = accounting.Scope{TenantID: 3, CompanyID: 9}
	operator = accounting.Actor{ID: 42, Roles: []string{"accountant"}}
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	ledger   *accounting.Service
	svc      *fixedassets.Service
	accounts map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	ledger := accounting.NewService(store.Ledger(), nil, accounting.ServiceConfig{Logger: logger})
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		ledger:   ledger,
		svc:      fixedassets.NewService(store.Assets(), ledger, fixedassets.Config{Logger: logger, Concurrency: 2}),
		accounts: map[string]int64{},
	}
	clock := func() time.Time { return time.Date(2024, time.June, 30, 12, 0, 0, 0, time.UTC) }
	ledger.WithNow(clock)
	f.svc.WithNow(clock)
	for _, acc := range []struct {
		code string
		typ  accounting.AccountType
	}{
		{"1000", accounting.AccountTypeAsset},
		{"1500", accounting.AccountTypeAsset},
		{"1590", accounting.AccountTypeAsset},
		{"3000", accounting.AccountTypeEquity},
		{"4900", accounting.AccountTypeRevenue},
		{"6100", accounting.AccountTypeExpense},
		{"6900", accounting.AccountTypeExpense},
	} {
		created, err := ledger.CreateAccount(f.ctx, scope, accounting.CreateAccountInput{Code: acc.code, Name: "Account " + acc.code, Type: acc.typ}, operator)
		require.NoError(t, err)
		f.accounts[acc.code] = created.ID
	}
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func period(s string) fixedassets.Period {
	p, err := fixedassets.ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (f *fixture) category(code string, method fixedassets.Method, life int) fixedassets.Category {
	f.t.Helper()
	c, err := f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code:                  code,
		Name:                  "Category " + code,
		UsefulLifeMonths:      life,
		Method:                method,
		AssetAccountID:        f.accounts["1500"],
		ExpenseAccountID:      f.accounts["6100"],
		AccumulatedAccountID:  f.accounts["1590"],
		DisposalGainAccountID: f.accounts["4900"],
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) asset(categoryID int64, code, cost string, start string) fixedassets.Asset {
	f.t.Helper()
	p := period(start)
	zero := decimal.Zero
	a, err := f.svc.RegisterAsset(f.ctx, scope, fixedassets.RegisterAssetInput{
		CategoryID:        categoryID,
		Code:              code,
		Name:              "Asset " + code,
		Cost:              dec(cost),
		Currency:          "usd",
		AcquisitionDate:   time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC),
		DepreciationStart: &p,
		Salvage:           &zero,
	})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) balance(code string) decimal.Decimal {
	f.t.Helper()
	accounts, err := f.ledger.ListAccounts(f.ctx, scope)
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

func TestStraightLineDepreciatesToCost(t *testing.T) {
	f := newFixture(t)
	cat := f.category("IT", fixedassets.MethodStraightLine, 12)
	a := f.asset(cat.ID, "LAPTOP-1", "12000", "2024-01")
	require.Equal(t, "USD", a.Currency)

	p := a.DepreciationStart
	for i := 0; i < 12; i++ {
		dep, err := f.svc.RunPeriod(f.ctx, scope, a.ID, p, operator)
		require.NoError(t, err)
		require.Truef(t, dep.Amount.Equal(dec("1000")), "period %s amount %s", p, dep.Amount)
		require.NotNil(t, dep.EntryID)
		p = p.Next()
	}

	got, err := f.svc.GetAsset(f.ctx, scope, a.ID)
	require.NoError(t, err)
	require.True(t, got.Accumulated.Equal(dec("12000")))
	require.Equal(t, fixedassets.AssetStatusFullyDepreciated, got.Status)
	require.Equal(t, period("2024-12"), *got.LastPeriod)
	f.requireBalance("6100", "12000")
	f.requireBalance("1590", "-12000")

	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, p, operator)
	require.ErrorIs(t, err, fixedassets.ErrFullyDepreciated)
	require.ErrorIs(t, err, fixedassets.ErrDepreciation)

	history, err := f.svc.History(f.ctx, scope, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 12)
	require.Equal(t, period("2024-01"), history[0].Period)
	require.True(t, history[11].Accumulated.Equal(dec("12000")))
}

func TestDepreciationEntryIsPostedAtPeriodEnd(t *testing.T) {
	f := newFixture(t)
	cat := f.category("IT", fixedassets.MethodStraightLine, 12)
	a := f.asset(cat.ID, "LAPTOP-1", "1200", "2024-02")

	dep, err := f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-02"), operator)
	require.NoError(t, err)

	entry, err := f.ledger.GetEntry(f.ctx, scope, *dep.EntryID)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, entry.Status)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), entry.Date)
	require.Equal(t, "DEPRECIATION", entry.EntryType)
	require.Equal(t, "fixedassets", entry.SourceModule)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, f.accounts["6100"], entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(dec("100")))
	require.Equal(t, f.accounts["1590"], entry.Lines[1].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec("100")))
}

func TestRunPeriodCheckOrder(t *testing.T) {
	f := newFixture(t)
	cat := f.category("IT", fixedassets.MethodStraightLine, 12)
	a := f.asset(cat.ID, "LAPTOP-1", "1200", "2024-03")

	_, err := f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-02"), operator)
	require.ErrorIs(t, err, fixedassets.ErrPeriodBeforeStart)

	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-04"), operator)
	require.ErrorIs(t, err, fixedassets.ErrPeriodOutOfSequence)

	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-03"), operator)
	require.NoError(t, err)
	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-03"), operator)
	require.ErrorIs(t, err, fixedassets.ErrAlreadyDepreciated)

	_, err = f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  a.ID,
		Date:     time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Accounts: accounting.PurposeAccounts{accounting.PurposeDisposalLoss: f.accounts["6900"]},
	}, operator)
	require.NoError(t, err)

	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-03"), operator)
	require.ErrorIs(t, err, fixedassets.ErrAlreadyDepreciated)
	_, err = f.svc.RunPeriod(f.ctx, scope, a.ID, period("2024-04"), operator)
	require.ErrorIs(t, err, fixedassets.ErrAssetDisposed)

	_, err = f.svc.RunPeriod(f.ctx, scope, 999, period("2024-04"), operator)
	require.ErrorIs(t, err, fixedassets.ErrAssetNotFound)
	require.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestDisposeRecognisesGain(t *testing.T) {
	f := newFixture(t)
	cat := f.category("VEH", fixedassets.MethodStraightLine, 10)
	a := f.asset(cat.ID, "VAN-1", "10000", "2024-01")
	acquisition, err := f.ledger.CreateEntry(f.ctx, scope, accounting.CreateEntryInput{
		Date:      time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC),
		Memo:      "buy van",
		EntryType: "GENERAL",
		Lines: []accounting.LineInput{
			{AccountID: f.accounts["1500"], Debit: dec("10000"), Credit: decimal.Zero},
			{AccountID: f.accounts["3000"], Debit: decimal.Zero, Credit: dec("10000")},
		},
	}, operator)
	require.NoError(t, err)
	_, err = f.ledger.PostEntry(f.ctx, scope, acquisition.ID, operator)
	require.NoError(t, err)

	p := a.DepreciationStart
	for i := 0; i < 8; i++ {
		_, err := f.svc.RunPeriod(f.ctx, scope, a.ID, p, operator)
		require.NoError(t, err)
		p = p.Next()
	}

	disposal, err := f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  a.ID,
		Date:     time.Date(2024, time.September, 5, 0, 0, 0, 0, time.UTC),
		Proceeds: dec("3000"),
		Accounts: accounting.PurposeAccounts{accounting.PurposeCash: f.accounts["1000"]},
	}, operator)
	require.NoError(t, err)

	require.True(t, disposal.Gain.Equal(dec("1000")))
	require.Equal(t, fixedassets.AssetStatusDisposed, disposal.Asset.Status)
	require.Equal(t, accounting.EntryStatusPosted, disposal.Entry.Status)
	require.Len(t, disposal.Entry.Lines, 4)
	gainLine := disposal.Entry.Lines[3]
	require.Equal(t, f.accounts["4900"], gainLine.AccountID)
	require.True(t, gainLine.Credit.Equal(dec("1000")))

	f.requireBalance("4900", "1000")
	f.requireBalance("1500", "0")
	f.requireBalance("1590", "0")
	f.requireBalance("1000", "3000")
	f.requireBalance("6100", "8000")

	_, err = f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{AssetID: a.ID, Proceeds: dec("1")}, operator)
	require.ErrorIs(t, err, fixedassets.ErrAlreadyDisposed)

	report, err := f.ledger.CheckIntegrity(f.ctx, scope)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestDisposeLossFallsBackToPurposeMapping(t *testing.T) {
	f := newFixture(t)
	cat := f.category("VEH", fixedassets.MethodStraightLine, 10)
	a := f.asset(cat.ID, "VAN-2", "10000", "2024-01")

	_, err := f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{AssetID: a.ID, Proceeds: dec("4000")}, operator)
	require.ErrorIs(t, err, accounting.ErrMappingNotFound)

	disposal, err := f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  a.ID,
		Proceeds: dec("4000"),
		Accounts: accounting.PurposeAccounts{
			accounting.PurposeCash:         f.accounts["1000"],
			accounting.PurposeDisposalLoss: f.accounts["6900"],
		},
	}, operator)
	require.NoError(t, err)
	require.True(t, disposal.Gain.Equal(dec("-6000")))
	require.Equal(t, time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), disposal.Entry.Date)
	f.requireBalance("6900", "6000")

	_, err = f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{AssetID: a.ID, Proceeds: dec("-1")}, operator)
	require.ErrorIs(t, err, fixedassets.ErrInvalidAsset)
}

func TestDisposeRejectsDatesBeforeRecordedHistory(t *testing.T) {
	f := newFixture(t)
	cat := f.category("IT", fixedassets.MethodStraightLine, 12)
	cash := accounting.PurposeAccounts{
		accounting.PurposeCash:         f.accounts["1000"],
		accounting.PurposeDisposalLoss: f.accounts["6900"],
	}

	a := f.asset(cat.ID, "LAPTOP-1", "12000", "2024-01")
	p := a.DepreciationStart
	for i := 0; i < 6; i++ {
		_, err := f.svc.RunPeriod(f.ctx, scope, a.ID, p, operator)
		require.NoError(t, err)
		p = p.Next()
	}

	for _, date := range []time.Time{
		time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.June, 29, 0, 0, 0, 0, time.UTC),
	} {
		_, err := f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{AssetID: a.ID, Date: date, Accounts: cash}, operator)
		require.ErrorIs(t, err, fixedassets.ErrDisposalBeforeDepreciation)
		require.ErrorIs(t, err, fixedassets.ErrDepreciation)
	}
	got, err := f.svc.GetAsset(f.ctx, scope, a.ID)
	require.NoError(t, err)
	require.NotEqual(t, fixedassets.AssetStatusDisposed, got.Status)
	f.requireBalance("6900", "0")

	disposal, err := f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  a.ID,
		Date:     time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		Proceeds: dec("6000"),
		Accounts: cash,
	}, operator)
	require.NoError(t, err)
	require.True(t, disposal.Gain.IsZero())

	late := f.asset(cat.ID, "LAPTOP-2", "1200", "2024-05")
	_, err = f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  late.ID,
		Date:     time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		Accounts: cash,
	}, operator)
	require.ErrorIs(t, err, fixedassets.ErrDisposalBeforeDepreciation)

	_, err = f.svc.Dispose(f.ctx, scope, fixedassets.DisposeInput{
		AssetID:  late.ID,
		Date:     time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Accounts: cash,
	}, operator)
	require.NoError(t, err)
}

func TestRunDueCountsOutcomes(t *testing.T) {
	f := newFixture(t)
	cat := f.category("IT", fixedassets.MethodStraightLine, 12)
	done := f.asset(cat.ID, "A-DONE", "1200", "2024-01")
	f.asset(cat.ID, "B-LATER", "1200", "2024-03")
	fresh := f.asset(cat.ID, "C-FRESH", "1200", "2024-01")
	f.asset(cat.ID, "D-BEHIND", "1200", "2023-12")

	_, err := f.svc.RunPeriod(f.ctx, scope, done.ID, period("2024-01"), operator)
	require.NoError(t, err)

	summary, err := f.svc.RunDue(f.ctx, scope, period("2024-01"), operator)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Posted)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	require.ErrorIs(t, summary.Errors[0], fixedassets.ErrPeriodOutOfSequence)

	history, err := f.svc.History(f.ctx, scope, fresh.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	again, err := f.svc.RunDue(f.ctx, scope, period("2024-01"), operator)
	require.NoError(t, err)
	require.Zero(t, again.Posted)
	require.Equal(t, 3, again.Skipped)
}

func TestRegisterAssetDefaultsFromCategory(t *testing.T) {
	f := newFixture(t)
	cat, err := f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code:                 "FURN",
		Name:                 "Furniture",
		UsefulLifeMonths:     60,
		SalvageRate:          dec("0.1"),
		AssetAccountID:       f.accounts["1500"],
		ExpenseAccountID:     f.accounts["6100"],
		AccumulatedAccountID: f.accounts["1590"],
	})
	require.NoError(t, err)
	require.Equal(t, fixedassets.MethodStraightLine, cat.Method)

	a, err := f.svc.RegisterAsset(f.ctx, scope, fixedassets.RegisterAssetInput{
		CategoryID:      cat.ID,
		Code:            "DESK-1",
		Name:            "Desk",
		Cost:            dec("999.99"),
		AcquisitionDate: time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, 60, a.UsefulLifeMonths)
	require.True(t, a.Salvage.Equal(dec("100")))
	require.Equal(t, period("2024-05"), a.DepreciationStart)
	require.Equal(t, fixedassets.AssetStatusActive, a.Status)

	_, err = f.svc.RegisterAsset(f.ctx, scope, fixedassets.RegisterAssetInput{
		CategoryID: cat.ID, Code: "DESK-1", Name: "Desk", Cost: dec("10"),
		AcquisitionDate: time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, fixedassets.ErrDuplicateCode)

	early := period("2024-04")
	for _, in := range []fixedassets.RegisterAssetInput{
		{CategoryID: cat.ID, Code: "X1", Name: "Zero", Cost: decimal.Zero, AcquisitionDate: time.Now()},
		{CategoryID: cat.ID, Code: "X2", Name: "Fractional", Cost: dec("1.001"), AcquisitionDate: time.Now()},
		{CategoryID: cat.ID, Code: "X3", Name: "No date", Cost: dec("10")},
		{CategoryID: cat.ID, Code: "X4", Name: "Early", Cost: dec("10"), AcquisitionDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), DepreciationStart: &early},
	} {
		_, err := f.svc.RegisterAsset(f.ctx, scope, in)
		require.ErrorIs(t, err, fixedassets.ErrInvalidAsset, in.Name)
	}

	_, err = f.svc.RegisterAsset(f.ctx, scope, fixedassets.RegisterAssetInput{CategoryID: 404, Code: "Y", Name: "Y", Cost: dec("1"), AcquisitionDate: time.Now()})
	require.ErrorIs(t, err, fixedassets.ErrCategoryNotFound)
}

func TestCreateCategoryValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code: "BAD", Name: "Bad", UsefulLifeMonths: 12,
		AssetAccountID: f.accounts["1500"], ExpenseAccountID: f.accounts["6100"], AccumulatedAccountID: 8080,
	})
	require.ErrorIs(t, err, accounting.ErrAccountNotFound)

	_, err = f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code: "BAD", Name: "Bad", UsefulLifeMonths: 12, SalvageRate: dec("1"),
		AssetAccountID: f.accounts["1500"], ExpenseAccountID: f.accounts["6100"], AccumulatedAccountID: f.accounts["1590"],
	})
	require.ErrorIs(t, err, fixedassets.ErrInvalidAsset)

	_, err = f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code: "BAD", Name: "Bad", UsefulLifeMonths: 12, Method: "UNITS_OF_PRODUCTION",
		AssetAccountID: f.accounts["1500"], ExpenseAccountID: f.accounts["6100"], AccumulatedAccountID: f.accounts["1590"],
	})
	require.ErrorIs(t, err, fixedassets.ErrInvalidAsset)

	f.category("IT", fixedassets.MethodStraightLine, 36)
	_, err = f.svc.CreateCategory(f.ctx, scope, fixedassets.CategoryInput{
		Code: "IT", Name: "Again", UsefulLifeMonths: 12,
		AssetAccountID: f.accounts["1500"], ExpenseAccountID: f.accounts["6100"], AccumulatedAccountID: f.accounts["1590"],
	})
	require.ErrorIs(t, err, fixedassets.ErrDuplicateCode)

	categories, err := f.svc.ListCategories(f.ctx, scope)
	require.NoError(t, err)
	require.Len(t, categories, 1)
}
