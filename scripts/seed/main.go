package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	scope := accounting.Scope{TenantID: envInt("SEED_TENANT", 1), CompanyID: envInt("SEED_COMPANY", 1)}

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.Postgres("odyssey-ledger-seed"))
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	ledger, err := app.NewLedger(cfg, pool, app.NewLogger(cfg), prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}

	fmt.Println("→ Seeding chart of accounts...")
	ids, err := seedAccounts(ctx, ledger.Accounting, scope)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}
	fmt.Println("→ Seeding periods...")
	if err := seedPeriods(ctx, pool, scope, time.Now().Year()); err != nil {
		log.Fatalf("seed periods: %v", err)
	}
	fmt.Println("→ Seeding account mappings...")
	if err := seedMappings(ctx, ledger, scope, ids); err != nil {
		log.Fatalf("seed mappings: %v", err)
	}
	fmt.Println("→ Seeding asset categories...")
	if err := seedCategories(ctx, ledger.Assets, scope, ids); err != nil {
		log.Fatalf("seed categories: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

type seedAccount struct {
	code    string
	name    string
	accType accounting.AccountType
	parent  string
}

var chart = []seedAccount{
	{"1000", "Assets", accounting.AccountTypeAsset, ""},
	{"1100", "Cash and Bank", accounting.AccountTypeAsset, "1000"},
	{"1110", "Cash on Hand", accounting.AccountTypeAsset, "1100"},
	{"1120", "Operating Bank Account", accounting.AccountTypeAsset, "1100"},
	{"1200", "Accounts Receivable", accounting.AccountTypeAsset, "1000"},
	{"1400", "Fixed Assets", accounting.AccountTypeAsset, "1000"},
	{"1410", "Office Equipment", accounting.AccountTypeAsset, "1400"},
	{"1420", "Vehicles", accounting.AccountTypeAsset, "1400"},
	{"1490", "Accumulated Depreciation", accounting.AccountTypeAsset, "1400"},
	{"2000", "Liabilities", accounting.AccountTypeLiability, ""},
	{"2110", "Accounts Payable", accounting.AccountTypeLiability, "2000"},
	{"2120", "Taxes Payable", accounting.AccountTypeLiability, "2000"},
	{"3000", "Equity", accounting.AccountTypeEquity, ""},
	{"3100", "Paid-in Capital", accounting.AccountTypeEquity, "3000"},
	{"3200", "Retained Earnings", accounting.AccountTypeEquity, "3000"},
	{"4000", "Revenue", accounting.AccountTypeRevenue, ""},
	{"4100", "Sales", accounting.AccountTypeRevenue, "4000"},
	{"4900", "Gain on Asset Disposal", accounting.AccountTypeRevenue, "4000"},
	{"5000", "Expenses", accounting.AccountTypeExpense, ""},
	{"5200", "Operating Expenses", accounting.AccountTypeExpense, "5000"},
	{"5250", "Depreciation Expense", accounting.AccountTypeExpense, "5200"},
	{"5900", "Loss on Asset Disposal", accounting.AccountTypeExpense, "5000"},
}

// seedAccounts creates missing accounts in order, parents first, and returns
// the id of every code.
func seedAccounts(ctx context.Context, svc *accounting.Service, scope accounting.Scope) (map[string]int64, error) {
	existing, err := svc.ListAccounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(existing))
	for _, a := range existing {
		ids[a.Code] = a.ID
	}
	actor := accounting.Actor{ID: jobs.SystemActorID}
	for _, a := range chart {
		if _, ok := ids[a.code]; ok {
			continue
		}
		in := accounting.CreateAccountInput{Code: a.code, Name: a.name, Type: a.accType}
		if a.parent != "" {
			parentID, ok := ids[a.parent]
			if !ok {
				return nil, fmt.Errorf("account %s: parent %s not seeded", a.code, a.parent)
			}
			in.ParentID = &parentID
		}
		created, err := svc.CreateAccount(ctx, scope, in, actor)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.code, err)
		}
		ids[a.code] = created.ID
	}
	return ids, nil
}

// =============================================================================
// PERIODS
// =============================================================================

func seedPeriods(ctx context.Context, pool *pgxpool.Pool, scope accounting.Scope, year int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for month := 1; month <= 12; month++ {
		startDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		endDate := startDate.AddDate(0, 1, -1)
		code := fmt.Sprintf("%d-%02d", year, month)

		_, err := tx.Exec(ctx, `
			INSERT INTO periods (tenant_id, company_id, code, start_date, end_date, status)
			VALUES ($1, $2, $3, $4, $5, 'OPEN')
			ON CONFLICT (tenant_id, company_id, code) DO NOTHING`,
			scope.TenantID, scope.CompanyID, code, startDate, endDate)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// =============================================================================
// MAPPINGS AND CATEGORIES
// =============================================================================

func seedMappings(ctx context.Context, ledger *app.Ledger, scope accounting.Scope, ids map[string]int64) error {
	mappings := map[accounting.Purpose]string{
		accounting.PurposeCash:               "1110",
		accounting.PurposeAccountsReceivable: "1200",
		accounting.PurposeAccountsPayable:    "2110",
		accounting.PurposeRetainedEarnings:   "3200",
		accounting.PurposeDisposalGain:       "4900",
		accounting.PurposeDisposalLoss:       "5900",
	}
	for purpose, code := range mappings {
		if err := ledger.Mappings.Set(ctx, scope, string(purpose), ids[code]); err != nil {
			return fmt.Errorf("mapping %s: %w", purpose, err)
		}
	}
	return nil
}

func seedCategories(ctx context.Context, svc *fixedassets.Service, scope accounting.Scope, ids map[string]int64) error {
	categories := []fixedassets.CategoryInput{
		{
			Code: "OFFICE", Name: "Office Equipment", UsefulLifeMonths: 48,
			Method: fixedassets.MethodStraightLine, SalvageRate: decimal.Zero,
			AssetAccountID: ids["1410"], ExpenseAccountID: ids["5250"], AccumulatedAccountID: ids["1490"],
		},
		{
			Code: "VEHICLE", Name: "Vehicles", UsefulLifeMonths: 96,
			Method: fixedassets.MethodDecliningBalance, DecliningMultiplier: decimal.NewFromInt(2),
			SalvageRate: decimal.RequireFromString("0.1"),
			AssetAccountID: ids["1420"], ExpenseAccountID: ids["5250"], AccumulatedAccountID: ids["1490"],
			DisposalGainAccountID: ids["4900"], DisposalLossAccountID: ids["5900"],
		},
	}
	for _, c := range categories {
		if _, err := svc.CreateCategory(ctx, scope, c); err != nil {
			if errors.Is(err, fixedassets.ErrDuplicateCode) {
				continue
			}
			return fmt.Errorf("category %s: %w", c.Code, err)
		}
	}
	return nil
}

func envInt(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
