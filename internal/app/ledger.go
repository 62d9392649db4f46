package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Entry types routed through approval workflows. Reversals inherit the type
// of the entry they reverse.
const (
	EntryTypeManual     = "MANUAL"
	EntryTypeAdjustment = "ADJUSTMENT"
)

// Workflows builds the approval registry from configuration. Manual entries
// need a manager, plus a director from ApprovalDirectorFrom; adjustments that
// touch equity need a controller.
func Workflows(cfg *Config) (*accounting.WorkflowRegistry, error) {
	autoBelow, err := decimal.NewFromString(cfg.ApprovalAutoBelow)
	if err != nil {
		return nil, fmt.Errorf("approval auto threshold: %w", err)
	}
	directorFrom, err := decimal.NewFromString(cfg.ApprovalDirectorFrom)
	if err != nil {
		return nil, fmt.Errorf("approval director threshold: %w", err)
	}
	opts := []accounting.WorkflowOption{accounting.WithEscalateAfter(cfg.ApprovalEscalateAfter)}
	if cfg.ApprovalSelfPermitted {
		opts = append(opts, accounting.WithSelfApproval())
	}

	manual, err := accounting.NewWorkflow(EntryTypeManual, []accounting.Step{
		{Role: "manager", Condition: accounting.Always(), EscalationRole: "controller"},
		{Role: "director", Condition: accounting.AmountAtLeast(directorFrom), EscalationRole: "cfo"},
	}, append(opts, accounting.WithAutoApproveBelow(autoBelow))...)
	if err != nil {
		return nil, err
	}
	adjustment, err := accounting.NewWorkflow(EntryTypeAdjustment, []accounting.Step{
		{Role: "controller", Condition: accounting.TouchesAccountType(accounting.AccountTypeEquity), EscalationRole: "cfo"},
	}, opts...)
	if err != nil {
		return nil, err
	}
	return accounting.NewWorkflowRegistry(manual, adjustment)
}

// Ledger bundles the services shared by the server, worker and CLI.
type Ledger struct {
	Accounting *accounting.Service
	Assets     *fixedassets.Service
	Mappings   *mappings.Service
	Periods    *periods.Service
}

// NewLedger wires the PostgreSQL repositories into the ledger services.
func NewLedger(cfg *Config, pool *pgxpool.Pool, logger *slog.Logger, registerer prometheus.Registerer) (*Ledger, error) {
	workflows, err := Workflows(cfg)
	if err != nil {
		return nil, err
	}
	txCfg := db.DefaultTxConfig
	if cfg.PGLockTimeout > 0 {
		txCfg.LockTimeout = cfg.PGLockTimeout
	}
	periodService := periods.NewService(periods.NewRepository(pool))
	scale := cfg.CurrencyScale
	ledger := accounting.NewService(accounting.NewRepository(pool, txCfg), periodService, accounting.ServiceConfig{
		Scale:      &scale,
		MaxRetries: cfg.PostingMaxRetries,
		Workflows:  workflows,
		Logger:     logger.With(slog.String("module", "accounting")),
		Metrics:    accounting.NewMetrics(registerer),
	})
	assets := fixedassets.NewService(fixedassets.NewRepository(pool, txCfg), ledger, fixedassets.Config{
		MaxRetries:  cfg.PostingMaxRetries,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger.With(slog.String("module", "fixedassets")),
	})
	return &Ledger{
		Accounting: ledger,
		Assets:     assets,
		Mappings:   mappings.NewService(mappings.NewRepository(pool)),
		Periods:    periodService,
	}, nil
}
