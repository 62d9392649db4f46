package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IntegrityChecker recomputes ledger state from its sources of truth.
type IntegrityChecker interface {
	ListScopes(ctx context.Context) ([]accounting.Scope, error)
	CheckIntegrity(ctx context.Context, scope accounting.Scope) (accounting.IntegrityReport, error)
	VerifyAudit(ctx context.Context, scope accounting.Scope) (int, error)
}

const integrityLockTTL = 30 * time.Minute

// IntegrityFinding describes one problem found by the sweep.
type IntegrityFinding struct {
	Scope  accounting.Scope
	Kind   string
	Detail string
}

// Finding kinds reported by the integrity sweep.
const (
	FindingUnbalanced = "unbalanced"
	FindingDrift      = "balance_drift"
	FindingAudit      = "audit_chain"
)

// IntegrityJob checks that stored balances, posted lines and the audit chain agree.
type IntegrityJob struct {
	Ledger  IntegrityChecker
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob constructs the job handler.
func NewIntegrityJob(ledger IntegrityChecker, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Ledger: ledger, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity sweep. Findings are logged and counted but do
// not fail the task since a retry cannot repair them.
func (j *IntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	var payload IntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	sweep := func(ctx context.Context) error {
		_, err := j.Sweep(ctx, payload)
		return err
	}
	var err error
	if j.Locker == nil {
		err = sweep(ctx)
	} else {
		err = j.Locker.WithLock(ctx, shared.IntegrityLockKey(), integrityLockTTL, sweep)
	}
	if errors.Is(err, shared.ErrLockHeld) {
		j.log().Info("integrity sweep already running")
		return tracker.End(nil)
	}
	return tracker.End(err)
}

// Sweep checks the scopes selected by payload and returns what it found.
func (j *IntegrityJob) Sweep(ctx context.Context, payload IntegrityPayload) ([]IntegrityFinding, error) {
	scopes := []accounting.Scope{{TenantID: payload.TenantID, CompanyID: payload.CompanyID}}
	if payload.TenantID <= 0 || payload.CompanyID <= 0 {
		var err error
		if scopes, err = j.Ledger.ListScopes(ctx); err != nil {
			return nil, err
		}
	}
	var findings []IntegrityFinding
	for _, scope := range scopes {
		found, err := j.checkScope(ctx, scope)
		if err != nil {
			return findings, fmt.Errorf("scope %d/%d: %w", scope.TenantID, scope.CompanyID, err)
		}
		findings = append(findings, found...)
	}
	for _, f := range findings {
		j.log().Error("ledger integrity finding",
			slog.Int64("tenant_id", f.Scope.TenantID),
			slog.Int64("company_id", f.Scope.CompanyID),
			slog.String("kind", f.Kind),
			slog.String("detail", f.Detail))
		j.Metrics.AddFindings(f.Kind, f.Scope.TenantID, f.Scope.CompanyID, 1)
	}
	j.log().Info("integrity sweep finished", slog.Int("scopes", len(scopes)), slog.Int("findings", len(findings)))
	return findings, nil
}

func (j *IntegrityJob) checkScope(ctx context.Context, scope accounting.Scope) ([]IntegrityFinding, error) {
	report, err := j.Ledger.CheckIntegrity(ctx, scope)
	if err != nil {
		return nil, err
	}
	var out []IntegrityFinding
	if !report.TrialBalance.Balanced() {
		out = append(out, IntegrityFinding{
			Scope:  scope,
			Kind:   FindingUnbalanced,
			Detail: fmt.Sprintf("debits %s credits %s", report.TrialBalance.TotalDebit, report.TrialBalance.TotalCredit),
		})
	}
	for _, d := range report.Drift {
		out = append(out, IntegrityFinding{
			Scope:  scope,
			Kind:   FindingDrift,
			Detail: fmt.Sprintf("account %s stored %s lines %s", d.Code, d.Stored, d.FromLines),
		})
	}
	idx, err := j.Ledger.VerifyAudit(ctx, scope)
	if err != nil {
		return nil, err
	}
	if idx >= 0 {
		out = append(out, IntegrityFinding{Scope: scope, Kind: FindingAudit, Detail: fmt.Sprintf("chain broken at event %d", idx)})
	}
	return out, nil
}

func (j *IntegrityJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
