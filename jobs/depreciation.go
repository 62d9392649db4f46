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
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DepreciationRunner depreciates the due assets of one scope.
type DepreciationRunner interface {
	RunDue(ctx context.Context, scope accounting.Scope, period fixedassets.Period, actor accounting.Actor) (fixedassets.RunSummary, error)
}

// ScopeLister enumerates every company holding ledger data.
type ScopeLister interface {
	ListScopes(ctx context.Context) ([]accounting.Scope, error)
}

// Locker serialises batches across worker processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

const depreciationLockTTL = 15 * time.Minute

// DepreciationJob runs monthly depreciation batches.
type DepreciationJob struct {
	Assets  DepreciationRunner
	Scopes  ScopeLister
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDepreciationJob constructs the job handler.
func NewDepreciationJob(assets DepreciationRunner, scopes ScopeLister, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepreciationJob {
	return &DepreciationJob{
		Assets:  assets,
		Scopes:  scopes,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes a depreciation batch task.
func (j *DepreciationJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Assets == nil || j.Scopes == nil {
		return errors.New("depreciation run: dependencies not configured")
	}
	var payload DepreciationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("depreciation run: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	period, err := j.resolvePeriod(payload.Period)
	if err != nil {
		return fmt.Errorf("depreciation run: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDepreciationRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	scopes, err := j.resolveScopes(ctx, payload)
	if err != nil {
		resultErr = err
		j.log().Error("resolve scopes", slog.Any("error", err))
		return resultErr
	}
	actor := accounting.Actor{ID: payload.ActorID}
	if actor.ID == 0 {
		actor.ID = SystemActorID
	}

	var failed int
	for _, scope := range scopes {
		summary, err := j.runScope(ctx, scope, period, actor)
		if errors.Is(err, shared.ErrLockHeld) {
			j.log().Info("depreciation batch already running", slog.Int64("tenant_id", scope.TenantID),
				slog.Int64("company_id", scope.CompanyID), slog.String("period", period.String()))
			continue
		}
		if err != nil {
			resultErr = err
			j.log().Error("depreciation batch", slog.Int64("company_id", scope.CompanyID), slog.Any("error", err))
			return resultErr
		}
		j.Metrics.AddDepreciation("posted", summary.Posted)
		j.Metrics.AddDepreciation("skipped", summary.Skipped)
		j.Metrics.AddDepreciation("failed", summary.Failed)
		for _, assetErr := range summary.Errors {
			j.log().Warn("asset not depreciated", slog.Int64("company_id", scope.CompanyID), slog.Any("error", assetErr))
		}
		failed += summary.Failed
	}
	if failed > 0 {
		// Posted and skipped assets are idempotent so a retry only redoes failures.
		resultErr = fmt.Errorf("depreciation run: %d assets failed for %s", failed, period)
	}
	return resultErr
}

func (j *DepreciationJob) runScope(ctx context.Context, scope accounting.Scope, period fixedassets.Period, actor accounting.Actor) (fixedassets.RunSummary, error) {
	var summary fixedassets.RunSummary
	run := func(ctx context.Context) error {
		var err error
		summary, err = j.Assets.RunDue(ctx, scope, period, actor)
		return err
	}
	if j.Locker == nil {
		return summary, run(ctx)
	}
	key := shared.DepreciationLockKey(scope.TenantID, scope.CompanyID, period.String())
	return summary, j.Locker.WithLock(ctx, key, depreciationLockTTL, run)
}

func (j *DepreciationJob) resolvePeriod(raw string) (fixedassets.Period, error) {
	if raw == "" {
		return fixedassets.PeriodOf(j.now()).AddMonths(-1), nil
	}
	return fixedassets.ParsePeriod(raw)
}

func (j *DepreciationJob) resolveScopes(ctx context.Context, payload DepreciationPayload) ([]accounting.Scope, error) {
	if payload.TenantID > 0 && payload.CompanyID > 0 {
		return []accounting.Scope{{TenantID: payload.TenantID, CompanyID: payload.CompanyID}}, nil
	}
	return j.Scopes.ListScopes(ctx)
}

func (j *DepreciationJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *DepreciationJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
