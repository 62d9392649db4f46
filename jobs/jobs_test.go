package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	scopeA = accounting.Scope{TenantID: 1, CompanyID: 10}
	scopeB = accounting.Scope{TenantID: 1, CompanyID: 20}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []accounting.Scope
	periods []fixedassets.Period
	actors  []accounting.Actor
	summary fixedassets.RunSummary
	err     error
}

func (f *fakeRunner) RunDue(_ context.Context, scope accounting.Scope, period fixedassets.Period, actor accounting.Actor) (fixedassets.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scope)
	f.periods = append(f.periods, period)
	f.actors = append(f.actors, actor)
	s := f.summary
	s.Period = period
	return s, f.err
}

type fakeScopes []accounting.Scope

func (f fakeScopes) ListScopes(context.Context) ([]accounting.Scope, error) { return f, nil }

func newLocker(t *testing.T) (*shared.Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewLocker(client), mr
}

func depreciationTask(t *testing.T, payload DepreciationPayload) *asynq.Task {
	t.Helper()
	task, err := NewDepreciationRunTask(payload)
	require.NoError(t, err)
	return task
}

func TestDepreciationJobDefaultsToPreviousMonthForAllScopes(t *testing.T) {
	runner := &fakeRunner{summary: fixedassets.RunSummary{Posted: 2, Skipped: 1}}
	job := NewDepreciationJob(runner, fakeScopes{scopeA, scopeB}, nil, quietLogger(), nil)
	job.clock = func() time.Time { return time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Handle(context.Background(), depreciationTask(t, DepreciationPayload{})))

	require.Equal(t, []accounting.Scope{scopeA, scopeB}, runner.calls)
	want, err := fixedassets.ParsePeriod("2024-02")
	require.NoError(t, err)
	require.Equal(t, []fixedassets.Period{want, want}, runner.periods)
	require.Equal(t, SystemActorID, runner.actors[0].ID)
}

func TestDepreciationJobSingleScopeAndExplicitPeriod(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDepreciationJob(runner, fakeScopes{scopeA, scopeB}, nil, quietLogger(), nil)

	task := depreciationTask(t, DepreciationPayload{TenantID: 1, CompanyID: 20, Period: "2023-11", ActorID: 7})
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, []accounting.Scope{scopeB}, runner.calls)
	require.Equal(t, "2023-11", runner.periods[0].String())
	require.Equal(t, int64(7), runner.actors[0].ID)
}

func TestDepreciationJobRejectsBadPayload(t *testing.T) {
	job := NewDepreciationJob(&fakeRunner{}, fakeScopes{scopeA}, nil, quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), depreciationTask(t, DepreciationPayload{Period: "2024-13"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDepreciationJobFailsWhenAssetsFail(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	runner := &fakeRunner{summary: fixedassets.RunSummary{Posted: 1, Failed: 1, Errors: []error{errors.New("boom")}}}
	job := NewDepreciationJob(runner, fakeScopes{scopeA}, nil, quietLogger(), metrics)

	err := job.Handle(context.Background(), depreciationTask(t, DepreciationPayload{Period: "2024-01"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 assets failed")
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestDepreciationJobSkipsScopeWhileLocked(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()
	held, err := locker.Acquire(ctx, shared.DepreciationLockKey(1, 10, "2024-01"), time.Minute)
	require.NoError(t, err)

	runner := &fakeRunner{}
	job := NewDepreciationJob(runner, fakeScopes{scopeA, scopeB}, locker, quietLogger(), nil)
	require.NoError(t, job.Handle(ctx, depreciationTask(t, DepreciationPayload{Period: "2024-01"})))
	require.Equal(t, []accounting.Scope{scopeB}, runner.calls)

	require.NoError(t, held.Release(ctx))
	require.NoError(t, job.Handle(ctx, depreciationTask(t, DepreciationPayload{Period: "2024-01"})))
	require.Equal(t, []accounting.Scope{scopeB, scopeA, scopeB}, runner.calls)
}

type fakeEscalator struct {
	at    time.Time
	count int
	err   error
}

func (f *fakeEscalator) EscalateOverdue(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return f.count, f.err
}

func TestEscalationJobUsesClock(t *testing.T) {
	now := time.Date(2024, time.May, 5, 9, 0, 0, 0, time.UTC)
	esc := &fakeEscalator{count: 3}
	job := NewEscalationJob(esc, quietLogger(), nil)
	job.clock = func() time.Time { return now }

	require.NoError(t, job.Handle(context.Background(), NewApprovalsEscalateTask()))
	require.Equal(t, now, esc.at)

	esc.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewApprovalsEscalateTask()))
}

type fakeLedger struct {
	scopes  []accounting.Scope
	reports map[accounting.Scope]accounting.IntegrityReport
	broken  map[accounting.Scope]int
	checked []accounting.Scope
}

func (f *fakeLedger) ListScopes(context.Context) ([]accounting.Scope, error) { return f.scopes, nil }

func (f *fakeLedger) CheckIntegrity(_ context.Context, scope accounting.Scope) (accounting.IntegrityReport, error) {
	f.checked = append(f.checked, scope)
	return f.reports[scope], nil
}

func (f *fakeLedger) VerifyAudit(_ context.Context, scope accounting.Scope) (int, error) {
	if idx, ok := f.broken[scope]; ok {
		return idx, nil
	}
	return -1, nil
}

func TestIntegritySweepReportsFindings(t *testing.T) {
	ledger := &fakeLedger{
		scopes: []accounting.Scope{scopeA, scopeB},
		reports: map[accounting.Scope]accounting.IntegrityReport{
			scopeA: {
				Scope: scopeA,
				Drift: []accounting.BalanceDrift{{AccountID: 1, Code: "1000", Stored: decimal.NewFromInt(5), FromLines: decimal.Zero}},
			},
			scopeB: {
				Scope:        scopeB,
				TrialBalance: accounting.TrialBalance{TotalDebit: decimal.NewFromInt(10), TotalCredit: decimal.NewFromInt(9)},
			},
		},
		broken: map[accounting.Scope]int{scopeB: 4},
	}
	job := NewIntegrityJob(ledger, nil, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	findings, err := job.Sweep(context.Background(), IntegrityPayload{})
	require.NoError(t, err)
	require.Len(t, findings, 3)
	require.Equal(t, FindingDrift, findings[0].Kind)
	require.Equal(t, scopeA, findings[0].Scope)
	require.Equal(t, FindingUnbalanced, findings[1].Kind)
	require.Equal(t, FindingAudit, findings[2].Kind)
	require.Contains(t, findings[2].Detail, "4")

	task, err := NewLedgerIntegrityTask(IntegrityPayload{TenantID: 1, CompanyID: 20})
	require.NoError(t, err)
	ledger.checked = nil
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []accounting.Scope{scopeB}, ledger.checked)
}

func TestIntegrityJobSkipsWhileLocked(t *testing.T) {
	locker, mr := newLocker(t)
	ledger := &fakeLedger{scopes: []accounting.Scope{scopeA}}
	job := NewIntegrityJob(ledger, locker, quietLogger(), nil)

	require.NoError(t, mr.Set(shared.IntegrityLockKey(), "other-worker"))
	task, err := NewLedgerIntegrityTask(IntegrityPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, ledger.checked)

	mr.Del(shared.IntegrityLockKey())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []accounting.Scope{scopeA}, ledger.checked)
	require.False(t, mr.Exists(shared.IntegrityLockKey()))
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{QueueCritical: {Queue: QueueCritical, Pending: 2, Retry: 1}}, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []queueHealth{
		{Queue: QueueCritical, Pending: 2, Retry: 1},
		{Queue: QueueDefault},
	}, body)
}
