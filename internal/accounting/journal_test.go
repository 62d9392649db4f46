package accounting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

func TestPostEntryMovesBalancesOnNormalSide(t *testing.T) {
	f := newFixture(t)

	posted := f.postDirect(march1, f.dr("1000", "1000"), f.cr("4000", "1000"))

	require.Equal(t, accounting.EntryStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, clerk.ID, *posted.PostedBy)
	require.Equal(t, int64(1), posted.Number)
	f.requireBalance("1000", "1000")
	f.requireBalance("4000", "1000")

	tb, err := f.svc.TrialBalance(f.ctx, testScope, march20)
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(dec("1000")))
	require.True(t, tb.TotalCredit.Equal(dec("1000")))
}

func TestCreateEntryRejectsImbalanceWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "600"), f.cr("4000", "500")), clerk)

	require.ErrorIs(t, err, accounting.ErrValidation)
	var verr *accounting.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, accounting.RuleBalanced, verr.Rule)
	require.True(t, verr.Imbalance().Equal(dec("100")))
	f.requireBalance("1000", "0")
	f.requireBalance("4000", "0")
}

func TestPostEntryTwiceFails(t *testing.T) {
	f := newFixture(t)
	posted := f.postDirect(march1, f.dr("5000", "250"), f.cr("1000", "250"))

	_, err := f.svc.PostEntry(f.ctx, testScope, posted.ID, clerk)

	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
	require.ErrorIs(t, err, accounting.ErrWorkflow)
	f.requireBalance("5000", "250")
	f.requireBalance("1000", "-250")
}

func TestPostEntryRequiresApprovalForWorkflowType(t *testing.T) {
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{{Role: "manager"}})
	require.NoError(t, err)
	f := newFixture(t, wf)
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "MANUAL", f.dr("1000", "10"), f.cr("3000", "10")), clerk)
	require.NoError(t, err)

	_, err = f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)

	require.ErrorIs(t, err, accounting.ErrApprovalRequired)
	f.requireBalance("1000", "0")
}

func TestPostEntryUnknownEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PostEntry(f.ctx, testScope, 404, clerk)
	require.ErrorIs(t, err, accounting.ErrEntryNotFound)
	require.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestInvalidScopeRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateEntry(f.ctx, accounting.Scope{}, input(march1, "GENERAL", f.dr("1000", "1"), f.cr("4000", "1")), clerk)
	require.ErrorIs(t, err, accounting.ErrInvalidScope)
}

func TestEntryScopedToCompany(t *testing.T) {
	f := newFixture(t)
	posted := f.postDirect(march1, f.dr("1000", "5"), f.cr("4000", "5"))
	other := accounting.Scope{TenantID: testScope.TenantID, CompanyID: testScope.CompanyID + 1}

	_, err := f.svc.GetEntry(f.ctx, other, posted.ID)
	require.ErrorIs(t, err, accounting.ErrEntryNotFound)

	_, err = f.svc.CreateEntry(f.ctx, other, input(march1, "GENERAL", f.dr("1000", "5"), f.cr("4000", "5")), clerk)
	rule, ok := accounting.RuleOf(err)
	require.True(t, ok)
	require.Equal(t, accounting.RuleAccountActive, rule)
}

func TestCreateEntryIsIdempotentPerSource(t *testing.T) {
	f := newFixture(t)
	in := input(march1, "GENERAL", f.dr("1100", "75"), f.cr("4000", "75"))
	in.SourceModule = "sales"
	in.SourceID = uuid.New()

	first, err := f.svc.CreateEntry(f.ctx, testScope, in, clerk)
	require.NoError(t, err)
	second, err := f.svc.CreateEntry(f.ctx, testScope, in, clerk)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Number, second.Number)
}

func TestReverseEntrySwapsLinesAndRestoresBalances(t *testing.T) {
	f := newFixture(t)
	original := f.postDirect(march1, f.dr("5000", "400"), f.cr("2000", "400"))

	reversal, err := f.svc.ReverseEntry(f.ctx, testScope, original.ID, accounting.ReverseInput{Date: march20}, clerk)
	require.NoError(t, err)

	require.Equal(t, accounting.EntryStatusPosted, reversal.Status)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, original.ID, *reversal.ReversalOf)
	require.Equal(t, "Reversal of #1", reversal.Memo)
	require.Len(t, reversal.Lines, 2)
	require.True(t, reversal.Lines[0].Credit.Equal(dec("400")))
	require.True(t, reversal.Lines[1].Debit.Equal(dec("400")))
	f.requireBalance("5000", "0")
	f.requireBalance("2000", "0")

	_, err = f.svc.ReverseEntry(f.ctx, testScope, original.ID, accounting.ReverseInput{Date: march20}, clerk)
	require.ErrorIs(t, err, accounting.ErrAlreadyReversed)
}

func TestReverseEntryRequiresPosted(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "1"), f.cr("4000", "1")), clerk)
	require.NoError(t, err)

	_, err = f.svc.ReverseEntry(f.ctx, testScope, draft.ID, accounting.ReverseInput{}, clerk)
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestReverseEntryGoesThroughWorkflow(t *testing.T) {
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{{Role: "manager"}})
	require.NoError(t, err)
	f := newFixture(t, wf)
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "MANUAL", f.dr("1000", "90"), f.cr("3000", "90")), clerk)
	require.NoError(t, err)
	_, err = f.svc.SubmitForApproval(f.ctx, testScope, entry.ID, clerk)
	require.NoError(t, err)
	approvals, err := f.svc.ListApprovals(f.ctx, testScope, entry.ID)
	require.NoError(t, err)
	_, err = f.svc.DecideApproval(f.ctx, testScope, approvals[0].ID, accounting.Decision{Kind: accounting.DecisionApprove}, manager)
	require.NoError(t, err)

	reversal, err := f.svc.ReverseEntry(f.ctx, testScope, entry.ID, accounting.ReverseInput{Memo: "undo"}, clerk)
	require.NoError(t, err)

	require.Equal(t, accounting.EntryStatusPendingApproval, reversal.Status)
	require.Equal(t, "undo", reversal.Memo)
	f.requireBalance("1000", "90")
}

func TestPostEntryRetriesOnConcurrentModification(t *testing.T) {
	f := newFixture(t)
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "30"), f.cr("4000", "30")), clerk)
	require.NoError(t, err)

	f.store.FailBalanceUpdates(2)
	posted, err := f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)

	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, posted.Status)
	f.requireBalance("1000", "30")
	f.requireBalance("4000", "30")
}

func TestPostEntryGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "30"), f.cr("4000", "30")), clerk)
	require.NoError(t, err)

	f.store.FailBalanceUpdates(accounting.DefaultMaxRetries + 1)
	_, err = f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)

	require.ErrorIs(t, err, accounting.ErrConcurrency)
	reloaded, err := f.svc.GetEntry(f.ctx, testScope, entry.ID)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusDraft, reloaded.Status)
	f.requireBalance("1000", "0")
}

func TestAuditTrailIsHashChained(t *testing.T) {
	f := newFixture(t)
	f.postDirect(march1, f.dr("1000", "100"), f.cr("4000", "100"))

	events := f.store.AuditTrail(testScope)
	require.NotEmpty(t, events)
	idx, err := accounting.VerifyAuditTrail(events)
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	var applied int
	for _, e := range events {
		if e.Action == accounting.AuditBalanceApplied {
			applied++
			require.NotNil(t, e.Before)
			require.NotNil(t, e.After)
		}
	}
	require.Equal(t, 2, applied)

	tampered := append([]accounting.AuditEvent(nil), events...)
	tampered[2].ActorID = 999
	idx, err = accounting.VerifyAuditTrail(tampered)
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

func TestVerifyAuditReadsStoredTrail(t *testing.T) {
	f := newFixture(t)
	f.postDirect(march1, f.dr("1000", "75"), f.cr("4000", "75"))

	idx, err := f.svc.VerifyAudit(f.ctx, testScope)
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	_, err = f.svc.VerifyAudit(f.ctx, accounting.Scope{})
	require.ErrorIs(t, err, accounting.ErrValidation)
}

func TestZeroScaleRejectsFractionalAmounts(t *testing.T) {
	f := newFixture(t)
	zero := int32(0)
	svc := accounting.NewService(f.store.Ledger(), nil, accounting.ServiceConfig{Scale: &zero, Logger: discardLogger()})
	require.Equal(t, int32(0), svc.Validator().Scale())

	_, err := svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "0.50"), f.cr("4000", "0.50")), clerk)

	require.ErrorIs(t, err, accounting.ErrValidation)
	var verr *accounting.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, accounting.RuleLineAmounts, verr.Rule)

	_, err = svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "5"), f.cr("4000", "5")), clerk)
	require.NoError(t, err)
}

func TestNilScaleUsesDefault(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, accounting.DefaultScale, f.svc.Validator().Scale())

	_, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "0.50"), f.cr("4000", "0.50")), clerk)
	require.NoError(t, err)
}

type txBoundPeriods struct {
	closedInTx bool
	calls      int
}

func (p *txBoundPeriods) IsOpen(context.Context, accounting.Scope, time.Time) (bool, error) {
	return true, nil
}

func (p *txBoundPeriods) WithinTx(accounting.Tx) accounting.PeriodPredicate {
	p.calls++
	return accounting.PeriodFunc(func(context.Context, accounting.Scope, time.Time) (bool, error) {
		return !p.closedInTx, nil
	})
}

func TestPeriodCheckReadsThroughUnitOfWork(t *testing.T) {
	f := newFixture(t)
	periods := &txBoundPeriods{}
	svc := accounting.NewService(f.store.Ledger(), periods, accounting.ServiceConfig{Logger: discardLogger()})

	entry, err := svc.CreateEntry(f.ctx, testScope, input(march1, "GENERAL", f.dr("1000", "10"), f.cr("4000", "10")), clerk)
	require.NoError(t, err)
	require.Equal(t, 1, periods.calls)

	periods.closedInTx = true
	_, err = svc.PostEntry(f.ctx, testScope, entry.ID, clerk)
	require.ErrorIs(t, err, accounting.ErrValidation)
	var verr *accounting.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, accounting.RuleOpenPeriod, verr.Rule)
	require.Equal(t, 2, periods.calls)
	f.requireBalance("1000", "0")
}
