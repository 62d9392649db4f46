package accounting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

func twoStepWorkflow(t *testing.T, opts ...accounting.WorkflowOption) accounting.Workflow {
	t.Helper()
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{
		{Role: "manager"},
		{Role: "director"},
	}, opts...)
	require.NoError(t, err)
	return wf
}

func (f *fixture) submit(entryType string, lines ...accounting.LineInput) (accounting.JournalEntry, accounting.Approval) {
	f.t.Helper()
	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, entryType, lines...), clerk)
	require.NoError(f.t, err)
	submitted, err := f.svc.SubmitForApproval(f.ctx, testScope, entry.ID, clerk)
	require.NoError(f.t, err)
	require.Equal(f.t, accounting.EntryStatusPendingApproval, submitted.Status)
	approvals, err := f.svc.ListApprovals(f.ctx, testScope, entry.ID)
	require.NoError(f.t, err)
	require.Len(f.t, approvals, 1)
	return submitted, approvals[0]
}

func approve() accounting.Decision { return accounting.Decision{Kind: accounting.DecisionApprove} }

func TestTwoStepRejectLeavesBalancesUnchanged(t *testing.T) {
	f := newFixture(t, twoStepWorkflow(t))
	entry, approval := f.submit("MANUAL", f.dr("1000", "500"), f.cr("3000", "500"))
	require.Equal(t, 0, approval.StepIndex)
	require.Equal(t, "manager", approval.RequiredRole)
	require.Equal(t, clerk.ID, approval.RequestedBy)

	result, err := f.svc.DecideApproval(f.ctx, testScope, approval.ID, accounting.Decision{Kind: accounting.DecisionReject, Reason: "missing invoice"}, manager)
	require.NoError(t, err)

	require.Equal(t, accounting.ApprovalRejected, result.Approval.Status)
	require.Equal(t, accounting.EntryStatusRejected, result.Entry.Status)
	require.Nil(t, result.Next)
	f.requireBalance("1000", "0")
	f.requireBalance("3000", "0")

	reloaded, err := f.svc.GetEntry(f.ctx, testScope, entry.ID)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusRejected, reloaded.Status)
}

func TestTwoStepApprovePostsExactlyOnce(t *testing.T) {
	f := newFixture(t, twoStepWorkflow(t))
	entry, first := f.submit("MANUAL", f.dr("1000", "500"), f.cr("3000", "500"))

	step1, err := f.svc.DecideApproval(f.ctx, testScope, first.ID, approve(), manager)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPendingApproval, step1.Entry.Status)
	require.NotNil(t, step1.Next)
	require.Equal(t, 1, step1.Next.StepIndex)
	require.Equal(t, "director", step1.Next.RequiredRole)
	f.requireBalance("1000", "0")

	step2, err := f.svc.DecideApproval(f.ctx, testScope, step1.Next.ID, approve(), director)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, step2.Entry.Status)
	require.Nil(t, step2.Next)
	f.requireBalance("1000", "500")
	f.requireBalance("3000", "500")

	_, err = f.svc.DecideApproval(f.ctx, testScope, step1.Next.ID, approve(), director)
	require.ErrorIs(t, err, accounting.ErrAlreadyDecided)
	_, err = f.svc.DecideApproval(f.ctx, testScope, first.ID, approve(), manager)
	require.ErrorIs(t, err, accounting.ErrAlreadyDecided)
	_, err = f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
	f.requireBalance("1000", "500")

	approvals, err := f.svc.ListApprovals(f.ctx, testScope, entry.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	for _, a := range approvals {
		require.Equal(t, accounting.ApprovalApproved, a.Status)
		require.NotNil(t, a.DecidedAt)
	}
}

func TestDecideApprovalAuthorization(t *testing.T) {
	f := newFixture(t, twoStepWorkflow(t))
	_, approval := f.submit("MANUAL", f.dr("1000", "50"), f.cr("3000", "50"))

	_, err := f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), director)
	require.ErrorIs(t, err, accounting.ErrNotAuthorized)
	require.ErrorIs(t, err, accounting.ErrApproval)

	_, err = f.svc.DecideApproval(f.ctx, testScope, approval.ID, accounting.Decision{Kind: accounting.DecisionReject}, manager)
	require.ErrorIs(t, err, accounting.ErrReasonRequired)

	_, err = f.svc.DecideApproval(f.ctx, testScope, approval.ID, accounting.Decision{Kind: "MAYBE"}, manager)
	require.ErrorIs(t, err, accounting.ErrApproval)

	_, err = f.svc.DecideApproval(f.ctx, testScope, 9999, approve(), manager)
	require.ErrorIs(t, err, accounting.ErrApprovalNotFound)
}

func TestSelfApproval(t *testing.T) {
	selfManager := accounting.Actor{ID: clerk.ID, Roles: []string{"clerk", "manager"}}

	t.Run("blocked by default", func(t *testing.T) {
		wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{{Role: "manager"}})
		require.NoError(t, err)
		f := newFixture(t, wf)
		_, approval := f.submit("MANUAL", f.dr("1000", "50"), f.cr("3000", "50"))

		_, err = f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), selfManager)
		require.ErrorIs(t, err, accounting.ErrNotAuthorized)
	})

	t.Run("allowed when enabled", func(t *testing.T) {
		wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{{Role: "manager"}}, accounting.WithSelfApproval())
		require.NoError(t, err)
		f := newFixture(t, wf)
		_, approval := f.submit("MANUAL", f.dr("1000", "50"), f.cr("3000", "50"))

		result, err := f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), selfManager)
		require.NoError(t, err)
		require.Equal(t, accounting.EntryStatusPosted, result.Entry.Status)
	})
}

func TestConditionalStepsAndAutoApproval(t *testing.T) {
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{
		{Role: "manager"},
		{Role: "director", Condition: accounting.AmountAtLeast(dec("5000"))},
	}, accounting.WithAutoApproveBelow(dec("100")))
	require.NoError(t, err)
	f := newFixture(t, wf)

	small, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "MANUAL", f.dr("1000", "99.99"), f.cr("3000", "99.99")), clerk)
	require.NoError(t, err)
	posted, err := f.svc.SubmitForApproval(f.ctx, testScope, small.ID, clerk)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, posted.Status)

	_, approval := f.submit("MANUAL", f.dr("1000", "1000"), f.cr("3000", "1000"))
	result, err := f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), manager)
	require.NoError(t, err)
	require.Nil(t, result.Next)
	require.Equal(t, accounting.EntryStatusPosted, result.Entry.Status)

	_, approval = f.submit("MANUAL", f.dr("1000", "5000"), f.cr("3000", "5000"))
	result, err = f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), manager)
	require.NoError(t, err)
	require.NotNil(t, result.Next)
	require.Equal(t, "director", result.Next.RequiredRole)

	f.requireBalance("1000", "1099.99")
}

func TestTouchesAccountTypeCondition(t *testing.T) {
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{
		{Role: "manager", Condition: accounting.TouchesAccountType(accounting.AccountTypeEquity)},
	})
	require.NoError(t, err)
	f := newFixture(t, wf)

	entry, err := f.svc.CreateEntry(f.ctx, testScope, input(march1, "MANUAL", f.dr("1000", "10"), f.cr("4000", "10")), clerk)
	require.NoError(t, err)
	posted, err := f.svc.PostEntry(f.ctx, testScope, entry.ID, clerk)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, posted.Status)

	f.submit("MANUAL", f.dr("1000", "10"), f.cr("3000", "10"))
}

func TestSubmitRequiresDraft(t *testing.T) {
	f := newFixture(t, twoStepWorkflow(t))
	entry, _ := f.submit("MANUAL", f.dr("1000", "50"), f.cr("3000", "50"))

	_, err := f.svc.SubmitForApproval(f.ctx, testScope, entry.ID, clerk)
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestEscalateOverdueApprovals(t *testing.T) {
	wf, err := accounting.NewWorkflow("MANUAL", []accounting.Step{
		{Role: "manager", EscalationRole: "director"},
	}, accounting.WithEscalateAfter(24*time.Hour))
	require.NoError(t, err)
	f := newFixture(t, wf)
	_, approval := f.submit("MANUAL", f.dr("1000", "70"), f.cr("3000", "70"))

	n, err := f.svc.EscalateOverdue(f.ctx, f.clock.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), director)
	require.ErrorIs(t, err, accounting.ErrNotAuthorized)

	n, err = f.svc.EscalateOverdue(f.ctx, f.clock.Add(25*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = f.svc.EscalateOverdue(f.ctx, f.clock.Add(26*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	result, err := f.svc.DecideApproval(f.ctx, testScope, approval.ID, approve(), director)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusPosted, result.Entry.Status)
	require.Equal(t, "director", result.Approval.EscalatedRole)
}

func TestNewWorkflowValidation(t *testing.T) {
	cases := []struct {
		name      string
		entryType string
		steps     []accounting.Step
		opts      []accounting.WorkflowOption
	}{
		{name: "missing entry type", entryType: " ", steps: []accounting.Step{{Role: "manager"}}},
		{name: "no steps", entryType: "MANUAL"},
		{name: "step without role", entryType: "MANUAL", steps: []accounting.Step{{Role: ""}}},
		{name: "unknown account type", entryType: "MANUAL", steps: []accounting.Step{{Role: "manager", Condition: accounting.TouchesAccountType("BOGUS")}}},
		{name: "unknown dimension", entryType: "MANUAL", steps: []accounting.Step{{Role: "manager", Condition: accounting.HasDimension("COLOR")}}},
		{name: "negative threshold", entryType: "MANUAL", steps: []accounting.Step{{Role: "manager", Condition: accounting.AmountAtLeast(dec("-1"))}}},
		{name: "negative auto approval", entryType: "MANUAL", steps: []accounting.Step{{Role: "manager"}}, opts: []accounting.WorkflowOption{accounting.WithAutoApproveBelow(dec("-5"))}},
		{name: "negative escalation", entryType: "MANUAL", steps: []accounting.Step{{Role: "manager"}}, opts: []accounting.WorkflowOption{accounting.WithEscalateAfter(-time.Minute)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounting.NewWorkflow(tc.entryType, tc.steps, tc.opts...)
			require.ErrorIs(t, err, accounting.ErrInvalidWorkflow)
		})
	}

	wf := twoStepWorkflow(t)
	require.Equal(t, accounting.ConditionAlways, wf.Steps[0].Condition.Kind)
	_, err := accounting.NewWorkflowRegistry(wf, wf)
	require.ErrorIs(t, err, accounting.ErrInvalidWorkflow)
	registry, err := accounting.NewWorkflowRegistry()
	require.NoError(t, err)
	require.ErrorIs(t, registry.Register(accounting.Workflow{}), accounting.ErrInvalidWorkflow)
}
