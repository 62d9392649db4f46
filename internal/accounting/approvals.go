package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DecisionKind is the outcome chosen by an approver.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionReject  DecisionKind = "REJECT"
)

// Decision is an approver's verdict on the current step.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// DecisionResult reports the decided row and the entry state that followed.
type DecisionResult struct {
	Approval Approval
	// Next is the row opened for the following step, if any.
	Next  *Approval
	Entry JournalEntry
}

// SubmitForApproval moves a DRAFT entry into its workflow, or posts it at once
// when no step applies.
func (s *Service) SubmitForApproval(ctx context.Context, scope Scope, entryID int64, actor Actor) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	var result JournalEntry
	err := s.inTx(ctx, "submit_entry", func(ctx context.Context, tx Tx) error {
		entry, err := tx.GetEntryForUpdate(ctx, scope, entryID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusDraft {
			return fmt.Errorf("%w: entry %d is %s", ErrInvalidStatus, entry.ID, entry.Status)
		}
		result, err = s.submitInTx(ctx, tx, entry, actor)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if result.Status == EntryStatusPosted {
		s.metrics.posting("posted")
	}
	return result, nil
}

func (s *Service) submitInTx(ctx context.Context, tx Tx, entry JournalEntry, actor Actor) (JournalEntry, error) {
	accounts, err := accountMap(ctx, tx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := s.validator.Validate(ctx, entry, accounts, s.periodsFor(tx)); err != nil {
		return JournalEntry{}, err
	}
	wf, ok := s.workflows.Lookup(entry.EntryType)
	if !ok || wf.autoApproves(entry.Amount()) {
		return s.poster().Post(ctx, tx, entry, actor, ClearanceDirect)
	}
	idx, ok := wf.nextStep(-1, entry, accounts)
	if !ok {
		return s.poster().Post(ctx, tx, entry, actor, ClearanceDirect)
	}

	now := s.now()
	approval, err := tx.InsertApproval(ctx, Approval{
		Scope:        entry.Scope,
		EntryID:      entry.ID,
		EntryType:    entry.EntryType,
		StepIndex:    idx,
		RequiredRole: wf.Steps[idx].Role,
		Status:       ApprovalPending,
		RequestedBy:  actor.ID,
		RequestedAt:  now,
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.UpdateEntryStatus(ctx, entry.Scope, entry.ID, EntryStatusPendingApproval, nil, nil); err != nil {
		return JournalEntry{}, err
	}
	entryID := entry.ID
	if err := appendAudit(ctx, tx, AuditEvent{
		Scope:   entry.Scope,
		Action:  AuditEntrySubmitted,
		EntryID: &entryID,
		ActorID: actor.ID,
		Meta: map[string]any{
			"approval_id": approval.ID,
			"step":        approval.StepIndex,
			"role":        approval.RequiredRole,
		},
		At: now,
	}); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = EntryStatusPendingApproval
	entry.UpdatedAt = now
	return entry, nil
}

// DecideApproval records an approve or reject verdict on a PENDING row.
// Approving the last applicable step posts the entry in the same unit of work.
func (s *Service) DecideApproval(ctx context.Context, scope Scope, approvalID int64, decision Decision, actor Actor) (DecisionResult, error) {
	if err := requireScope(scope); err != nil {
		return DecisionResult{}, err
	}
	if decision.Kind != DecisionApprove && decision.Kind != DecisionReject {
		return DecisionResult{}, fmt.Errorf("%w: unknown decision %q", ErrApproval, decision.Kind)
	}
	var result DecisionResult
	err := s.inTx(ctx, "decide_approval", func(ctx context.Context, tx Tx) error {
		approval, err := tx.GetApprovalForUpdate(ctx, scope, approvalID)
		if err != nil {
			return err
		}
		if approval.Status != ApprovalPending {
			return fmt.Errorf("%w: approval %d is %s", ErrAlreadyDecided, approval.ID, approval.Status)
		}
		entry, err := tx.GetEntryForUpdate(ctx, scope, approval.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusPendingApproval {
			return fmt.Errorf("%w: entry %d is %s", ErrInvalidStatus, entry.ID, entry.Status)
		}
		wf, _ := s.workflows.Lookup(approval.EntryType)
		if err := authorize(approval, wf, actor); err != nil {
			return err
		}
		if decision.Kind == DecisionReject {
			result, err = s.reject(ctx, tx, approval, entry, decision.Reason, actor)
			return err
		}
		result, err = s.approve(ctx, tx, approval, entry, wf, actor)
		return err
	})
	if err != nil {
		return DecisionResult{}, err
	}
	s.metrics.approval(strings.ToLower(string(decision.Kind)))
	if result.Entry.Status == EntryStatusPosted {
		s.metrics.posting("posted")
	}
	s.logger.InfoContext(ctx, "approval decided",
		slog.Int64("approval_id", result.Approval.ID),
		slog.Int64("entry_id", result.Entry.ID),
		slog.String("decision", string(decision.Kind)),
		slog.String("entry_status", string(result.Entry.Status)),
	)
	return result, nil
}

func authorize(approval Approval, wf Workflow, actor Actor) error {
	allowed := actor.HasRole(approval.RequiredRole)
	if !allowed && approval.EscalatedAt != nil && approval.EscalatedRole != "" {
		allowed = actor.HasRole(approval.EscalatedRole)
	}
	if !allowed {
		return fmt.Errorf("%w: role %s required", ErrNotAuthorized, approval.RequiredRole)
	}
	if !wf.AllowSelfApproval && actor.ID == approval.RequestedBy {
		return fmt.Errorf("%w: requester cannot decide their own entry", ErrNotAuthorized)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, tx Tx, approval Approval, entry JournalEntry, reason string, actor Actor) (DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DecisionResult{}, ErrReasonRequired
	}
	now := s.now()
	approverID := actor.ID
	approval.Status = ApprovalRejected
	approval.ApproverID = &approverID
	approval.Reason = reason
	approval.DecidedAt = &now
	if err := tx.UpdateApproval(ctx, approval); err != nil {
		return DecisionResult{}, err
	}
	if err := tx.UpdateEntryStatus(ctx, entry.Scope, entry.ID, EntryStatusRejected, nil, nil); err != nil {
		return DecisionResult{}, err
	}
	entryID := entry.ID
	if err := appendAudit(ctx, tx, AuditEvent{
		Scope:   entry.Scope,
		Action:  AuditEntryRejected,
		EntryID: &entryID,
		ActorID: actor.ID,
		Meta: map[string]any{
			"approval_id": approval.ID,
			"step":        approval.StepIndex,
			"reason":      reason,
		},
		At: now,
	}); err != nil {
		return DecisionResult{}, err
	}
	entry.Status = EntryStatusRejected
	entry.UpdatedAt = now
	return DecisionResult{Approval: approval, Entry: entry}, nil
}

func (s *Service) approve(ctx context.Context, tx Tx, approval Approval, entry JournalEntry, wf Workflow, actor Actor) (DecisionResult, error) {
	now := s.now()
	approverID := actor.ID
	approval.Status = ApprovalApproved
	approval.ApproverID = &approverID
	approval.DecidedAt = &now
	if err := tx.UpdateApproval(ctx, approval); err != nil {
		return DecisionResult{}, err
	}
	entryID := entry.ID
	if err := appendAudit(ctx, tx, AuditEvent{
		Scope:   entry.Scope,
		Action:  AuditApprovalApproved,
		EntryID: &entryID,
		ActorID: actor.ID,
		Meta: map[string]any{
			"approval_id": approval.ID,
			"step":        approval.StepIndex,
			"role":        approval.RequiredRole,
		},
		At: now,
	}); err != nil {
		return DecisionResult{}, err
	}

	accounts, err := accountMap(ctx, tx, entry)
	if err != nil {
		return DecisionResult{}, err
	}
	if idx, ok := wf.nextStep(approval.StepIndex, entry, accounts); ok {
		next, err := tx.InsertApproval(ctx, Approval{
			Scope:        entry.Scope,
			EntryID:      entry.ID,
			EntryType:    entry.EntryType,
			StepIndex:    idx,
			RequiredRole: wf.Steps[idx].Role,
			Status:       ApprovalPending,
			RequestedBy:  approval.RequestedBy,
			RequestedAt:  now,
		})
		if err != nil {
			return DecisionResult{}, err
		}
		return DecisionResult{Approval: approval, Next: &next, Entry: entry}, nil
	}

	if err := s.validator.Validate(ctx, entry, accounts, s.periodsFor(tx)); err != nil {
		return DecisionResult{}, err
	}
	posted, err := s.poster().Post(ctx, tx, entry, actor, ClearanceApproved)
	if err != nil {
		return DecisionResult{}, err
	}
	return DecisionResult{Approval: approval, Entry: posted}, nil
}

// ListApprovals returns every approval row of an entry in step order.
func (s *Service) ListApprovals(ctx context.Context, scope Scope, entryID int64) ([]Approval, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var approvals []Approval
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetEntry(ctx, scope, entryID); err != nil {
			return err
		}
		var err error
		approvals, err = tx.ListApprovals(ctx, scope, entryID)
		return err
	})
	return approvals, err
}

// EscalateOverdue hands PENDING rows older than their workflow's EscalateAfter
// to the step's escalation role. It returns the number of rows escalated.
func (s *Service) EscalateOverdue(ctx context.Context, now time.Time) (int, error) {
	var scopes []Scope
	if err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		scopes, err = tx.ListScopes(ctx)
		return err
	}); err != nil {
		return 0, err
	}
	total := 0
	for _, scope := range scopes {
		n, err := s.escalateScope(ctx, scope, now)
		if err != nil {
			return total, fmt.Errorf("escalate tenant %d company %d: %w", scope.TenantID, scope.CompanyID, err)
		}
		total += n
	}
	return total, nil
}

func (s *Service) escalateScope(ctx context.Context, scope Scope, now time.Time) (int, error) {
	escalated := 0
	err := s.inTx(ctx, "escalate_approvals", func(ctx context.Context, tx Tx) error {
		escalated = 0
		pending, err := tx.ListPendingApprovals(ctx, scope, now)
		if err != nil {
			return err
		}
		for _, row := range pending {
			wf, ok := s.workflows.Lookup(row.EntryType)
			if !ok || wf.EscalateAfter <= 0 || row.StepIndex < 0 || row.StepIndex >= len(wf.Steps) {
				continue
			}
			role := wf.Steps[row.StepIndex].EscalationRole
			if role == "" || row.EscalatedAt != nil || now.Sub(row.RequestedAt) < wf.EscalateAfter {
				continue
			}
			approval, err := tx.GetApprovalForUpdate(ctx, scope, row.ID)
			if err != nil {
				return err
			}
			if approval.Status != ApprovalPending || approval.EscalatedAt != nil {
				continue
			}
			at := now
			approval.EscalatedAt = &at
			approval.EscalatedRole = role
			if err := tx.UpdateApproval(ctx, approval); err != nil {
				return err
			}
			entryID := approval.EntryID
			if err := appendAudit(ctx, tx, AuditEvent{
				Scope:   scope,
				Action:  AuditApprovalEscalate,
				EntryID: &entryID,
				Meta: map[string]any{
					"approval_id": approval.ID,
					"step":        approval.StepIndex,
					"from_role":   approval.RequiredRole,
					"to_role":     role,
				},
				At: now,
			}); err != nil {
				return err
			}
			escalated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if escalated > 0 {
		s.logger.InfoContext(ctx, "approvals escalated", slog.Int64("tenant_id", scope.TenantID), slog.Int64("company_id", scope.CompanyID), slog.Int("count", escalated))
	}
	return escalated, nil
}
