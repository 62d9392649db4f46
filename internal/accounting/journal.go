package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateEntry validates and stores a DRAFT entry. A repeated SourceModule and
// SourceID pair returns the entry created the first time.
func (s *Service) CreateEntry(ctx context.Context, scope Scope, in CreateEntryInput, actor Actor) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.inTx(ctx, "create_entry", func(ctx context.Context, tx Tx) error {
		var err error
		entry, err = s.createInTx(ctx, tx, scope, in, actor, nil)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) createInTx(ctx context.Context, tx Tx, scope Scope, in CreateEntryInput, actor Actor, reversalOf *int64) (JournalEntry, error) {
	in.SourceModule = strings.TrimSpace(in.SourceModule)
	if in.SourceModule != "" && in.SourceID != uuid.Nil {
		existing, ok, err := tx.FindEntryBySource(ctx, scope, in.SourceModule, in.SourceID)
		if err != nil {
			return JournalEntry{}, err
		}
		if ok {
			return existing, nil
		}
	}
	now := s.now()
	if in.Date.IsZero() {
		in.Date = now.UTC().Truncate(24 * time.Hour)
	}
	entry := in.toEntry(scope, actor.ID, now)
	entry.ReversalOf = reversalOf
	accounts, err := accountMap(ctx, tx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := s.validator.Validate(ctx, entry, accounts, s.periodsFor(tx)); err != nil {
		return JournalEntry{}, err
	}
	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	entryID := inserted.ID
	meta := map[string]any{"number": inserted.Number, "amount": inserted.Amount().String()}
	if inserted.SourceModule != "" {
		meta["source_module"] = inserted.SourceModule
		meta["source_id"] = inserted.SourceID.String()
	}
	if reversalOf != nil {
		meta["reversal_of"] = *reversalOf
	}
	if err := appendAudit(ctx, tx, AuditEvent{
		Scope:   scope,
		Action:  AuditEntryCreated,
		EntryID: &entryID,
		ActorID: actor.ID,
		Meta:    meta,
		At:      now,
	}); err != nil {
		return JournalEntry{}, err
	}
	return inserted, nil
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entry, err = tx.GetEntry(ctx, scope, entryID)
		return err
	})
	return entry, err
}

// PostEntry posts a DRAFT entry whose type needs no approval.
func (s *Service) PostEntry(ctx context.Context, scope Scope, entryID int64, actor Actor) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	var posted JournalEntry
	err := s.inTx(ctx, "post_entry", func(ctx context.Context, tx Tx) error {
		entry, err := tx.GetEntryForUpdate(ctx, scope, entryID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusDraft {
			return fmt.Errorf("%w: entry %d is %s", ErrInvalidStatus, entry.ID, entry.Status)
		}
		accounts, err := accountMap(ctx, tx, entry)
		if err != nil {
			return err
		}
		if err := s.validator.Validate(ctx, entry, accounts, s.periodsFor(tx)); err != nil {
			return err
		}
		if s.requiresApproval(entry, accounts) {
			return fmt.Errorf("%w: entry type %s", ErrApprovalRequired, entry.EntryType)
		}
		posted, err = s.poster().Post(ctx, tx, entry, actor, ClearanceDirect)
		return err
	})
	if err != nil {
		s.metrics.posting("failed")
		return JournalEntry{}, err
	}
	s.metrics.posting("posted")
	s.logger.InfoContext(ctx, "journal entry posted", slog.Int64("entry_id", posted.ID), slog.Int64("number", posted.Number), slog.Int64("actor_id", actor.ID))
	return posted, nil
}

// PostWithin creates and posts a system entry inside the caller's unit of
// work. It bypasses approval workflows and is meant for engines such as
// depreciation that generate their own balanced entries.
func (s *Service) PostWithin(ctx context.Context, tx Tx, scope Scope, in CreateEntryInput, actor Actor) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	entry, err := s.createInTx(ctx, tx, scope, in, actor, nil)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.Status == EntryStatusPosted {
		return entry, nil
	}
	posted, err := s.poster().Post(ctx, tx, entry, actor, ClearanceDirect)
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.posting("posted")
	return posted, nil
}

// ReverseInput describes a reversing entry.
type ReverseInput struct {
	Date time.Time
	Memo string
}

// ReverseEntry creates an entry with every line of a POSTED entry swapped and
// submits it through the entry type's workflow.
func (s *Service) ReverseEntry(ctx context.Context, scope Scope, entryID int64, in ReverseInput, actor Actor) (JournalEntry, error) {
	if err := requireScope(scope); err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	err := s.inTx(ctx, "reverse_entry", func(ctx context.Context, tx Tx) error {
		original, err := tx.GetEntryForUpdate(ctx, scope, entryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted {
			return fmt.Errorf("%w: only posted entries can be reversed, entry %d is %s", ErrInvalidStatus, original.ID, original.Status)
		}
		if _, exists, err := tx.FindReversal(ctx, scope, original.ID); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: entry %d", ErrAlreadyReversed, original.ID)
		}
		memo := strings.TrimSpace(in.Memo)
		if memo == "" {
			memo = fmt.Sprintf("Reversal of #%d", original.Number)
		}
		input := CreateEntryInput{
			Date:      in.Date,
			Memo:      memo,
			Reference: original.Reference,
			EntryType: original.EntryType,
			Lines:     make([]LineInput, 0, len(original.Lines)),
		}
		for _, line := range original.Lines {
			input.Lines = append(input.Lines, LineInput{
				AccountID:  line.AccountID,
				Debit:      line.Credit,
				Credit:     line.Debit,
				Memo:       line.Memo,
				Dimensions: line.Dimensions,
			})
		}
		originalID := original.ID
		draft, err := s.createInTx(ctx, tx, scope, input, actor, &originalID)
		if err != nil {
			return err
		}
		reversal, err = s.submitInTx(ctx, tx, draft, actor)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if reversal.Status == EntryStatusPosted {
		s.metrics.posting("posted")
	}
	return reversal, nil
}

func (s *Service) requiresApproval(entry JournalEntry, accounts map[int64]Account) bool {
	wf, ok := s.workflows.Lookup(entry.EntryType)
	if !ok || wf.autoApproves(entry.Amount()) {
		return false
	}
	_, ok = wf.nextStep(-1, entry, accounts)
	return ok
}
