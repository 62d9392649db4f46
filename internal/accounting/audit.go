package accounting

import (
	"context"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// appendAudit chains event onto the scope's audit trail inside tx.
func appendAudit(ctx context.Context, tx Tx, event AuditEvent) error {
	prev, err := tx.LastAuditHash(ctx, event.Scope)
	if err != nil {
		return err
	}
	// timestamptz keeps microseconds; hash what will be read back.
	event.At = event.At.UTC().Truncate(time.Microsecond)
	hash, err := shared.ChainHash(prev, event.auditLog())
	if err != nil {
		return err
	}
	event.PrevHash = prev
	event.Hash = hash
	return tx.AppendAudit(ctx, event)
}

func (e AuditEvent) auditLog() shared.AuditLog {
	meta := make(map[string]any, len(e.Meta)+4)
	for k, v := range e.Meta {
		meta[k] = v
	}
	entity, entityID := "ledger", "0"
	if e.EntryID != nil {
		entity, entityID = "journal_entry", strconv.FormatInt(*e.EntryID, 10)
	}
	if e.AccountID != nil {
		meta["account_id"] = *e.AccountID
		if e.EntryID == nil {
			entity, entityID = "account", strconv.FormatInt(*e.AccountID, 10)
		}
	}
	if e.Before != nil {
		meta["before"] = e.Before.String()
	}
	if e.After != nil {
		meta["after"] = e.After.String()
	}
	return shared.AuditLog{
		ActorID:  e.ActorID,
		Action:   string(e.Action),
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       e.At,
	}
}

// VerifyAuditTrail recomputes the hash chain over one scope's events in append
// order. It returns the index of the first record that does not match, or -1.
func VerifyAuditTrail(events []AuditEvent) (int, error) {
	logs := make([]shared.AuditLog, len(events))
	hashes := make([][]byte, len(events))
	for i, e := range events {
		logs[i] = e.auditLog()
		hashes[i] = e.Hash
	}
	return shared.VerifyChain(logs, hashes)
}

// VerifyAudit reads the scope's audit trail and checks its hash chain.
func (s *Service) VerifyAudit(ctx context.Context, scope Scope) (int, error) {
	if err := requireScope(scope); err != nil {
		return -1, err
	}
	var events []AuditEvent
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		events, err = tx.ListAudit(ctx, scope)
		return err
	})
	if err != nil {
		return -1, err
	}
	return VerifyAuditTrail(events)
}
