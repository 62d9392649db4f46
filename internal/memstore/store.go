// Package memstore provides an in-memory unit of work for the ledger and the
// fixed asset engine. Transactions are serialised by one mutex and roll back by
// restoring a snapshot, so it suits tests and local tooling, not production.
package memstore

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
)

type depreciationKey struct {
	scope   accounting.Scope
	assetID int64
	period  fixedassets.Period
}

type state struct {
	seq           map[string]int64
	numbers       map[accounting.Scope]int64
	accounts      map[int64]accounting.Account
	entries       map[int64]accounting.JournalEntry
	approvals     map[int64]accounting.Approval
	audit         []accounting.AuditEvent
	categories    map[int64]fixedassets.Category
	assets        map[int64]fixedassets.Asset
	depreciations map[int64]fixedassets.Depreciation
	depByKey      map[depreciationKey]int64
}

func newState() *state {
	return &state{
		seq:           map[string]int64{},
		numbers:       map[accounting.Scope]int64{},
		accounts:      map[int64]accounting.Account{},
		entries:       map[int64]accounting.JournalEntry{},
		approvals:     map[int64]accounting.Approval{},
		categories:    map[int64]fixedassets.Category{},
		assets:        map[int64]fixedassets.Asset{},
		depreciations: map[int64]fixedassets.Depreciation{},
		depByKey:      map[depreciationKey]int64{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		seq:           copyMap(s.seq),
		numbers:       copyMap(s.numbers),
		accounts:      copyMap(s.accounts),
		entries:       make(map[int64]accounting.JournalEntry, len(s.entries)),
		approvals:     copyMap(s.approvals),
		audit:         append([]accounting.AuditEvent(nil), s.audit...),
		categories:    copyMap(s.categories),
		assets:        copyMap(s.assets),
		depreciations: copyMap(s.depreciations),
		depByKey:      copyMap(s.depByKey),
	}
	for id, e := range s.entries {
		e.Lines = append([]accounting.JournalLine(nil), e.Lines...)
		c.entries[id] = e
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is an in-memory implementation of accounting.Store and fixedassets.Store.
type Store struct {
	mu        sync.Mutex
	st        *state
	conflicts int
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Ledger adapts the store to accounting.Store.
func (s *Store) Ledger() accounting.Store { return ledgerStore{s} }

// Assets adapts the store to fixedassets.Store.
func (s *Store) Assets() fixedassets.Store { return assetStore{s} }

// FailBalanceUpdates makes the next n balance updates fail with
// accounting.ErrStaleVersion, simulating a concurrent writer.
func (s *Store) FailBalanceUpdates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// OverwriteBalance sets a stored balance without touching journal lines.
func (s *Store) OverwriteBalance(scope accounting.Scope, accountID int64, balance decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.st.accounts[accountID]
	if !ok || acc.Scope != scope {
		return false
	}
	acc.Balance = balance
	s.st.accounts[accountID] = acc
	return true
}

// AuditTrail returns the audit events of scope in append order.
func (s *Store) AuditTrail(scope accounting.Scope) []accounting.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []accounting.AuditEvent
	for _, e := range s.st.audit {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) run(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&tx{store: s, st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type ledgerStore struct{ s *Store }

func (l ledgerStore) WithTx(ctx context.Context, fn func(context.Context, accounting.Tx) error) error {
	return l.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

type assetStore struct{ s *Store }

func (a assetStore) WithTx(ctx context.Context, fn func(context.Context, fixedassets.Tx) error) error {
	return a.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

var (
	_ accounting.Store  = ledgerStore{}
	_ fixedassets.Store = assetStore{}
	_ fixedassets.Tx    = (*tx)(nil)
)
