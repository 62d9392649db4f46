package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxRetries bounds unit-of-work retries after ErrConcurrency.
const DefaultMaxRetries = 3

// ServiceConfig groups optional collaborators of the ledger service.
type ServiceConfig struct {
	// Scale is the minor-unit precision; nil selects DefaultScale and zero
	// restricts amounts to whole units.
	Scale      *int32
	MaxRetries int
	Workflows  *WorkflowRegistry
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Service coordinates the account registry, journal workflow and ledger reads.
type Service struct {
	store      Store
	periods    PeriodPredicate
	validator  *Validator
	workflows  *WorkflowRegistry
	maxRetries int
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewService constructs the ledger service. A nil period predicate treats every date as open.
func NewService(store Store, periods PeriodPredicate, cfg ServiceConfig) *Service {
	if periods == nil {
		periods = AllPeriodsOpen
	}
	scale := DefaultScale
	if cfg.Scale != nil {
		scale = *cfg.Scale
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workflows := cfg.Workflows
	if workflows == nil {
		workflows, _ = NewWorkflowRegistry()
	}
	return &Service{
		store:      store,
		periods:    periods,
		validator:  NewValidator(scale),
		workflows:  workflows,
		maxRetries: retries,
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Validator exposes the configured validator.
func (s *Service) Validator() *Validator { return s.validator }

// Workflows exposes the workflow registry.
func (s *Service) Workflows() *WorkflowRegistry { return s.workflows }

func (s *Service) periodsFor(tx Tx) PeriodPredicate {
	if p, ok := s.periods.(TxPeriodPredicate); ok {
		return p.WithinTx(tx)
	}
	return s.periods
}

func (s *Service) poster() *Poster { return NewPoster(s.validator, s.now) }

// inTx runs fn in a unit of work, retrying the whole unit on ErrConcurrency.
func (s *Service) inTx(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.retry()
			s.logger.WarnContext(ctx, "ledger unit of work retry", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		}
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, ErrConcurrency) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func requireScope(scope Scope) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	return nil
}

// accountMap loads the accounts referenced by entry, keyed by id.
func accountMap(ctx context.Context, tx Tx, entry JournalEntry) (map[int64]Account, error) {
	accounts, err := tx.GetAccounts(ctx, entry.Scope, entry.AccountIDs())
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(accounts))
	for _, acc := range accounts {
		out[acc.ID] = acc
	}
	return out, nil
}

func entryNotFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
}
