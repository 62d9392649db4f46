package fixedassets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// sourceNamespace seeds deterministic journal source ids so a retried run
// finds the entry it already posted.
var sourceNamespace = uuid.MustParse("4f1c9d7e-3a52-4b8e-9c61-2d0e7f8a5b13")

const defaultConcurrency = 4

// Config groups optional collaborators of the depreciation service.
type Config struct {
	MaxRetries  int
	Concurrency int
	Logger      *slog.Logger
}

// Service registers assets, runs depreciation and disposes assets.
type Service struct {
	store       Store
	ledger      *accounting.Service
	scale       int32
	maxRetries  int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the depreciation service on top of the ledger service,
// which validates and posts every generated entry.
func NewService(store Store, ledger *accounting.Service, cfg Config) *Service {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = accounting.DefaultMaxRetries
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		ledger:      ledger,
		scale:       ledger.Validator().Scale(),
		maxRetries:  retries,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) inTx(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.WarnContext(ctx, "fixed asset unit of work retry", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		}
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, accounting.ErrConcurrency) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// CategoryInput describes a new asset category.
type CategoryInput struct {
	Code                  string
	Name                  string
	UsefulLifeMonths      int
	Method                Method
	DecliningMultiplier   decimal.Decimal
	SalvageRate           decimal.Decimal
	AssetAccountID        int64
	ExpenseAccountID      int64
	AccumulatedAccountID  int64
	DisposalGainAccountID int64
	DisposalLossAccountID int64
}

func (in CategoryInput) toCategory(scope accounting.Scope, now time.Time) (Category, error) {
	c := Category{
		Scope:                 scope,
		Code:                  strings.TrimSpace(in.Code),
		Name:                  strings.TrimSpace(in.Name),
		UsefulLifeMonths:      in.UsefulLifeMonths,
		Method:                in.Method,
		DecliningMultiplier:   in.DecliningMultiplier,
		SalvageRate:           in.SalvageRate,
		AssetAccountID:        in.AssetAccountID,
		ExpenseAccountID:      in.ExpenseAccountID,
		AccumulatedAccountID:  in.AccumulatedAccountID,
		DisposalGainAccountID: in.DisposalGainAccountID,
		DisposalLossAccountID: in.DisposalLossAccountID,
		CreatedAt:             now,
	}
	if c.Method == "" {
		c.Method = MethodStraightLine
	}
	if c.DecliningMultiplier.IsZero() {
		c.DecliningMultiplier = decimal.NewFromInt(defaultDecliningFactor)
	}
	switch {
	case c.Code == "" || c.Name == "":
		return Category{}, fmt.Errorf("%w: category code and name required", ErrInvalidAsset)
	case !c.Method.Valid():
		return Category{}, fmt.Errorf("%w: unknown method %q", ErrInvalidAsset, c.Method)
	case c.UsefulLifeMonths <= 0:
		return Category{}, fmt.Errorf("%w: useful life must be positive", ErrInvalidAsset)
	case !c.DecliningMultiplier.IsPositive():
		return Category{}, fmt.Errorf("%w: declining multiplier must be positive", ErrInvalidAsset)
	case c.SalvageRate.IsNegative() || c.SalvageRate.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return Category{}, fmt.Errorf("%w: salvage rate must be in [0, 1)", ErrInvalidAsset)
	case c.AssetAccountID <= 0 || c.ExpenseAccountID <= 0 || c.AccumulatedAccountID <= 0:
		return Category{}, fmt.Errorf("%w: asset, expense and accumulated accounts required", ErrInvalidAsset)
	}
	return c, nil
}

func (c Category) accountIDs() []int64 {
	ids := []int64{c.AssetAccountID, c.ExpenseAccountID, c.AccumulatedAccountID}
	if c.DisposalGainAccountID > 0 {
		ids = append(ids, c.DisposalGainAccountID)
	}
	if c.DisposalLossAccountID > 0 {
		ids = append(ids, c.DisposalLossAccountID)
	}
	return ids
}

// CreateCategory stores a category after checking its ledger accounts exist.
func (s *Service) CreateCategory(ctx context.Context, scope accounting.Scope, in CategoryInput) (Category, error) {
	if !scope.Valid() {
		return Category{}, accounting.ErrInvalidScope
	}
	category, err := in.toCategory(scope, s.now())
	if err != nil {
		return Category{}, err
	}
	var created Category
	err = s.inTx(ctx, "create_category", func(ctx context.Context, tx Tx) error {
		ids := category.accountIDs()
		accounts, err := tx.GetAccounts(ctx, scope, ids)
		if err != nil {
			return err
		}
		found := make(map[int64]bool, len(accounts))
		for _, acc := range accounts {
			found[acc.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return fmt.Errorf("%w: id %d", accounting.ErrAccountNotFound, id)
			}
		}
		created, err = tx.InsertCategory(ctx, category)
		return err
	})
	if err != nil {
		return Category{}, err
	}
	return created, nil
}

// ListCategories returns the scope's categories.
func (s *Service) ListCategories(ctx context.Context, scope accounting.Scope) ([]Category, error) {
	var out []Category
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListCategories(ctx, scope)
		return err
	})
	return out, err
}

// RegisterAssetInput describes an acquired asset. Zero life and nil salvage
// fall back to the category.
type RegisterAssetInput struct {
	CategoryID        int64
	Code              string
	Name              string
	Cost              decimal.Decimal
	Currency          string
	AcquisitionDate   time.Time
	DepreciationStart *Period
	Salvage           *decimal.Decimal
	UsefulLifeMonths  int
}

// RegisterAsset creates an ACTIVE asset under a category.
func (s *Service) RegisterAsset(ctx context.Context, scope accounting.Scope, in RegisterAssetInput) (Asset, error) {
	if !scope.Valid() {
		return Asset{}, accounting.ErrInvalidScope
	}
	var created Asset
	err := s.inTx(ctx, "register_asset", func(ctx context.Context, tx Tx) error {
		category, err := tx.GetCategory(ctx, scope, in.CategoryID)
		if err != nil {
			return err
		}
		asset, err := s.newAsset(scope, category, in)
		if err != nil {
			return err
		}
		created, err = tx.InsertAsset(ctx, asset)
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	s.logger.InfoContext(ctx, "fixed asset registered", slog.Int64("asset_id", created.ID), slog.String("code", created.Code))
	return created, nil
}

func (s *Service) newAsset(scope accounting.Scope, category Category, in RegisterAssetInput) (Asset, error) {
	now := s.now()
	asset := Asset{
		Scope:               scope,
		CategoryID:          category.ID,
		Code:                strings.TrimSpace(in.Code),
		Name:                strings.TrimSpace(in.Name),
		Cost:                in.Cost,
		Currency:            strings.ToUpper(strings.TrimSpace(in.Currency)),
		AcquisitionDate:     in.AcquisitionDate,
		UsefulLifeMonths:    in.UsefulLifeMonths,
		Method:              category.Method,
		DecliningMultiplier: category.DecliningMultiplier,
		Accumulated:         decimal.Zero,
		Status:              AssetStatusActive,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if asset.UsefulLifeMonths == 0 {
		asset.UsefulLifeMonths = category.UsefulLifeMonths
	}
	if in.Salvage != nil {
		asset.Salvage = *in.Salvage
	} else {
		asset.Salvage = in.Cost.Mul(category.SalvageRate).Round(s.scale)
	}
	if in.DepreciationStart != nil {
		asset.DepreciationStart = *in.DepreciationStart
	} else {
		asset.DepreciationStart = PeriodOf(in.AcquisitionDate)
	}
	switch {
	case asset.Code == "" || asset.Name == "":
		return Asset{}, fmt.Errorf("%w: asset code and name required", ErrInvalidAsset)
	case asset.AcquisitionDate.IsZero():
		return Asset{}, fmt.Errorf("%w: acquisition date required", ErrInvalidAsset)
	case !asset.Cost.IsPositive() || asset.Cost.Exponent() < -s.scale:
		return Asset{}, fmt.Errorf("%w: cost must be positive with at most %d decimals", ErrInvalidAsset, s.scale)
	case asset.Salvage.IsNegative() || asset.Salvage.GreaterThanOrEqual(asset.Cost):
		return Asset{}, fmt.Errorf("%w: salvage must be in [0, cost)", ErrInvalidAsset)
	case asset.UsefulLifeMonths <= 0:
		return Asset{}, fmt.Errorf("%w: useful life must be positive", ErrInvalidAsset)
	case asset.DepreciationStart.Before(PeriodOf(asset.AcquisitionDate)):
		return Asset{}, fmt.Errorf("%w: depreciation cannot start before acquisition", ErrInvalidAsset)
	}
	return asset, nil
}

// GetAsset loads an asset.
func (s *Service) GetAsset(ctx context.Context, scope accounting.Scope, assetID int64) (Asset, error) {
	var asset Asset
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		asset, err = tx.GetAsset(ctx, scope, assetID)
		return err
	})
	return asset, err
}

// ListAssets returns the scope's assets, optionally filtered by status.
func (s *Service) ListAssets(ctx context.Context, scope accounting.Scope, statuses ...AssetStatus) ([]Asset, error) {
	var out []Asset
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListAssets(ctx, scope, statuses...)
		return err
	})
	return out, err
}

// Schedule projects the full depreciation life of an asset.
func (s *Service) Schedule(ctx context.Context, scope accounting.Scope, assetID int64) ([]ScheduleLine, error) {
	asset, err := s.GetAsset(ctx, scope, assetID)
	if err != nil {
		return nil, err
	}
	return BuildSchedule(asset, s.scale), nil
}

// History returns the posted depreciation rows of an asset, oldest first.
func (s *Service) History(ctx context.Context, scope accounting.Scope, assetID int64) ([]Depreciation, error) {
	var out []Depreciation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAsset(ctx, scope, assetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListDepreciations(ctx, scope, assetID)
		return err
	})
	return out, err
}

// RunPeriod depreciates one asset for one period and posts
// Dr expense / Cr accumulated depreciation in the same unit of work.
func (s *Service) RunPeriod(ctx context.Context, scope accounting.Scope, assetID int64, period Period, actor accounting.Actor) (Depreciation, error) {
	if !scope.Valid() {
		return Depreciation{}, accounting.ErrInvalidScope
	}
	var dep Depreciation
	err := s.inTx(ctx, "run_depreciation", func(ctx context.Context, tx Tx) error {
		asset, err := tx.GetAssetForUpdate(ctx, scope, assetID)
		if err != nil {
			return err
		}
		if _, exists, err := tx.GetDepreciation(ctx, scope, asset.ID, period); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: asset %s period %s", ErrAlreadyDepreciated, asset.Code, period)
		}
		if asset.Status == AssetStatusDisposed {
			return fmt.Errorf("%w: asset %s", ErrAssetDisposed, asset.Code)
		}
		if asset.FullyDepreciated() {
			return fmt.Errorf("%w: asset %s", ErrFullyDepreciated, asset.Code)
		}
		if period.Before(asset.DepreciationStart) {
			return fmt.Errorf("%w: asset %s starts %s", ErrPeriodBeforeStart, asset.Code, asset.DepreciationStart)
		}
		expected := asset.DepreciationStart
		if asset.LastPeriod != nil {
			expected = asset.LastPeriod.Next()
		}
		if period != expected {
			return fmt.Errorf("%w: asset %s expects %s, got %s", ErrPeriodOutOfSequence, asset.Code, expected, period)
		}

		n := period.MonthsSince(asset.DepreciationStart) + 1
		amount := periodAmount(asset, asset.Accumulated, n, s.scale)
		dep = Depreciation{
			Scope:       scope,
			AssetID:     asset.ID,
			Period:      period,
			Amount:      amount,
			Accumulated: asset.Accumulated.Add(amount),
			CreatedAt:   s.now(),
		}
		if amount.IsPositive() {
			category, err := tx.GetCategory(ctx, scope, asset.CategoryID)
			if err != nil {
				return err
			}
			entry, err := s.ledger.PostWithin(ctx, tx, scope, accounting.CreateEntryInput{
				Date:         period.End(),
				Memo:         fmt.Sprintf("Depreciation %s %s", asset.Code, period),
				Reference:    asset.Code,
				EntryType:    depreciationEntryType,
				SourceModule: sourceModule,
				SourceID:     depreciationSource(asset.ID, period),
				Lines: []accounting.LineInput{
					{AccountID: category.ExpenseAccountID, Debit: amount, Credit: decimal.Zero},
					{AccountID: category.AccumulatedAccountID, Debit: decimal.Zero, Credit: amount},
				},
			}, actor)
			if err != nil {
				return err
			}
			dep.EntryID = &entry.ID
		}
		dep, err = tx.InsertDepreciation(ctx, dep)
		if err != nil {
			return err
		}

		asset.Accumulated = dep.Accumulated
		asset.LastPeriod = &period
		if asset.Accumulated.GreaterThanOrEqual(asset.DepreciableBase()) {
			asset.Status = AssetStatusFullyDepreciated
		}
		asset.UpdatedAt = dep.CreatedAt
		return tx.UpdateAsset(ctx, asset)
	})
	if err != nil {
		return Depreciation{}, err
	}
	s.logger.InfoContext(ctx, "depreciation posted",
		slog.Int64("asset_id", dep.AssetID),
		slog.String("period", dep.Period.String()),
		slog.String("amount", dep.Amount.String()))
	return dep, nil
}

func depreciationSource(assetID int64, period Period) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("depreciation:%d:%s", assetID, period)))
}

func disposalSource(assetID int64) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("disposal:%d", assetID)))
}

// RunSummary counts the outcome of a batch run.
type RunSummary struct {
	Period  Period
	Posted  int
	Skipped int
	Failed  int
	Errors  []error
}

// RunDue depreciates every active asset of scope for period with bounded
// concurrency. Duplicate and terminal assets count as skips; other failures
// are collected and do not stop the batch.
func (s *Service) RunDue(ctx context.Context, scope accounting.Scope, period Period, actor accounting.Actor) (RunSummary, error) {
	summary := RunSummary{Period: period}
	assets, err := s.ListAssets(ctx, scope, AssetStatusActive)
	if err != nil {
		return summary, err
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, asset := range assets {
		assetID := asset.ID
		g.Go(func() error {
			_, err := s.RunPeriod(gctx, scope, assetID, period, actor)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Posted++
			case skippable(err):
				summary.Skipped++
			default:
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Errorf("asset %d: %w", assetID, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	s.logger.InfoContext(ctx, "depreciation batch finished",
		slog.String("period", period.String()),
		slog.Int("posted", summary.Posted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// DisposeInput describes a sale or write-off.
type DisposeInput struct {
	AssetID  int64
	Date     time.Time
	Proceeds decimal.Decimal
	Accounts accounting.PurposeAccounts
}

// Disposal is the outcome of Dispose.
type Disposal struct {
	Asset Asset
	Entry accounting.JournalEntry
	Gain  decimal.Decimal
}

// Dispose closes an asset: Dr accumulated, Dr cash, Cr asset cost, then the
// difference to a gain (credit) or loss (debit) account.
func (s *Service) Dispose(ctx context.Context, scope accounting.Scope, in DisposeInput, actor accounting.Actor) (Disposal, error) {
	if !scope.Valid() {
		return Disposal{}, accounting.ErrInvalidScope
	}
	if in.Proceeds.IsNegative() {
		return Disposal{}, fmt.Errorf("%w: proceeds cannot be negative", ErrInvalidAsset)
	}
	var out Disposal
	err := s.inTx(ctx, "dispose_asset", func(ctx context.Context, tx Tx) error {
		asset, err := tx.GetAssetForUpdate(ctx, scope, in.AssetID)
		if err != nil {
			return err
		}
		if asset.Status == AssetStatusDisposed {
			return fmt.Errorf("%w: asset %s", ErrAlreadyDisposed, asset.Code)
		}
		date := in.Date
		if date.IsZero() {
			date = s.now().UTC().Truncate(24 * time.Hour)
		}
		if err := checkDisposalDate(asset, date); err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, scope, asset.CategoryID)
		if err != nil {
			return err
		}
		lines, gain, err := disposalLines(asset, category, in)
		if err != nil {
			return err
		}
		entry, err := s.ledger.PostWithin(ctx, tx, scope, accounting.CreateEntryInput{
			Date:         date,
			Memo:         fmt.Sprintf("Disposal %s", asset.Code),
			Reference:    asset.Code,
			EntryType:    disposalEntryType,
			SourceModule: sourceModule,
			SourceID:     disposalSource(asset.ID),
			Lines:        lines,
		}, actor)
		if err != nil {
			return err
		}
		proceeds := in.Proceeds
		entryID := entry.ID
		asset.Status = AssetStatusDisposed
		asset.DisposedAt = &date
		asset.DisposalProceeds = &proceeds
		asset.DisposalEntryID = &entryID
		asset.UpdatedAt = s.now()
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		asset.Version++
		out = Disposal{Asset: asset, Entry: entry, Gain: gain}
		return nil
	})
	if err != nil {
		return Disposal{}, err
	}
	s.logger.InfoContext(ctx, "fixed asset disposed",
		slog.Int64("asset_id", out.Asset.ID),
		slog.String("gain", out.Gain.String()))
	return out, nil
}

// checkDisposalDate rejects dates before acquisition or inside a period that
// already carries a depreciation charge.
func checkDisposalDate(asset Asset, date time.Time) error {
	acquired := asset.AcquisitionDate.UTC().Truncate(24 * time.Hour)
	if date.Before(acquired) {
		return fmt.Errorf("%w: disposal %s precedes acquisition %s", ErrDisposalBeforeDepreciation,
			date.Format("2006-01-02"), acquired.Format("2006-01-02"))
	}
	if asset.LastPeriod != nil && date.Before(asset.LastPeriod.End()) {
		return fmt.Errorf("%w: disposal %s falls before the end of depreciated period %s", ErrDisposalBeforeDepreciation,
			date.Format("2006-01-02"), asset.LastPeriod)
	}
	return nil
}

func disposalLines(asset Asset, category Category, in DisposeInput) ([]accounting.LineInput, decimal.Decimal, error) {
	gain := in.Proceeds.Sub(asset.BookValue())
	lines := make([]accounting.LineInput, 0, 4)
	if asset.Accumulated.IsPositive() {
		lines = append(lines, accounting.LineInput{AccountID: category.AccumulatedAccountID, Debit: asset.Accumulated, Credit: decimal.Zero})
	}
	if in.Proceeds.IsPositive() {
		cash, err := in.Accounts.Resolve(accounting.PurposeCash)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, accounting.LineInput{AccountID: cash, Debit: in.Proceeds, Credit: decimal.Zero})
	}
	lines = append(lines, accounting.LineInput{AccountID: category.AssetAccountID, Debit: decimal.Zero, Credit: asset.Cost})
	switch {
	case gain.IsPositive():
		account, err := resolveOr(category.DisposalGainAccountID, in.Accounts, accounting.PurposeDisposalGain)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, accounting.LineInput{AccountID: account, Debit: decimal.Zero, Credit: gain})
	case gain.IsNegative():
		account, err := resolveOr(category.DisposalLossAccountID, in.Accounts, accounting.PurposeDisposalLoss)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, accounting.LineInput{AccountID: account, Debit: gain.Neg(), Credit: decimal.Zero})
	}
	return lines, gain, nil
}

func resolveOr(id int64, accounts accounting.PurposeAccounts, purpose accounting.Purpose) (int64, error) {
	if id > 0 {
		return id, nil
	}
	return accounts.Resolve(purpose)
}
