package fixedassets

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Store opens a unit of work spanning asset rows and the ledger.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx extends the ledger transaction with asset persistence so depreciation
// rows and their journal entries commit together.
type Tx interface {
	accounting.Tx

	InsertCategory(ctx context.Context, category Category) (Category, error)
	GetCategory(ctx context.Context, scope accounting.Scope, id int64) (Category, error)
	ListCategories(ctx context.Context, scope accounting.Scope) ([]Category, error)

	InsertAsset(ctx context.Context, asset Asset) (Asset, error)
	GetAsset(ctx context.Context, scope accounting.Scope, id int64) (Asset, error)
	GetAssetForUpdate(ctx context.Context, scope accounting.Scope, id int64) (Asset, error)
	// UpdateAsset writes accumulated, status, last period and disposal fields
	// when asset.Version is current, then bumps the version.
	UpdateAsset(ctx context.Context, asset Asset) error
	// ListAssets returns assets with the given statuses ordered by id; no
	// statuses means all.
	ListAssets(ctx context.Context, scope accounting.Scope, statuses ...AssetStatus) ([]Asset, error)

	GetDepreciation(ctx context.Context, scope accounting.Scope, assetID int64, period Period) (Depreciation, bool, error)
	// InsertDepreciation fails with ErrAlreadyDepreciated on a duplicate (asset, period).
	InsertDepreciation(ctx context.Context, dep Depreciation) (Depreciation, error)
	ListDepreciations(ctx context.Context, scope accounting.Scope, assetID int64) ([]Depreciation, error)
}
