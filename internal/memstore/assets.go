package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
)

func (t *tx) InsertCategory(_ context.Context, c fixedassets.Category) (fixedassets.Category, error) {
	for _, existing := range t.st.categories {
		if existing.Scope == c.Scope && existing.Code == c.Code {
			return fixedassets.Category{}, fmt.Errorf("%w: category %s", fixedassets.ErrDuplicateCode, c.Code)
		}
	}
	c.ID = t.st.next("asset_categories")
	t.st.categories[c.ID] = c
	return c, nil
}

func (t *tx) GetCategory(_ context.Context, scope accounting.Scope, id int64) (fixedassets.Category, error) {
	c, ok := t.st.categories[id]
	if !ok || c.Scope != scope {
		return fixedassets.Category{}, fmt.Errorf("%w: id %d", fixedassets.ErrCategoryNotFound, id)
	}
	return c, nil
}

func (t *tx) ListCategories(_ context.Context, scope accounting.Scope) ([]fixedassets.Category, error) {
	var out []fixedassets.Category
	for _, c := range t.st.categories {
		if c.Scope == scope {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) InsertAsset(_ context.Context, a fixedassets.Asset) (fixedassets.Asset, error) {
	for _, existing := range t.st.assets {
		if existing.Scope == a.Scope && existing.Code == a.Code {
			return fixedassets.Asset{}, fmt.Errorf("%w: asset %s", fixedassets.ErrDuplicateCode, a.Code)
		}
	}
	a.ID = t.st.next("fixed_assets")
	a.Version = 1
	t.st.assets[a.ID] = a
	return a, nil
}

func (t *tx) GetAsset(_ context.Context, scope accounting.Scope, id int64) (fixedassets.Asset, error) {
	a, ok := t.st.assets[id]
	if !ok || a.Scope != scope {
		return fixedassets.Asset{}, fmt.Errorf("%w: id %d", fixedassets.ErrAssetNotFound, id)
	}
	return a, nil
}

func (t *tx) GetAssetForUpdate(ctx context.Context, scope accounting.Scope, id int64) (fixedassets.Asset, error) {
	return t.GetAsset(ctx, scope, id)
}

func (t *tx) UpdateAsset(_ context.Context, a fixedassets.Asset) error {
	current, ok := t.st.assets[a.ID]
	if !ok || current.Scope != a.Scope || current.Version != a.Version {
		return fmt.Errorf("%w: asset %d", accounting.ErrConcurrency, a.ID)
	}
	current.Accumulated = a.Accumulated
	current.LastPeriod = a.LastPeriod
	current.Status = a.Status
	current.DisposedAt = a.DisposedAt
	current.DisposalProceeds = a.DisposalProceeds
	current.DisposalEntryID = a.DisposalEntryID
	current.UpdatedAt = a.UpdatedAt
	current.Version++
	t.st.assets[a.ID] = current
	return nil
}

func (t *tx) ListAssets(_ context.Context, scope accounting.Scope, statuses ...fixedassets.AssetStatus) ([]fixedassets.Asset, error) {
	want := make(map[fixedassets.AssetStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []fixedassets.Asset
	for _, a := range t.st.assets {
		if a.Scope == scope && (len(want) == 0 || want[a.Status]) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetDepreciation(_ context.Context, scope accounting.Scope, assetID int64, period fixedassets.Period) (fixedassets.Depreciation, bool, error) {
	id, ok := t.st.depByKey[depreciationKey{scope: scope, assetID: assetID, period: period}]
	if !ok {
		return fixedassets.Depreciation{}, false, nil
	}
	return t.st.depreciations[id], true, nil
}

func (t *tx) InsertDepreciation(_ context.Context, d fixedassets.Depreciation) (fixedassets.Depreciation, error) {
	key := depreciationKey{scope: d.Scope, assetID: d.AssetID, period: d.Period}
	if _, exists := t.st.depByKey[key]; exists {
		return fixedassets.Depreciation{}, fmt.Errorf("%w: asset %d period %s", fixedassets.ErrAlreadyDepreciated, d.AssetID, d.Period)
	}
	d.ID = t.st.next("fixed_asset_depreciations")
	t.st.depreciations[d.ID] = d
	t.st.depByKey[key] = d.ID
	return d, nil
}

func (t *tx) ListDepreciations(_ context.Context, scope accounting.Scope, assetID int64) ([]fixedassets.Depreciation, error) {
	var out []fixedassets.Depreciation
	for _, d := range t.st.depreciations {
		if d.Scope == scope && d.AssetID == assetID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}
