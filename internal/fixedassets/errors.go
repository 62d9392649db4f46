package fixedassets

import (
	"errors"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// ErrDepreciation is the kind of every depreciation sequencing error.
var ErrDepreciation = errors.New("fixedassets: depreciation error")

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

var (
	// ErrAlreadyDepreciated indicates the (asset, period) row exists.
	ErrAlreadyDepreciated = &kindError{ErrDepreciation, "fixedassets: period already depreciated"}
	// ErrAssetDisposed indicates the asset left the books.
	ErrAssetDisposed = &kindError{ErrDepreciation, "fixedassets: asset disposed"}
	// ErrFullyDepreciated indicates accumulated reached cost minus salvage.
	ErrFullyDepreciated = &kindError{ErrDepreciation, "fixedassets: asset fully depreciated"}
	// ErrPeriodBeforeStart indicates the period precedes the depreciation start.
	ErrPeriodBeforeStart = &kindError{ErrDepreciation, "fixedassets: period before depreciation start"}
	// ErrPeriodOutOfSequence indicates a gap after the last depreciated period.
	ErrPeriodOutOfSequence = &kindError{ErrDepreciation, "fixedassets: period out of sequence"}
	// ErrAlreadyDisposed indicates a repeated disposal.
	ErrAlreadyDisposed = &kindError{ErrDepreciation, "fixedassets: asset already disposed"}
	// ErrDisposalBeforeDepreciation indicates a disposal dated before acquisition
	// or before the end of the last depreciated period.
	ErrDisposalBeforeDepreciation = &kindError{ErrDepreciation, "fixedassets: disposal dated before recorded history"}

	// ErrAssetNotFound indicates a missing asset.
	ErrAssetNotFound = &kindError{accounting.ErrNotFound, "fixedassets: asset not found"}
	// ErrCategoryNotFound indicates a missing category.
	ErrCategoryNotFound = &kindError{accounting.ErrNotFound, "fixedassets: category not found"}
	// ErrInvalidAsset indicates malformed asset or category input.
	ErrInvalidAsset = &kindError{accounting.ErrValidation, "fixedassets: invalid input"}
	// ErrDuplicateCode indicates the asset or category code exists.
	ErrDuplicateCode = &kindError{accounting.ErrValidation, "fixedassets: code already exists"}
)

// skippable reports errors a batch run counts as skips rather than failures.
func skippable(err error) bool {
	return errors.Is(err, ErrAlreadyDepreciated) ||
		errors.Is(err, ErrAssetDisposed) ||
		errors.Is(err, ErrFullyDepreciated) ||
		errors.Is(err, ErrPeriodBeforeStart)
}
