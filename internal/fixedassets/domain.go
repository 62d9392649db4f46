package fixedassets

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Method enumerates depreciation methods.
type Method string

const (
	MethodStraightLine     Method = "STRAIGHT_LINE"
	MethodDecliningBalance Method = "DECLINING_BALANCE"
	MethodSumOfYearsDigits Method = "SUM_OF_YEARS_DIGITS"
)

const (
	defaultDecliningFactor = 2
	depreciationEntryType  = "DEPRECIATION"
	disposalEntryType      = "ASSET_DISPOSAL"
	sourceModule           = "fixedassets"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodStraightLine, MethodDecliningBalance, MethodSumOfYearsDigits:
		return true
	}
	return false
}

// AssetStatus enumerates asset lifecycle states.
type AssetStatus string

const (
	AssetStatusActive           AssetStatus = "ACTIVE"
	AssetStatusFullyDepreciated AssetStatus = "FULLY_DEPRECIATED"
	AssetStatusDisposed         AssetStatus = "DISPOSED"
)

// Category holds the depreciation policy and ledger accounts of a class of assets.
type Category struct {
	ID                    int64
	Scope                 accounting.Scope
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
	CreatedAt             time.Time
}

// Asset is a depreciable item. Method and multiplier are copied from the
// category at registration so later policy edits do not change its schedule.
type Asset struct {
	ID                  int64
	Scope               accounting.Scope
	CategoryID          int64
	Code                string
	Name                string
	Cost                decimal.Decimal
	Currency            string
	AcquisitionDate     time.Time
	DepreciationStart   Period
	Salvage             decimal.Decimal
	UsefulLifeMonths    int
	Method              Method
	DecliningMultiplier decimal.Decimal
	Accumulated         decimal.Decimal
	LastPeriod          *Period
	Status              AssetStatus
	DisposedAt          *time.Time
	DisposalProceeds    *decimal.Decimal
	DisposalEntryID     *int64
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DepreciableBase is cost minus salvage.
func (a Asset) DepreciableBase() decimal.Decimal {
	return a.Cost.Sub(a.Salvage)
}

// BookValue is cost minus accumulated depreciation.
func (a Asset) BookValue() decimal.Decimal {
	return a.Cost.Sub(a.Accumulated)
}

// FullyDepreciated reports whether accumulated reached the depreciable base.
func (a Asset) FullyDepreciated() bool {
	return a.Status == AssetStatusFullyDepreciated || a.Accumulated.GreaterThanOrEqual(a.DepreciableBase())
}

// Depreciation is one posted period of an asset.
type Depreciation struct {
	ID          int64
	Scope       accounting.Scope
	AssetID     int64
	Period      Period
	Amount      decimal.Decimal
	Accumulated decimal.Decimal
	EntryID     *int64
	CreatedAt   time.Time
}

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || len(y) != 4 || len(m) != 2 {
		return Period{}, fmt.Errorf("%w: period %q must be YYYY-MM", ErrInvalidAsset, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Period{}, fmt.Errorf("%w: period %q must be YYYY-MM", ErrInvalidAsset, s)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: period %q must be YYYY-MM", ErrInvalidAsset, s)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p is unset.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) index() int { return p.Year*12 + int(p.Month) - 1 }

// Next returns the following month.
func (p Period) Next() Period { return p.AddMonths(1) }

// AddMonths shifts p by n months.
func (p Period) AddMonths(n int) Period {
	i := p.index() + n
	return Period{Year: i / 12, Month: time.Month(i%12 + 1)}
}

// Before reports whether p precedes q.
func (p Period) Before(q Period) bool { return p.index() < q.index() }

// MonthsSince returns how many months p is after start.
func (p Period) MonthsSince(start Period) int { return p.index() - start.index() }

// End returns the last calendar day of the period.
func (p Period) End() time.Time {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC)
}
