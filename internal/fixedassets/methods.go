package fixedassets

import (
	"github.com/shopspring/decimal"
)

// periodAmount returns the depreciation of the n-th life period (1-based)
// given the accumulated amount before it. The result never pushes accumulated
// past cost minus salvage and the last life period takes whatever remains.
func periodAmount(a Asset, accumulated decimal.Decimal, n int, scale int32) decimal.Decimal {
	base := a.DepreciableBase()
	remaining := base.Sub(accumulated)
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	life := a.UsefulLifeMonths
	if n >= life {
		return remaining
	}
	lifeDec := decimal.NewFromInt(int64(life))

	var amount decimal.Decimal
	switch a.Method {
	case MethodDecliningBalance:
		multiplier := a.DecliningMultiplier
		if !multiplier.IsPositive() {
			multiplier = decimal.NewFromInt(defaultDecliningFactor)
		}
		amount = a.Cost.Sub(accumulated).Mul(multiplier).Div(lifeDec)
	case MethodSumOfYearsDigits:
		digits := decimal.NewFromInt(int64(life * (life + 1) / 2))
		amount = base.Mul(decimal.NewFromInt(int64(life - n + 1))).Div(digits)
	default:
		amount = base.Div(lifeDec)
	}
	amount = amount.Round(scale)
	if amount.GreaterThan(remaining) {
		return remaining
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// ScheduleLine is one projected period of an asset's depreciation.
type ScheduleLine struct {
	N           int
	Period      Period
	Amount      decimal.Decimal
	Accumulated decimal.Decimal
	BookValue   decimal.Decimal
}

// BuildSchedule projects the full life of asset from its depreciation start.
// Periods already run are reported as projected, not as posted.
func BuildSchedule(asset Asset, scale int32) []ScheduleLine {
	if asset.UsefulLifeMonths <= 0 {
		return nil
	}
	lines := make([]ScheduleLine, 0, asset.UsefulLifeMonths)
	accumulated := decimal.Zero
	for n := 1; n <= asset.UsefulLifeMonths; n++ {
		amount := periodAmount(asset, accumulated, n, scale)
		accumulated = accumulated.Add(amount)
		lines = append(lines, ScheduleLine{
			N:           n,
			Period:      asset.DepreciationStart.AddMonths(n - 1),
			Amount:      amount,
			Accumulated: accumulated,
			BookValue:   asset.Cost.Sub(accumulated),
		})
	}
	return lines
}
