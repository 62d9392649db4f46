package fixedassets_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
)

func scheduleAsset(method fixedassets.Method, cost, salvage string, life int) fixedassets.Asset {
	return fixedassets.Asset{
		Cost:                dec(cost),
		Salvage:             dec(salvage),
		UsefulLifeMonths:    life,
		Method:              method,
		DecliningMultiplier: decimal.NewFromInt(2),
		DepreciationStart:   period("2024-01"),
		Accumulated:         decimal.Zero,
	}
}

func TestScheduleSumsToDepreciableBase(t *testing.T) {
	methods := []fixedassets.Method{
		fixedassets.MethodStraightLine,
		fixedassets.MethodDecliningBalance,
		fixedassets.MethodSumOfYearsDigits,
	}
	assets := []struct {
		cost, salvage string
		life          int
	}{
		{"12000", "0", 12},
		{"1000", "0", 7},
		{"10000", "1234.56", 36},
		{"999.99", "100", 60},
		{"50", "49.99", 3},
		{"100", "0", 1},
	}
	for _, m := range methods {
		for _, a := range assets {
			asset := scheduleAsset(m, a.cost, a.salvage, a.life)
			lines := fixedassets.BuildSchedule(asset, 2)
			require.Len(t, lines, a.life)

			sum := decimal.Zero
			for i, line := range lines {
				require.False(t, line.Amount.IsNegative(), "%s %s: negative amount", m, a.cost)
				require.LessOrEqual(t, -line.Amount.Exponent(), int32(2), "%s %s: amount %s exceeds scale", m, a.cost, line.Amount)
				sum = sum.Add(line.Amount)
				require.True(t, line.Accumulated.Equal(sum))
				require.True(t, line.BookValue.Equal(asset.Cost.Sub(sum)))
				require.Equal(t, asset.DepreciationStart.AddMonths(i), line.Period)
			}
			require.Truef(t, sum.Equal(asset.DepreciableBase()), "%s cost %s salvage %s: sum %s", m, a.cost, a.salvage, sum)
			require.True(t, lines[len(lines)-1].BookValue.Equal(asset.Salvage))
		}
	}
}

func TestSumOfYearsDigitsSchedule(t *testing.T) {
	lines := fixedassets.BuildSchedule(scheduleAsset(fixedassets.MethodSumOfYearsDigits, "15000", "0", 5), 2)
	for i, want := range []string{"5000", "4000", "3000", "2000", "1000"} {
		require.Truef(t, lines[i].Amount.Equal(dec(want)), "period %d amount %s", i+1, lines[i].Amount)
	}
}

func TestDecliningBalanceSchedule(t *testing.T) {
	lines := fixedassets.BuildSchedule(scheduleAsset(fixedassets.MethodDecliningBalance, "1000", "0", 4), 2)
	for i, want := range []string{"500", "250", "125", "125"} {
		require.Truef(t, lines[i].Amount.Equal(dec(want)), "period %d amount %s", i+1, lines[i].Amount)
	}
}

func TestBuildScheduleWithoutLife(t *testing.T) {
	require.Empty(t, fixedassets.BuildSchedule(scheduleAsset(fixedassets.MethodStraightLine, "10", "0", 0), 2))
}

func TestPeriodArithmetic(t *testing.T) {
	p := period("2023-12")
	require.Equal(t, "2023-12", p.String())
	require.Equal(t, period("2024-01"), p.Next())
	require.Equal(t, period("2022-12"), p.AddMonths(-12))
	require.Equal(t, 13, period("2025-01").MonthsSince(p))
	require.True(t, p.Before(p.Next()))
	require.False(t, p.Before(p))
	require.Equal(t, time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), p.End())
	require.Equal(t, period("2024-02"), fixedassets.PeriodOf(time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC)))
	require.True(t, fixedassets.Period{}.IsZero())

	for _, bad := range []string{"", "2024", "2024-13", "2024-00", "24-01", "2024/01", "abcd-01"} {
		_, err := fixedassets.ParsePeriod(bad)
		require.ErrorIs(t, err, fixedassets.ErrInvalidAsset, bad)
	}
}
