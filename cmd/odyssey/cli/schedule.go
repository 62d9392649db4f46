package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
)

// ScheduleOptions defines the flags of the schedule command.
type ScheduleOptions struct {
	Cost       string
	Salvage    string
	LifeMonths int
	Method     string
	Start      string
	Multiplier string
	Scale      int32
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ScheduleRow is one projected period in JSON output.
type ScheduleRow struct {
	N           int             `json:"n"`
	Period      string          `json:"period"`
	Amount      decimal.Decimal `json:"amount"`
	Accumulated decimal.Decimal `json:"accumulated"`
	BookValue   decimal.Decimal `json:"book_value"`
}

// ScheduleCommand projects a depreciation schedule without touching the database.
func ScheduleCommand(opts ScheduleOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	asset, err := scheduleAsset(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "schedule: %v\n", err)
		return 1
	}
	lines := fixedassets.BuildSchedule(asset, opts.Scale)

	if opts.JSONOutput {
		rows := make([]ScheduleRow, 0, len(lines))
		for _, l := range lines {
			rows = append(rows, ScheduleRow{N: l.N, Period: l.Period.String(), Amount: l.Amount, Accumulated: l.Accumulated, BookValue: l.BookValue})
		}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "schedule: %v\n", err)
			return 1
		}
		return 0
	}

	f := reports.NewAmountFormatter(language.English, opts.Scale)
	tw := tabwriter.NewWriter(opts.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "N\tPERIOD\tAMOUNT\tACCUMULATED\tBOOK VALUE\t")
	for _, l := range lines {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", l.N, l.Period, f.Format(l.Amount), f.Format(l.Accumulated), f.Format(l.BookValue))
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "schedule: %v\n", err)
		return 1
	}
	return 0
}

func scheduleAsset(opts ScheduleOptions) (fixedassets.Asset, error) {
	cost, err := decimal.NewFromString(strings.TrimSpace(opts.Cost))
	if err != nil || !cost.IsPositive() {
		return fixedassets.Asset{}, fmt.Errorf("--cost must be a positive amount")
	}
	salvage := decimal.Zero
	if opts.Salvage != "" {
		if salvage, err = decimal.NewFromString(strings.TrimSpace(opts.Salvage)); err != nil || salvage.IsNegative() || salvage.GreaterThan(cost) {
			return fixedassets.Asset{}, fmt.Errorf("--salvage must be between 0 and cost")
		}
	}
	if opts.LifeMonths <= 0 {
		return fixedassets.Asset{}, fmt.Errorf("--life must be positive")
	}
	method := fixedassets.Method(strings.ToUpper(strings.TrimSpace(opts.Method)))
	if !method.Valid() {
		return fixedassets.Asset{}, fmt.Errorf("unknown method %q", opts.Method)
	}
	start, err := fixedassets.ParsePeriod(strings.TrimSpace(opts.Start))
	if err != nil {
		return fixedassets.Asset{}, fmt.Errorf("--start: %w", err)
	}
	multiplier := decimal.NewFromInt(2)
	if opts.Multiplier != "" {
		if multiplier, err = decimal.NewFromString(opts.Multiplier); err != nil || !multiplier.IsPositive() {
			return fixedassets.Asset{}, fmt.Errorf("--multiplier must be positive")
		}
	}
	return fixedassets.Asset{
		Cost:                cost,
		Salvage:             salvage,
		UsefulLifeMonths:    opts.LifeMonths,
		Method:              method,
		DecliningMultiplier: multiplier,
		DepreciationStart:   start,
		Accumulated:         decimal.Zero,
	}, nil
}
