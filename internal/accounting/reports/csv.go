package reports

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AmountFormatter renders decimal amounts with locale digit grouping without
// going through float64.
type AmountFormatter struct {
	printer *message.Printer
	scale   int32
	decimal string
}

// NewAmountFormatter builds a formatter for tag at the given minor-unit scale.
func NewAmountFormatter(tag language.Tag, scale int32) AmountFormatter {
	p := message.NewPrinter(tag)
	sep := "."
	if s := p.Sprintf("%.1f", 1.5); len(s) == 3 {
		sep = s[1:2]
	}
	return AmountFormatter{printer: p, scale: scale, decimal: sep}
}

// Format renders d, e.g. 1,234,567.50 for English.
func (f AmountFormatter) Format(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(f.scale)
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, err := decimal.NewFromString(intPart)
	if err != nil {
		return d.StringFixed(f.scale)
	}
	var b strings.Builder
	if d.IsNegative() && strings.Trim(fixed, "0.") != "" {
		b.WriteByte('-')
	}
	b.WriteString(f.printer.Sprintf("%d", whole.IntPart()))
	if frac != "" {
		b.WriteString(f.decimal)
		b.WriteString(frac)
	}
	return b.String()
}

// WriteTrialBalanceCSV writes one row per account followed by a totals row.
func WriteTrialBalanceCSV(w io.Writer, tb accounting.TrialBalance, f AmountFormatter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "type", "debit", "credit"}); err != nil {
		return err
	}
	for _, row := range tb.Rows {
		if err := cw.Write([]string{row.Code, row.Name, string(row.Type), f.Format(row.Debit), f.Format(row.Credit)}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"", "TOTAL", "", f.Format(tb.TotalDebit), f.Format(tb.TotalCredit)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
