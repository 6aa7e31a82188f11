// Package report renders simulation batches for people: summary tables,
// CSV exports and chart series.
package report

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/montecarlo-sim/internal/sizing"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMoney formats v as dollars with thousands separators and two decimals.
// Values outside the float64 range print as +Inf, -Inf or NaN.
func FormatMoney(v float64) string {
	if s, ok := nonFinite(v); ok {
		return s
	}
	return FormatDecimal(decimal.NewFromFloat(v))
}

// FormatDecimal formats a dollar amount rounded to cents.
func FormatDecimal(d decimal.Decimal) string {
	d = d.Round(2)
	abs, _ := d.Abs().Float64()

	s := message.NewPrinter(language.English).Sprintf("$%.2f", abs)
	if d.IsNegative() {
		return "-" + s
	}
	return s
}

// FormatPct formats a value that is already a percentage.
func FormatPct(v float64, places int) string {
	if s, ok := nonFinite(v); ok {
		return s
	}
	return fmt.Sprintf("%.*f%%", places, v)
}

func nonFinite(v float64) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "NaN", true
	case math.IsInf(v, 1):
		return "+Inf", true
	case math.IsInf(v, -1):
		return "-Inf", true
	}
	return "", false
}

// DescribeSizing renders a sizing policy for a summary line, quoting the
// first trade's risk as the sizer computes it.
func DescribeSizing(policy types.SizingPolicy, initialBalance float64) string {
	ps, err := sizing.NewPositionSizer(policy, initialBalance)
	if err != nil {
		return string(policy.Mode)
	}
	first := FormatDecimal(ps.Quote(initialBalance).RiskAmount)

	switch policy.Mode {
	case types.SizingFixed:
		return first + " per trade"
	case types.SizingPercent:
		return fmt.Sprintf("%s of current balance (%s on the first trade)", FormatPct(policy.Value, 2), first)
	default:
		return fmt.Sprintf("%s of initial balance (%s per trade)", FormatPct(policy.Value, 2), first)
	}
}
