// Package sizing provides position sizing for simulated trades.
// Supports: fixed dollar risk, percent of current balance, percent of initial balance.
package sizing

import (
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/shopspring/decimal"
)

// PositionSizer computes the dollar amount at risk for each trade of one run
type PositionSizer struct {
	policy         types.SizingPolicy
	initialBalance float64
	fixedRisk      float64 // Precomputed for fixed and percent_initial
}

// NewPositionSizer creates a sizer for a run starting at initialBalance
func NewPositionSizer(policy types.SizingPolicy, initialBalance float64) (*PositionSizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	ps := &PositionSizer{
		policy:         policy,
		initialBalance: initialBalance,
	}

	switch policy.Mode {
	case types.SizingFixed:
		ps.fixedRisk = policy.Value
	case types.SizingPercentInitial:
		ps.fixedRisk = initialBalance * (policy.Value / 100)
	}

	return ps, nil
}

// RiskAmount returns the amount risked on the next trade given the balance
// held before it. Balances are never clamped, so a percent policy on a
// negative balance yields a negative amount.
func (ps *PositionSizer) RiskAmount(currentBalance float64) float64 {
	if ps.policy.Mode == types.SizingPercent {
		return currentBalance * (ps.policy.Value / 100)
	}
	return ps.fixedRisk
}

// SizingResult describes the risk on a trade for display
type SizingResult struct {
	Mode       types.SizingMode `json:"mode"`
	RiskAmount decimal.Decimal  `json:"risk_amount"` // Dollar risk, rounded to cents
	RiskPct    float64          `json:"risk_pct"`    // Risk as % of the balance used
	Compounds  bool             `json:"compounds"`   // Risk follows the balance
}

// Quote describes the risk the sizer would take at currentBalance, which
// must be finite.
func (ps *PositionSizer) Quote(currentBalance float64) *SizingResult {
	risk := ps.RiskAmount(currentBalance)

	result := &SizingResult{
		Mode:       ps.policy.Mode,
		RiskAmount: decimal.NewFromFloat(risk).Round(2),
		Compounds:  ps.policy.Mode == types.SizingPercent,
	}

	if currentBalance != 0 {
		result.RiskPct = risk / currentBalance * 100
	}

	return result
}
