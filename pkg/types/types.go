// Package types provides shared type definitions for the Monte Carlo simulator.
package types

import (
	"math"
	"time"

	"go.uber.org/multierr"
)

// SizingMode selects how much of the account is put at risk on each trade
type SizingMode string

const (
	// SizingFixed risks the same dollar amount on every trade
	SizingFixed SizingMode = "fixed"
	// SizingPercent risks a percentage of the balance held before each trade
	SizingPercent SizingMode = "percent"
	// SizingPercentInitial risks a percentage of the initial balance, computed once
	SizingPercentInitial SizingMode = "percent_initial"
)

// SizingPolicy is a sizing mode together with its amount or percentage
type SizingPolicy struct {
	Mode  SizingMode `json:"mode"`
	Value float64    `json:"value"` // Dollars for fixed, percent (0-100] otherwise
}

// FixedAmount returns a policy risking amount dollars per trade.
func FixedAmount(amount float64) SizingPolicy {
	return SizingPolicy{Mode: SizingFixed, Value: amount}
}

// PercentOfBalance returns a policy risking pct% of the current balance per trade.
func PercentOfBalance(pct float64) SizingPolicy {
	return SizingPolicy{Mode: SizingPercent, Value: pct}
}

// PercentOfInitial returns a policy risking pct% of the initial balance per trade.
func PercentOfInitial(pct float64) SizingPolicy {
	return SizingPolicy{Mode: SizingPercentInitial, Value: pct}
}

// Validate checks the policy on its own.
func (p SizingPolicy) Validate() error {
	switch p.Mode {
	case SizingFixed:
		if !(p.Value > 0) || math.IsInf(p.Value, 0) {
			return &ParameterError{Field: "risk_value", Value: p.Value, Reason: "fixed risk amount must be positive"}
		}
	case SizingPercent, SizingPercentInitial:
		if !(p.Value > 0) || p.Value > 100 {
			return &ParameterError{Field: "risk_value", Value: p.Value, Reason: "risk percent must be in (0, 100]"}
		}
	default:
		return &ParameterError{Field: "risk_mode", Value: p.Mode, Reason: "unknown sizing mode"}
	}
	return nil
}

// SimulationParameters holds everything needed to run one batch
type SimulationParameters struct {
	InitialBalance  float64      `json:"initial_balance"`
	Sizing          SizingPolicy `json:"sizing"`
	WinRate         float64      `json:"win_rate"` // 0-1
	RewardRiskRatio float64      `json:"reward_risk_ratio"`
	NumTrades       int          `json:"num_trades"`
	NumRuns         int          `json:"num_runs"`
	Seed            *int64       `json:"seed,omitempty"` // nil for a time-based seed

	// Workers > 1 runs the batch in parallel with one derived stream per run.
	Workers int `json:"workers,omitempty"`
}

// Validate reports every invalid field, not just the first one.
func (p SimulationParameters) Validate() error {
	var err error

	if !(p.InitialBalance > 0) || math.IsInf(p.InitialBalance, 0) {
		err = multierr.Append(err, &ParameterError{Field: "initial_balance", Value: p.InitialBalance, Reason: "must be positive"})
	}
	err = multierr.Append(err, p.Sizing.Validate())
	if !(p.WinRate >= 0 && p.WinRate <= 1) {
		err = multierr.Append(err, &ParameterError{Field: "win_rate", Value: p.WinRate, Reason: "must be in [0, 1]"})
	}
	if !(p.RewardRiskRatio > 0) || math.IsInf(p.RewardRiskRatio, 0) {
		err = multierr.Append(err, &ParameterError{Field: "reward_risk_ratio", Value: p.RewardRiskRatio, Reason: "must be positive"})
	}
	if p.NumTrades < 1 {
		err = multierr.Append(err, &ParameterError{Field: "num_trades", Value: p.NumTrades, Reason: "must be at least 1"})
	}
	if p.NumRuns < 1 {
		err = multierr.Append(err, &ParameterError{Field: "num_runs", Value: p.NumRuns, Reason: "must be at least 1"})
	}
	if p.Workers < 0 {
		err = multierr.Append(err, &ParameterError{Field: "workers", Value: p.Workers, Reason: "must not be negative"})
	}

	return err
}

// Parallel reports whether the batch runs on derived per-run streams.
func (p SimulationParameters) Parallel() bool {
	return p.Workers > 1
}

// TradeResult is the outcome of one simulated trade
type TradeResult struct {
	Won        bool    `json:"won"`
	RiskAmount float64 `json:"risk_amount"`
	PnL        float64 `json:"pnl"`
}

// RunRecord is one complete sequence of trades. It is not modified after the run ends.
type RunRecord struct {
	Index           int           `json:"index"`
	History         []float64     `json:"history"` // len NumTrades+1, History[0] is the initial balance
	TerminalBalance float64       `json:"terminal_balance"`
	MaxDrawdown     float64       `json:"max_drawdown"` // Fraction in [0, 1]
	Trades          []TradeResult `json:"trades,omitempty"`
}

// Finite reports whether every balance in the run is a finite number. A
// compounding policy with a high win rate can overflow float64 to +Inf.
func (r RunRecord) Finite() bool {
	for _, b := range r.History {
		if math.IsInf(b, 0) || math.IsNaN(b) {
			return false
		}
	}
	return !math.IsInf(r.TerminalBalance, 0) && !math.IsNaN(r.TerminalBalance)
}

// BatchResult holds every run produced under one set of parameters
type BatchResult struct {
	ID          string               `json:"id"`
	Params      SimulationParameters `json:"params"`
	Seed        int64                `json:"seed"` // Effective seed, including a generated one
	Runs        []RunRecord          `json:"runs"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Duration returns how long the batch took.
func (b *BatchResult) Duration() time.Duration {
	return b.CompletedAt.Sub(b.StartedAt)
}

// Finite reports whether every run stayed finite.
func (b *BatchResult) Finite() bool {
	for _, r := range b.Runs {
		if !r.Finite() {
			return false
		}
	}
	return true
}

// TerminalBalances returns the final balance of each run in run order.
func (b *BatchResult) TerminalBalances() []float64 {
	out := make([]float64, len(b.Runs))
	for i, r := range b.Runs {
		out[i] = r.TerminalBalance
	}
	return out
}

// MaxDrawdowns returns the max drawdown fraction of each run in run order.
func (b *BatchResult) MaxDrawdowns() []float64 {
	out := make([]float64, len(b.Runs))
	for i, r := range b.Runs {
		out[i] = r.MaxDrawdown
	}
	return out
}

// SummaryStatistics summarises a batch. Drawdowns and loss probability are percentages.
type SummaryStatistics struct {
	NumRuns        int     `json:"num_runs"`
	InitialBalance float64 `json:"initial_balance"`

	AverageBalance float64 `json:"average_balance"`
	MedianBalance  float64 `json:"median_balance"`
	MaxBalance     float64 `json:"max_balance"`
	MinBalance     float64 `json:"min_balance"`
	StdDevBalance  float64 `json:"std_dev_balance"`

	AverageDrawdownPct float64 `json:"average_drawdown_pct"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	MinDrawdownPct     float64 `json:"min_drawdown_pct"`

	LossProbabilityPct float64 `json:"loss_probability_pct"`
}

// Percentile is a terminal balance percentile
type Percentile struct {
	Level float64 `json:"level"` // 0-100
	Value float64 `json:"value"`
}
