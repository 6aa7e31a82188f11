package montecarlo

import (
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/montanaflynn/stats"
)

// Summarize computes distribution statistics over the runs of batch.
// Standard deviation is the population form, so a single run gives 0.
func Summarize(batch *types.BatchResult) types.SummaryStatistics {
	summary := types.SummaryStatistics{
		NumRuns:        len(batch.Runs),
		InitialBalance: batch.Params.InitialBalance,
	}
	if len(batch.Runs) == 0 {
		return summary
	}

	// Inputs are non-empty past this point, so the stats errors are nil.
	balances := stats.Float64Data(batch.TerminalBalances())
	summary.AverageBalance, _ = stats.Mean(balances)
	summary.MedianBalance, _ = stats.Median(balances)
	summary.MaxBalance, _ = stats.Max(balances)
	summary.MinBalance, _ = stats.Min(balances)
	summary.StdDevBalance, _ = stats.StandardDeviationPopulation(balances)

	drawdowns := stats.Float64Data(batch.MaxDrawdowns())
	avgDD, _ := stats.Mean(drawdowns)
	maxDD, _ := stats.Max(drawdowns)
	minDD, _ := stats.Min(drawdowns)
	summary.AverageDrawdownPct = avgDD * 100
	summary.MaxDrawdownPct = maxDD * 100
	summary.MinDrawdownPct = minDD * 100

	summary.LossProbabilityPct = LossProbability(batch.TerminalBalances(), batch.Params.InitialBalance)

	return summary
}

// LossProbability is the percentage of terminal balances below initialBalance.
func LossProbability(terminal []float64, initialBalance float64) float64 {
	if len(terminal) == 0 {
		return 0
	}

	losses := 0
	for _, b := range terminal {
		if b < initialBalance {
			losses++
		}
	}
	return float64(losses) / float64(len(terminal)) * 100
}

// TerminalPercentiles returns nearest-rank percentiles of the terminal
// balances for each level in [0, 100]. Levels outside that range are skipped.
func TerminalPercentiles(batch *types.BatchResult, levels []float64) []types.Percentile {
	if len(batch.Runs) == 0 {
		return nil
	}

	balances := stats.Float64Data(batch.TerminalBalances())
	out := make([]types.Percentile, 0, len(levels))
	for _, level := range levels {
		v, err := stats.PercentileNearestRank(balances, level)
		if err != nil {
			continue
		}
		out = append(out, types.Percentile{Level: level, Value: v})
	}
	return out
}
