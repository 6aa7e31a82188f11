package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/olekukonko/tablewriter"
)

// SummaryRows returns label/value pairs describing a batch and its statistics.
func SummaryRows(batch *types.BatchResult, summary types.SummaryStatistics, percentiles []types.Percentile) [][]string {
	p := batch.Params

	rows := [][]string{
		{"Initial Balance", FormatMoney(p.InitialBalance)},
		{"Risk Per Trade", DescribeSizing(p.Sizing, p.InitialBalance)},
		{"Win Rate", FormatPct(p.WinRate*100, 1)},
		{"Reward/Risk Ratio", strconv.FormatFloat(p.RewardRiskRatio, 'f', -1, 64)},
		{"Trades Per Run", strconv.Itoa(p.NumTrades)},
		{"Runs", strconv.Itoa(summary.NumRuns)},
		{"Seed", strconv.FormatInt(batch.Seed, 10)},
		{"Average Final Balance", FormatMoney(summary.AverageBalance)},
		{"Median Final Balance", FormatMoney(summary.MedianBalance)},
		{"Max Final Balance", FormatMoney(summary.MaxBalance)},
		{"Min Final Balance", FormatMoney(summary.MinBalance)},
		{"Std Dev Final Balance", FormatMoney(summary.StdDevBalance)},
		{"Average Max Drawdown", FormatPct(summary.AverageDrawdownPct, 2)},
		{"Worst Max Drawdown", FormatPct(summary.MaxDrawdownPct, 2)},
		{"Best Max Drawdown", FormatPct(summary.MinDrawdownPct, 2)},
		{"Probability of Loss", FormatPct(summary.LossProbabilityPct, 1)},
	}

	for _, pc := range percentiles {
		rows = append(rows, []string{
			fmt.Sprintf("P%s Final Balance", strconv.FormatFloat(pc.Level, 'f', -1, 64)),
			FormatMoney(pc.Value),
		})
	}

	return rows
}

// WriteSummary renders the summary rows as a table on w.
func WriteSummary(w io.Writer, batch *types.BatchResult, summary types.SummaryStatistics, percentiles []types.Percentile) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.AppendBulk(SummaryRows(batch, summary, percentiles))
	table.Render()
}
