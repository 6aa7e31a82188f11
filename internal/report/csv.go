package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/gocarina/gocsv"
)

// HistoryRow is one balance point of one run
type HistoryRow struct {
	Run     int     `csv:"run"`
	Trade   int     `csv:"trade"`
	Balance float64 `csv:"balance"`
}

// RunRow is the outcome of one run
type RunRow struct {
	Run             int     `csv:"run"`
	TerminalBalance float64 `csv:"terminal_balance"`
	MaxDrawdownPct  float64 `csv:"max_drawdown_pct"`
	Loss            bool    `csv:"loss"`
}

// TradeRow is one recorded trade of one run
type TradeRow struct {
	Run        int     `csv:"run"`
	Trade      int     `csv:"trade"` // 1-based, matching the history index after the trade
	Won        bool    `csv:"won"`
	RiskAmount float64 `csv:"risk_amount"`
	PnL        float64 `csv:"pnl"`
	Balance    float64 `csv:"balance"`
}

// ErrNoTrades is returned when trades were not recorded for the batch
var ErrNoTrades = errors.New("no trades recorded; run with record_trades enabled")

// WriteHistoryCSV writes every run's balance history in long form.
func WriteHistoryCSV(w io.Writer, batch *types.BatchResult) error {
	rows := make([]*HistoryRow, 0, len(batch.Runs)*(batch.Params.NumTrades+1))
	for _, run := range batch.Runs {
		for i, balance := range run.History {
			rows = append(rows, &HistoryRow{Run: run.Index, Trade: i, Balance: balance})
		}
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write history csv: %w", err)
	}
	return nil
}

// WriteRunsCSV writes one row per run.
func WriteRunsCSV(w io.Writer, batch *types.BatchResult) error {
	rows := make([]*RunRow, 0, len(batch.Runs))
	for _, run := range batch.Runs {
		rows = append(rows, &RunRow{
			Run:             run.Index,
			TerminalBalance: run.TerminalBalance,
			MaxDrawdownPct:  run.MaxDrawdown * 100,
			Loss:            run.TerminalBalance < batch.Params.InitialBalance,
		})
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write runs csv: %w", err)
	}
	return nil
}

// WriteTradesCSV writes every recorded trade with the balance after it.
func WriteTradesCSV(w io.Writer, batch *types.BatchResult) error {
	rows := make([]*TradeRow, 0, len(batch.Runs)*batch.Params.NumTrades)
	for _, run := range batch.Runs {
		if len(run.Trades) == 0 {
			return ErrNoTrades
		}
		for i, trade := range run.Trades {
			rows = append(rows, &TradeRow{
				Run:        run.Index,
				Trade:      i + 1,
				Won:        trade.Won,
				RiskAmount: trade.RiskAmount,
				PnL:        trade.PnL,
				Balance:    run.History[i+1],
			})
		}
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write trades csv: %w", err)
	}
	return nil
}
