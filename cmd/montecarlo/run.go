package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atlas-desktop/montecarlo-sim/internal/montecarlo"
	"github.com/atlas-desktop/montecarlo-sim/internal/report"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
)

func newRunCmd(v *viper.Viper, load loader) *cobra.Command {
	var historyOut, runsOut, tradesOut string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation batch and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			params, err := cfg.Simulation.Request().ToParameters()
			if err != nil {
				for _, pe := range types.ParameterErrors(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s (got %v)\n", pe.Field, pe.Reason, pe.Value)
				}
				return fmt.Errorf("invalid simulation parameters")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			simCfg := montecarlo.DefaultSimulatorConfig()
			simCfg.RecordTrades = cfg.Simulation.RecordTrades || tradesOut != ""
			simulator := montecarlo.NewSimulator(logger, simCfg)

			batch, err := simulator.RunBatch(ctx, params)
			if err != nil {
				return err
			}

			summary := simulator.Summarize(batch)
			report.WriteSummary(cmd.OutOrStdout(), batch, summary, simulator.Percentiles(batch))

			if err := writeCSV(historyOut, batch, report.WriteHistoryCSV); err != nil {
				return err
			}
			if err := writeCSV(runsOut, batch, report.WriteRunsCSV); err != nil {
				return err
			}
			if err := writeCSV(tradesOut, batch, report.WriteTradesCSV); err != nil {
				return err
			}

			logger.Debug("run complete",
				zap.String("batch_id", batch.ID),
				zap.String("history_out", historyOut),
				zap.String("runs_out", runsOut),
				zap.String("trades_out", tradesOut),
			)
			return nil
		},
	}

	def := types.DefaultSimulationRequest()
	flags := cmd.Flags()
	flags.Float64("initial-balance", def.InitialBalance, "Starting account balance")
	flags.String("risk-mode", def.RiskMode, "Risk mode: dollar, percent or percent_initial")
	flags.Float64("risk-value", 0, "Dollars per trade, or percent for the percent modes (0 uses the mode default)")
	flags.Float64("win-rate-pct", def.WinRatePct, "Probability of a winning trade, 0-100")
	flags.Float64("reward-risk-ratio", def.RewardRiskRatio, "Win size as a multiple of the risk")
	flags.Int("num-trades", def.NumTrades, fmt.Sprintf("Trades per run, %d-%d", types.MinTrades, types.MaxTrades))
	flags.Int("num-runs", def.NumRuns, fmt.Sprintf("Runs per batch, %d-%d", types.MinRuns, types.MaxRuns))
	flags.Int("workers", 0, "Run in parallel on this many workers (>1 uses per-run seeds)")
	flags.Int64("seed", types.DefaultSeed, "Random seed, negative for a time-based seed")
	flags.Bool("record-trades", false, "Record per-trade results (exported with --trades-out, streamed over WebSocket)")
	mustBind(v, "simulation", cmd)

	// Output paths are not configuration
	flags.StringVar(&historyOut, "out", "", "Write every run's balance history to this CSV file")
	flags.StringVar(&runsOut, "runs-out", "", "Write one row per run to this CSV file")
	flags.StringVar(&tradesOut, "trades-out", "", "Write every trade to this CSV file (implies --record-trades)")

	return cmd
}

func writeCSV(path string, batch *types.BatchResult, write func(w io.Writer, batch *types.BatchResult) error) error {
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f, batch); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
