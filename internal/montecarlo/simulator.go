// Package montecarlo provides Monte Carlo simulation of a fixed win-rate,
// fixed reward/risk trading strategy.
// Each run draws an independent trade sequence and tracks balance and drawdown;
// a batch collects many runs for distribution statistics.
package montecarlo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/montecarlo-sim/internal/metrics"
	"github.com/atlas-desktop/montecarlo-sim/internal/sizing"
	"github.com/atlas-desktop/montecarlo-sim/internal/workers"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Simulator runs simulation batches
type Simulator struct {
	logger  *zap.Logger
	config  *SimulatorConfig
	metrics *metrics.Metrics
}

// SimulatorConfig configures the simulator
type SimulatorConfig struct {
	PercentileLevels []float64 // Terminal balance percentiles to report, 0-100
	RecordTrades     bool      // Keep per-trade results on each RunRecord
	QueueSize        int       // Worker pool queue size in parallel mode
}

// DefaultSimulatorConfig returns sensible defaults
func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		PercentileLevels: []float64{5, 25, 50, 75, 95},
		RecordTrades:     false,
		QueueSize:        64,
	}
}

// NewSimulator creates a new Monte Carlo simulator
func NewSimulator(logger *zap.Logger, config *SimulatorConfig) *Simulator {
	if config == nil {
		config = DefaultSimulatorConfig()
	}

	return &Simulator{
		logger: logger,
		config: config,
	}
}

// SetMetrics attaches Prometheus collectors
func (s *Simulator) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Metrics returns the attached collectors, possibly nil
func (s *Simulator) Metrics() *metrics.Metrics {
	return s.metrics
}

// RunObserver receives each run as it completes. Calls never overlap but
// arrive out of run order in parallel mode.
type RunObserver func(run types.RunRecord)

// SimulateRun executes one sequence of params.NumTrades trades, drawing
// outcomes from gen. Only the trade count and sizing policy are checked here;
// RunBatch validates the rest.
func (s *Simulator) SimulateRun(params types.SimulationParameters, gen *OutcomeGenerator) (types.RunRecord, error) {
	if params.NumTrades < 1 {
		return types.RunRecord{}, &types.ParameterError{Field: "num_trades", Value: params.NumTrades, Reason: "must be at least 1"}
	}

	sizer, err := sizing.NewPositionSizer(params.Sizing, params.InitialBalance)
	if err != nil {
		return types.RunRecord{}, err
	}

	balance := params.InitialBalance
	peak := balance
	maxDD := 0.0

	history := make([]float64, 1, params.NumTrades+1)
	history[0] = balance

	var trades []types.TradeResult
	if s.config.RecordTrades {
		trades = make([]types.TradeResult, 0, params.NumTrades)
	}

	for i := 0; i < params.NumTrades; i++ {
		risk := sizer.RiskAmount(balance)
		won := gen.Next(params.WinRate)

		pnl := -risk
		if won {
			pnl = params.RewardRiskRatio * risk
		}

		balance += pnl
		history = append(history, balance)

		if balance > peak {
			peak = balance
		}
		if dd := drawdown(peak, balance); dd > maxDD {
			maxDD = dd
		}

		if trades != nil {
			trades = append(trades, types.TradeResult{Won: won, RiskAmount: risk, PnL: pnl})
		}
	}

	return types.RunRecord{
		History:         history,
		TerminalBalance: history[len(history)-1],
		MaxDrawdown:     maxDD,
		Trades:          trades,
	}, nil
}

// drawdown is the fractional decline from peak, capped at 1 once the balance
// is below zero. A non-positive peak contributes no drawdown.
func drawdown(peak, balance float64) float64 {
	if peak <= 0 {
		return 0
	}
	dd := (peak - balance) / peak
	if dd > 1 {
		return 1
	}
	if dd < 0 {
		return 0
	}
	return dd
}

// RunBatch validates params and executes params.NumRuns runs.
func (s *Simulator) RunBatch(ctx context.Context, params types.SimulationParameters) (*types.BatchResult, error) {
	return s.RunBatchWithObserver(ctx, params, nil)
}

// RunBatchWithObserver is RunBatch with a callback for each finished run.
//
// Sequentially, one stream seeded once advances across all runs in order.
// With params.Workers > 1, run i draws from its own stream seeded with
// DeriveSeed(seed, i), so results do not depend on the worker count.
func (s *Simulator) RunBatchWithObserver(ctx context.Context, params types.SimulationParameters, onRun RunObserver) (*types.BatchResult, error) {
	if err := params.Validate(); err != nil {
		s.metrics.ObserveRejected()
		s.logger.Warn("rejected simulation parameters", zap.Error(err))
		return nil, err
	}

	seed := timeSeed()
	if params.Seed != nil {
		seed = *params.Seed
	}

	batch := &types.BatchResult{
		ID:        uuid.NewString(),
		Params:    params,
		Seed:      seed,
		Runs:      make([]types.RunRecord, params.NumRuns),
		StartedAt: time.Now(),
	}

	s.logger.Info("starting Monte Carlo batch",
		zap.String("batch_id", batch.ID),
		zap.Int("num_runs", params.NumRuns),
		zap.Int("num_trades", params.NumTrades),
		zap.String("sizing", string(params.Sizing.Mode)),
		zap.Int64("seed", seed),
		zap.Int("workers", params.Workers),
	)

	emit := func(types.RunRecord) {}
	if onRun != nil {
		var mu sync.Mutex
		emit = func(run types.RunRecord) {
			mu.Lock()
			defer mu.Unlock()
			onRun(run)
		}
	}

	var err error
	if params.Parallel() {
		err = s.runParallel(ctx, batch, emit)
	} else {
		err = s.runSequential(ctx, batch, emit)
	}
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.ID, err)
	}

	batch.CompletedAt = time.Now()
	if !batch.Finite() {
		s.logger.Warn("batch balances overflowed float64",
			zap.String("batch_id", batch.ID),
			zap.Float64("risk_value", params.Sizing.Value),
			zap.Float64("reward_risk_ratio", params.RewardRiskRatio),
		)
	}
	s.metrics.ObserveBatch(string(params.Sizing.Mode), params.Parallel(), params.NumRuns, params.NumTrades, batch.Duration())

	s.logger.Info("Monte Carlo batch complete",
		zap.String("batch_id", batch.ID),
		zap.Duration("elapsed", batch.Duration()),
	)

	return batch, nil
}

func (s *Simulator) runSequential(ctx context.Context, batch *types.BatchResult, emit RunObserver) error {
	gen := NewOutcomeGenerator(NewStream(batch.Seed))

	for i := range batch.Runs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled after %d of %d runs: %w", i, len(batch.Runs), err)
		}

		run, err := s.SimulateRun(batch.Params, gen)
		if err != nil {
			return err
		}
		run.Index = i
		batch.Runs[i] = run
		emit(run)
	}

	return nil
}

func (s *Simulator) runParallel(ctx context.Context, batch *types.BatchResult, emit RunObserver) error {
	cfg := workers.DefaultPoolConfig("montecarlo-" + batch.ID[:8])
	cfg.NumWorkers = min(batch.Params.Workers, len(batch.Runs))
	cfg.QueueSize = s.config.QueueSize

	pool := workers.NewPool(s.logger, cfg)
	pool.Start()
	defer pool.Stop()

	tasks := make([]workers.Task, len(batch.Runs))
	for i := range tasks {
		i := i
		tasks[i] = workers.TaskFunc(func() error {
			gen := NewOutcomeGenerator(NewStream(DeriveSeed(batch.Seed, i)))
			run, err := s.SimulateRun(batch.Params, gen)
			if err != nil {
				return err
			}
			run.Index = i
			batch.Runs[i] = run
			emit(run)
			return nil
		})
	}

	err := pool.RunAll(ctx, tasks)

	stats := pool.Stats()
	s.logger.Debug("parallel runs finished",
		zap.String("batch_id", batch.ID),
		zap.Int("workers", cfg.NumWorkers),
		zap.Int64("completed", stats.TasksCompleted),
		zap.Int64("failed", stats.TasksFailed),
	)

	return err
}

// Summarize computes batch statistics and records the loss probability metric.
func (s *Simulator) Summarize(batch *types.BatchResult) types.SummaryStatistics {
	summary := Summarize(batch)
	s.metrics.ObserveLossProbability(summary.LossProbabilityPct)

	s.logger.Debug("summarized batch",
		zap.String("batch_id", batch.ID),
		zap.Float64("average_balance", summary.AverageBalance),
		zap.Float64("loss_probability_pct", summary.LossProbabilityPct),
	)

	return summary
}

// Percentiles returns the configured terminal balance percentiles of batch.
func (s *Simulator) Percentiles(batch *types.BatchResult) []types.Percentile {
	return TerminalPercentiles(batch, s.config.PercentileLevels)
}
