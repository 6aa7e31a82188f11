package montecarlo_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/atlas-desktop/montecarlo-sim/internal/montecarlo"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"go.uber.org/zap"
)

// scriptedStream replays fixed draws in a loop
type scriptedStream struct {
	draws []float64
	next  int
}

func (s *scriptedStream) Float64() float64 {
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

func seeded(seed int64) *int64 {
	return &seed
}

func newSimulator(recordTrades bool) *montecarlo.Simulator {
	cfg := montecarlo.DefaultSimulatorConfig()
	cfg.RecordTrades = recordTrades
	return montecarlo.NewSimulator(zap.NewNop(), cfg)
}

func baseParams() types.SimulationParameters {
	return types.SimulationParameters{
		InitialBalance:  50000,
		Sizing:          types.FixedAmount(1000),
		WinRate:         0.5,
		RewardRiskRatio: 1.1,
		NumTrades:       200,
		NumRuns:         10,
		Seed:            seeded(42),
	}
}

func TestWinThenLossScenario(t *testing.T) {
	sim := newSimulator(true)
	params := baseParams()
	params.NumTrades = 2

	gen := montecarlo.NewOutcomeGenerator(&scriptedStream{draws: []float64{0.1, 0.9}})
	run, err := sim.SimulateRun(params, gen)
	if err != nil {
		t.Fatalf("SimulateRun failed: %v", err)
	}

	want := []float64{50000, 51100, 50100}
	if !reflect.DeepEqual(run.History, want) {
		t.Fatalf("expected history %v, got %v", want, run.History)
	}
	if run.TerminalBalance != 50100 {
		t.Errorf("expected terminal 50100, got %v", run.TerminalBalance)
	}

	wantDD := (51100.0 - 50100.0) / 51100.0
	if math.Abs(run.MaxDrawdown-wantDD) > 1e-12 {
		t.Errorf("expected max drawdown %v, got %v", wantDD, run.MaxDrawdown)
	}
	if math.Abs(run.MaxDrawdown-0.01957) > 1e-5 {
		t.Errorf("expected max drawdown near 0.01957, got %v", run.MaxDrawdown)
	}

	if !run.Trades[0].Won || run.Trades[1].Won {
		t.Errorf("expected win then loss, got %+v", run.Trades)
	}
	if run.Trades[1].PnL != -1000 {
		t.Errorf("expected loss of 1000, got %v", run.Trades[1].PnL)
	}
}

func TestRunInvariants(t *testing.T) {
	sim := newSimulator(false)

	policies := []types.SizingPolicy{
		types.FixedAmount(1000),
		types.PercentOfBalance(2),
		types.PercentOfInitial(2),
	}

	for _, policy := range policies {
		for _, winRate := range []float64{0, 0.3, 0.5, 0.8, 1} {
			params := baseParams()
			params.Sizing = policy
			params.WinRate = winRate

			batch, err := sim.RunBatch(context.Background(), params)
			if err != nil {
				t.Fatalf("%s/%v: RunBatch failed: %v", policy.Mode, winRate, err)
			}
			if len(batch.Runs) != params.NumRuns {
				t.Fatalf("expected %d runs, got %d", params.NumRuns, len(batch.Runs))
			}

			for i, run := range batch.Runs {
				if run.Index != i {
					t.Errorf("run %d has index %d", i, run.Index)
				}
				if len(run.History) != params.NumTrades+1 {
					t.Errorf("run %d: expected %d history points, got %d", i, params.NumTrades+1, len(run.History))
				}
				if run.History[0] != params.InitialBalance {
					t.Errorf("run %d: history starts at %v", i, run.History[0])
				}
				if run.TerminalBalance != run.History[len(run.History)-1] {
					t.Errorf("run %d: terminal %v != last history %v", i, run.TerminalBalance, run.History[len(run.History)-1])
				}
				if run.MaxDrawdown < 0 || run.MaxDrawdown > 1 {
					t.Errorf("run %d: drawdown %v out of range", i, run.MaxDrawdown)
				}
			}
		}
	}
}

func TestAllWinsStrictlyIncreaseWithZeroDrawdown(t *testing.T) {
	sim := newSimulator(false)

	for _, policy := range []types.SizingPolicy{types.FixedAmount(500), types.PercentOfBalance(2), types.PercentOfInitial(1)} {
		params := baseParams()
		params.Sizing = policy
		params.WinRate = 1

		batch, err := sim.RunBatch(context.Background(), params)
		if err != nil {
			t.Fatalf("RunBatch failed: %v", err)
		}

		for _, run := range batch.Runs {
			for i := 1; i < len(run.History); i++ {
				if !(run.History[i] > run.History[i-1]) {
					t.Fatalf("%s: history not strictly increasing at %d", policy.Mode, i)
				}
			}
			if run.MaxDrawdown != 0 {
				t.Errorf("%s: expected zero drawdown, got %v", policy.Mode, run.MaxDrawdown)
			}
		}
	}
}

func TestAllLossesStrictlyDecrease(t *testing.T) {
	sim := newSimulator(false)

	for _, policy := range []types.SizingPolicy{types.FixedAmount(100), types.PercentOfBalance(2)} {
		params := baseParams()
		params.Sizing = policy
		params.WinRate = 0

		batch, err := sim.RunBatch(context.Background(), params)
		if err != nil {
			t.Fatalf("RunBatch failed: %v", err)
		}

		for _, run := range batch.Runs {
			for i := 1; i < len(run.History); i++ {
				if !(run.History[i] < run.History[i-1]) {
					t.Fatalf("%s: history not strictly decreasing at %d", policy.Mode, i)
				}
			}
		}
	}
}

func TestFixedRiskIsConstant(t *testing.T) {
	sim := newSimulator(true)
	params := baseParams()

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	for _, run := range batch.Runs {
		if len(run.Trades) != params.NumTrades {
			t.Fatalf("expected %d trades, got %d", params.NumTrades, len(run.Trades))
		}
		for i, tr := range run.Trades {
			if tr.RiskAmount != 1000 {
				t.Fatalf("trade %d risked %v", i, tr.RiskAmount)
			}
		}
	}
}

func TestPercentRiskUsesPreTradeBalance(t *testing.T) {
	sim := newSimulator(true)
	params := baseParams()
	params.Sizing = types.PercentOfBalance(2)

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	for _, run := range batch.Runs {
		for i, tr := range run.Trades {
			want := run.History[i] * (2.0 / 100)
			if tr.RiskAmount != want {
				t.Fatalf("trade %d: expected risk %v, got %v", i, want, tr.RiskAmount)
			}
			if tr.Won && tr.PnL != 1.1*tr.RiskAmount {
				t.Fatalf("trade %d: win pnl %v", i, tr.PnL)
			}
			if !tr.Won && tr.PnL != -tr.RiskAmount {
				t.Fatalf("trade %d: loss pnl %v", i, tr.PnL)
			}
		}
	}
}

func TestPercentOfInitialRiskIsConstant(t *testing.T) {
	sim := newSimulator(true)
	params := baseParams()
	params.Sizing = types.PercentOfInitial(2)

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	want := params.InitialBalance * (2.0 / 100)
	for _, run := range batch.Runs {
		for i, tr := range run.Trades {
			if tr.RiskAmount != want {
				t.Fatalf("trade %d: expected %v, got %v", i, want, tr.RiskAmount)
			}
		}
	}
}

func TestBalanceIsNotFloored(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.InitialBalance = 1000
	params.WinRate = 0
	params.NumTrades = 3
	params.NumRuns = 1

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	run := batch.Runs[0]
	want := []float64{1000, 0, -1000, -2000}
	if !reflect.DeepEqual(run.History, want) {
		t.Fatalf("expected %v, got %v", want, run.History)
	}
	if run.MaxDrawdown != 1 {
		t.Errorf("expected drawdown capped at 1, got %v", run.MaxDrawdown)
	}
}

func TestNonPositivePeakContributesNoDrawdown(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.InitialBalance = 0
	params.Sizing = types.FixedAmount(10)
	params.NumTrades = 5

	gen := montecarlo.NewOutcomeGenerator(&scriptedStream{draws: []float64{0.99}})
	run, err := sim.SimulateRun(params, gen)
	if err != nil {
		t.Fatalf("SimulateRun failed: %v", err)
	}

	if run.TerminalBalance != -50 {
		t.Errorf("expected -50, got %v", run.TerminalBalance)
	}
	if run.MaxDrawdown != 0 {
		t.Errorf("expected 0 drawdown, got %v", run.MaxDrawdown)
	}
}

func TestSeededBatchIsReproducible(t *testing.T) {
	sim := newSimulator(true)
	params := baseParams()
	params.Sizing = types.PercentOfBalance(1.5)

	first, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	second, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if !reflect.DeepEqual(first.Runs, second.Runs) {
		t.Error("same seed produced different runs")
	}
	if first.Seed != 42 || second.Seed != 42 {
		t.Errorf("unexpected seeds %d, %d", first.Seed, second.Seed)
	}
	if first.ID == second.ID {
		t.Error("batches should get distinct ids")
	}
}

func TestSequentialStreamContinuesAcrossRuns(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.NumRuns = 3

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	gen := montecarlo.NewOutcomeGenerator(montecarlo.NewStream(42))
	for i := 0; i < params.NumRuns; i++ {
		run, err := sim.SimulateRun(params, gen)
		if err != nil {
			t.Fatalf("SimulateRun failed: %v", err)
		}
		if !reflect.DeepEqual(run.History, batch.Runs[i].History) {
			t.Errorf("run %d does not continue the shared stream", i)
		}
	}

	if reflect.DeepEqual(batch.Runs[0].History, batch.Runs[1].History) {
		t.Error("runs 0 and 1 are identical; the stream was reseeded")
	}
}

func TestParallelBatchIndependentOfWorkerCount(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.NumRuns = 25

	var reference []types.RunRecord
	for _, workers := range []int{2, 3, 8} {
		params.Workers = workers
		batch, err := sim.RunBatch(context.Background(), params)
		if err != nil {
			t.Fatalf("workers=%d: RunBatch failed: %v", workers, err)
		}
		if reference == nil {
			reference = batch.Runs
			continue
		}
		if !reflect.DeepEqual(reference, batch.Runs) {
			t.Errorf("workers=%d produced different runs", workers)
		}
	}

	for i, run := range reference {
		gen := montecarlo.NewOutcomeGenerator(montecarlo.NewStream(montecarlo.DeriveSeed(42, i)))
		want, err := sim.SimulateRun(params, gen)
		if err != nil {
			t.Fatalf("SimulateRun failed: %v", err)
		}
		if !reflect.DeepEqual(want.History, run.History) {
			t.Errorf("run %d does not use its derived stream", i)
		}
	}
}

func TestRunBatchRejectsInvalidParameters(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.WinRate = 1.5
	params.NumRuns = 0

	batch, err := sim.RunBatch(context.Background(), params)
	if batch != nil {
		t.Error("expected no batch")
	}
	if !errors.Is(err, types.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if n := len(types.ParameterErrors(err)); n != 2 {
		t.Errorf("expected 2 parameter errors, got %d", n)
	}
}

func TestRunBatchHonoursCancellation(t *testing.T) {
	sim := newSimulator(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{0, 4} {
		params := baseParams()
		params.Workers = workers
		if _, err := sim.RunBatch(ctx, params); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
	}
}

func TestObserverSeesEveryRun(t *testing.T) {
	sim := newSimulator(false)

	for _, workers := range []int{0, 4} {
		params := baseParams()
		params.Workers = workers

		var mu sync.Mutex
		seen := make(map[int]bool)
		batch, err := sim.RunBatchWithObserver(context.Background(), params, func(run types.RunRecord) {
			mu.Lock()
			seen[run.Index] = true
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("RunBatchWithObserver failed: %v", err)
		}
		if len(seen) != len(batch.Runs) {
			t.Errorf("workers=%d: observed %d of %d runs", workers, len(seen), len(batch.Runs))
		}
	}
}

func TestUnseededBatchRecordsSeed(t *testing.T) {
	sim := newSimulator(false)
	params := baseParams()
	params.Seed = nil
	params.NumRuns = 2

	batch, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	params.Seed = seeded(batch.Seed)
	replay, err := sim.RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if !reflect.DeepEqual(batch.Runs, replay.Runs) {
		t.Error("replaying the recorded seed should reproduce the batch")
	}
}

func TestSimulateRunRejectsNonPositiveTrades(t *testing.T) {
	sim := newSimulator(false)

	for _, n := range []int{0, -5} {
		params := baseParams()
		params.NumTrades = n

		gen := montecarlo.NewOutcomeGenerator(&scriptedStream{draws: []float64{0.1}})
		_, err := sim.SimulateRun(params, gen)

		var pe *types.ParameterError
		if !errors.As(err, &pe) || pe.Field != "num_trades" {
			t.Errorf("NumTrades %d: expected num_trades error, got %v", n, err)
		}
	}
}

func TestCompoundingBatchCanOverflow(t *testing.T) {
	params := baseParams()
	params.Sizing = types.PercentOfBalance(100)
	params.RewardRiskRatio = 2
	params.WinRate = 1
	params.NumTrades = 1000
	params.NumRuns = 1

	batch, err := newSimulator(false).RunBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if batch.Finite() {
		t.Fatal("tripling 50000 a thousand times should overflow float64")
	}
	if !math.IsInf(batch.Runs[0].TerminalBalance, 1) {
		t.Errorf("expected +Inf terminal balance, got %v", batch.Runs[0].TerminalBalance)
	}
	if dd := batch.Runs[0].MaxDrawdown; dd != 0 {
		t.Errorf("a run that never loses has no drawdown, got %v", dd)
	}
}
