package sizing_test

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/montecarlo-sim/internal/sizing"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/shopspring/decimal"
)

func TestFixedAmountIgnoresBalance(t *testing.T) {
	ps, err := sizing.NewPositionSizer(types.FixedAmount(1000), 50000)
	if err != nil {
		t.Fatalf("NewPositionSizer failed: %v", err)
	}

	for _, balance := range []float64{50000, 120000, 500, 0, -2500} {
		if got := ps.RiskAmount(balance); got != 1000 {
			t.Errorf("balance %v: expected risk 1000, got %v", balance, got)
		}
	}
}

func TestPercentOfBalanceFollowsCurrentBalance(t *testing.T) {
	ps, err := sizing.NewPositionSizer(types.PercentOfBalance(2), 50000)
	if err != nil {
		t.Fatalf("NewPositionSizer failed: %v", err)
	}

	tests := []struct {
		balance float64
		want    float64
	}{
		{50000, 1000},
		{60000, 1200},
		{25000, 500},
	}

	for _, tt := range tests {
		if got := ps.RiskAmount(tt.balance); got != tt.want {
			t.Errorf("balance %v: expected %v, got %v", tt.balance, tt.want, got)
		}
	}
}

func TestPercentOfInitialIsConstant(t *testing.T) {
	ps, err := sizing.NewPositionSizer(types.PercentOfInitial(2), 50000)
	if err != nil {
		t.Fatalf("NewPositionSizer failed: %v", err)
	}

	for _, balance := range []float64{50000, 60000, 10} {
		if got := ps.RiskAmount(balance); got != 1000 {
			t.Errorf("balance %v: expected 1000, got %v", balance, got)
		}
	}
}

func TestNewPositionSizerRejectsBadPolicy(t *testing.T) {
	bad := []types.SizingPolicy{
		types.FixedAmount(0),
		types.FixedAmount(-5),
		types.PercentOfBalance(0),
		types.PercentOfBalance(100.5),
		types.PercentOfInitial(-1),
		{Mode: "kelly", Value: 1},
	}

	for _, policy := range bad {
		_, err := sizing.NewPositionSizer(policy, 50000)
		if !errors.Is(err, types.ErrInvalidParameter) {
			t.Errorf("%+v: expected ErrInvalidParameter, got %v", policy, err)
		}
	}

	if _, err := sizing.NewPositionSizer(types.PercentOfBalance(100), 50000); err != nil {
		t.Errorf("100%% should be accepted, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	ps, err := sizing.NewPositionSizer(types.PercentOfBalance(1), 50000)
	if err != nil {
		t.Fatalf("NewPositionSizer failed: %v", err)
	}

	q := ps.Quote(12345.678)
	if !q.RiskAmount.Equal(decimal.RequireFromString("123.46")) {
		t.Errorf("expected 123.46, got %s", q.RiskAmount)
	}
	if !q.Compounds {
		t.Error("percent of balance should compound")
	}
	if q.RiskPct < 0.9999 || q.RiskPct > 1.0001 {
		t.Errorf("expected risk pct 1, got %v", q.RiskPct)
	}
}
