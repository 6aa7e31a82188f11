// Package types provides configuration types for the simulator.
package types

import (
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Input ranges offered to users. The engine itself only needs counts >= 1.
const (
	MinTrades = 50
	MaxTrades = 1000
	MinRuns   = 1
	MaxRuns   = 50
)

// Default request values
const (
	DefaultInitialBalance   = 50000.0
	DefaultRiskDollars      = 1000.0
	DefaultRiskPercent      = 2.0
	DefaultWinRatePct       = 50.0
	DefaultRewardRiskRatio  = 1.1
	DefaultNumTrades        = 500
	DefaultNumRuns          = 20
	DefaultSeed       int64 = 42
)

// Risk modes as users type them
const (
	RiskModeDollar         = "dollar"
	RiskModePercent        = "percent"
	RiskModePercentInitial = "percent_initial"
)

// SimulationRequest is the user-facing form of SimulationParameters.
// Win rate is a percentage and the risk mode is a string.
type SimulationRequest struct {
	InitialBalance  float64 `json:"initial_balance" mapstructure:"initial_balance"`
	RiskMode        string  `json:"risk_mode" mapstructure:"risk_mode"`
	RiskValue       float64 `json:"risk_value" mapstructure:"risk_value"` // 0 picks the mode default
	WinRatePct      float64 `json:"win_rate_pct" mapstructure:"win_rate_pct"`
	RewardRiskRatio float64 `json:"reward_risk_ratio" mapstructure:"reward_risk_ratio"`
	NumTrades       int     `json:"num_trades" mapstructure:"num_trades"`
	NumRuns         int     `json:"num_runs" mapstructure:"num_runs"`
	Seed            *int64  `json:"seed,omitempty" mapstructure:"-"`
	Workers         int     `json:"workers,omitempty" mapstructure:"workers"`
}

// DefaultSimulationRequest returns the stock form values.
func DefaultSimulationRequest() SimulationRequest {
	seed := DefaultSeed
	return SimulationRequest{
		InitialBalance:  DefaultInitialBalance,
		RiskMode:        RiskModeDollar,
		RiskValue:       DefaultRiskDollars,
		WinRatePct:      DefaultWinRatePct,
		RewardRiskRatio: DefaultRewardRiskRatio,
		NumTrades:       DefaultNumTrades,
		NumRuns:         DefaultNumRuns,
		Seed:            &seed,
	}
}

// ParseRiskMode maps a user risk mode onto a sizing mode.
func ParseRiskMode(mode string) (SizingMode, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", RiskModeDollar, string(SizingFixed):
		return SizingFixed, nil
	case RiskModePercent:
		return SizingPercent, nil
	case RiskModePercentInitial:
		return SizingPercentInitial, nil
	default:
		return "", &ParameterError{Field: "risk_mode", Value: mode, Reason: "expected dollar, percent or percent_initial"}
	}
}

// ToParameters converts the request, enforcing the input ranges as well as
// the engine's own validation. All violations are reported together.
func (r SimulationRequest) ToParameters() (SimulationParameters, error) {
	var err error

	mode, modeErr := ParseRiskMode(r.RiskMode)
	err = multierr.Append(err, modeErr)

	riskValue := r.RiskValue
	if riskValue == 0 {
		riskValue = DefaultRiskDollars
		if mode == SizingPercent || mode == SizingPercentInitial {
			riskValue = DefaultRiskPercent
		}
	}

	if !(r.WinRatePct >= 0 && r.WinRatePct <= 100) {
		err = multierr.Append(err, &ParameterError{Field: "win_rate_pct", Value: r.WinRatePct, Reason: "must be in [0, 100]"})
	}
	if r.NumTrades < MinTrades || r.NumTrades > MaxTrades {
		err = multierr.Append(err, &ParameterError{Field: "num_trades", Value: r.NumTrades, Reason: "must be in [50, 1000]"})
	}
	if r.NumRuns < MinRuns || r.NumRuns > MaxRuns {
		err = multierr.Append(err, &ParameterError{Field: "num_runs", Value: r.NumRuns, Reason: "must be in [1, 50]"})
	}

	params := SimulationParameters{
		InitialBalance:  r.InitialBalance,
		Sizing:          SizingPolicy{Mode: mode, Value: riskValue},
		WinRate:         r.WinRatePct / 100,
		RewardRiskRatio: r.RewardRiskRatio,
		NumTrades:       r.NumTrades,
		NumRuns:         r.NumRuns,
		Seed:            r.Seed,
		Workers:         r.Workers,
	}

	reported := make(map[string]bool)
	for _, pe := range ParameterErrors(err) {
		reported[pe.Field] = true
	}
	for _, pe := range ParameterErrors(params.Validate()) {
		if pe.Field == "win_rate" && reported["win_rate_pct"] {
			continue
		}
		if !reported[pe.Field] {
			err = multierr.Append(err, pe)
		}
	}

	return params, err
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	WebSocketPath  string        `json:"websocketPath" mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	MaxConnections int           `json:"maxConnections" mapstructure:"max_connections"`
	EnableMetrics  bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
	AllowedOrigins []string      `json:"allowedOrigins" mapstructure:"allowed_origins"`
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "localhost",
		Port:           8080,
		WebSocketPath:  "/ws/simulations",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxConnections: 100,
		EnableMetrics:  true,
		AllowedOrigins: []string{"*"},
	}
}
