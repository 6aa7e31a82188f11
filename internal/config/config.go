// Package config loads simulator settings from defaults, an optional config
// file, MCSIM_* environment variables and bound command line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix, e.g. MCSIM_SIMULATION_NUM_RUNS
const EnvPrefix = "MCSIM"

// Config is the full application configuration
type Config struct {
	Simulation SimulationConfig   `mapstructure:"simulation"`
	Server     types.ServerConfig `mapstructure:"server"`
	Log        LogConfig          `mapstructure:"log"`
}

// SimulationConfig holds the simulation inputs
type SimulationConfig struct {
	types.SimulationRequest `mapstructure:",squash"`

	Seed         int64 `mapstructure:"seed"` // Negative for a time-based seed
	RecordTrades bool  `mapstructure:"record_trades"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Request returns the simulation request with the seed applied.
func (c SimulationConfig) Request() types.SimulationRequest {
	req := c.SimulationRequest
	req.Seed = nil
	if c.Seed >= 0 {
		seed := c.Seed
		req.Seed = &seed
	}
	return req
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	def := types.DefaultSimulationRequest()
	v.SetDefault("simulation.initial_balance", def.InitialBalance)
	v.SetDefault("simulation.risk_mode", def.RiskMode)
	v.SetDefault("simulation.risk_value", 0)
	v.SetDefault("simulation.win_rate_pct", def.WinRatePct)
	v.SetDefault("simulation.reward_risk_ratio", def.RewardRiskRatio)
	v.SetDefault("simulation.num_trades", def.NumTrades)
	v.SetDefault("simulation.num_runs", def.NumRuns)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.seed", types.DefaultSeed)
	v.SetDefault("simulation.record_trades", false)

	srv := types.DefaultServerConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.websocket_path", srv.WebSocketPath)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.max_connections", srv.MaxConnections)
	v.SetDefault("server.enable_metrics", srv.EnableMetrics)
	v.SetDefault("server.allowed_origins", srv.AllowedOrigins)

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each flag to key under prefix, e.g. "simulation" and
// flag "num-runs" become "simulation.num_runs". Flags only override the
// config when set explicitly.
func BindFlags(v *viper.Viper, prefix string, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if prefix != "" {
			key = prefix + "." + key
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("failed to bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Load reads configFile when given and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}
