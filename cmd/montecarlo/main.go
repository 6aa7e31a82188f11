// Package main provides the montecarlo command: run a simulation batch from
// the terminal or serve the HTTP/WebSocket API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/montecarlo-sim/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:          "montecarlo",
		Short:        "Monte Carlo simulation of a fixed win-rate trading strategy",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	if err := v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, setupLogger(cfg.Log.Level), nil
	}

	root.AddCommand(newRunCmd(v, load), newServeCmd(v, load))
	return root
}

type loader func() (*config.Config, *zap.Logger, error)

func mustBind(v *viper.Viper, prefix string, cmd *cobra.Command) {
	if err := config.BindFlags(v, prefix, cmd.Flags()); err != nil {
		panic(fmt.Sprintf("%s: %v", cmd.Name(), err))
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		// Logs go to stderr so the run report on stdout stays clean
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
