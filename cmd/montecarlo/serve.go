package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atlas-desktop/montecarlo-sim/internal/api"
	"github.com/atlas-desktop/montecarlo-sim/internal/config"
	"github.com/atlas-desktop/montecarlo-sim/internal/metrics"
	"github.com/atlas-desktop/montecarlo-sim/internal/montecarlo"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, logger, cfg)
		},
	}

	srv := types.DefaultServerConfig()
	flags := cmd.Flags()
	flags.String("host", srv.Host, "Server host")
	flags.Int("port", srv.Port, "Server port")
	flags.Int("max-connections", srv.MaxConnections, "Maximum concurrent simulations")
	flags.Bool("enable-metrics", srv.EnableMetrics, "Expose Prometheus metrics on /metrics")
	mustBind(v, "server", cmd)

	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	simCfg := montecarlo.DefaultSimulatorConfig()
	simCfg.RecordTrades = cfg.Simulation.RecordTrades
	simulator := montecarlo.NewSimulator(logger, simCfg)
	simulator.SetMetrics(metrics.NewMetrics(reg))

	server := api.NewServer(logger, &cfg.Server, simulator, reg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("metrics", cfg.Server.EnableMetrics),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server stopped")
	return nil
}
