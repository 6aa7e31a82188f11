// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/montecarlo-sim/internal/montecarlo"
	"github.com/atlas-desktop/montecarlo-sim/internal/report"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const maxRequestBytes = 1 << 20

// Server is the HTTP/WebSocket API server
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	simulator  *montecarlo.Simulator
	gatherer   prometheus.Gatherer

	// Bounds concurrent simulations across HTTP and WebSocket
	slots chan struct{}
}

// DisplayField is one labelled, formatted summary value
type DisplayField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SimulationResponse is returned for a completed batch
type SimulationResponse struct {
	ID          string                     `json:"id"`
	Seed        int64                      `json:"seed"`
	Params      types.SimulationParameters `json:"params"`
	Summary     types.SummaryStatistics    `json:"summary"`
	Percentiles []types.Percentile         `json:"percentiles"`
	Display     []DisplayField             `json:"display"`
	Chart       *report.Chart              `json:"chart,omitempty"`
	DurationMs  float64                    `json:"duration_ms"`
}

// DefaultsResponse describes the form inputs
type DefaultsResponse struct {
	Defaults types.SimulationRequest `json:"defaults"`
	Limits   map[string][2]float64   `json:"limits"`
	Modes    []string                `json:"risk_modes"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError is one rejected input
type FieldError struct {
	Field  string      `json:"field"`
	Value  interface{} `json:"value"`
	Reason string      `json:"reason"`
}

// NewServer creates a new API server. gatherer may be nil to disable /metrics.
func NewServer(logger *zap.Logger, config *types.ServerConfig, simulator *montecarlo.Simulator, gatherer prometheus.Gatherer) *Server {
	if config == nil {
		config = types.DefaultServerConfig()
	}
	maxConns := config.MaxConnections
	if maxConns < 1 {
		maxConns = 1
	}

	server := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		simulator: simulator,
		gatherer:  gatherer,
		slots:     make(chan struct{}, maxConns),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(config.AllowedOrigins),
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/defaults", s.handleDefaults).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/simulations", s.handleSimulate).Methods(http.MethodPost)

	if s.config.EnableMetrics && s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.HandleFunc(s.config.WebSocketPath, s.handleStream)
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleDefaults returns the form defaults and input ranges
func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DefaultsResponse{
		Defaults: types.DefaultSimulationRequest(),
		Limits: map[string][2]float64{
			"win_rate_pct": {0, 100},
			"num_trades":   {types.MinTrades, types.MaxTrades},
			"num_runs":     {types.MinRuns, types.MaxRuns},
		},
		Modes: []string{types.RiskModeDollar, types.RiskModePercent, types.RiskModePercentInitial},
	})
}

// handleSimulate runs one batch. ?format=csv returns the balance histories as CSV.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	req := types.DefaultSimulationRequest()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	params, err := req.ToParameters()
	if err != nil {
		s.reject(w, err)
		return
	}

	if !s.acquire() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "too many concurrent simulations"})
		return
	}
	defer s.release()

	batch, err := s.simulator.RunBatch(r.Context(), params)
	if err != nil {
		s.failBatch(w, err)
		return
	}
	if !batch.Finite() {
		writeJSON(w, http.StatusUnprocessableEntity, overflowResponse(batch))
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", batch.ID+".csv"))
		if err := report.WriteHistoryCSV(w, batch); err != nil {
			s.logger.Error("failed to write csv", zap.String("batch_id", batch.ID), zap.Error(err))
		}
		return
	}

	chart := report.BuildChart(batch)
	resp := s.buildResponse(batch)
	resp.Chart = &chart
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		s.logger.Error("failed to encode simulation response", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}

func (s *Server) buildResponse(batch *types.BatchResult) SimulationResponse {
	summary := s.simulator.Summarize(batch)
	percentiles := s.simulator.Percentiles(batch)

	rows := report.SummaryRows(batch, summary, percentiles)
	display := make([]DisplayField, len(rows))
	for i, row := range rows {
		display[i] = DisplayField{Label: row[0], Value: row[1]}
	}

	return SimulationResponse{
		ID:          batch.ID,
		Seed:        batch.Seed,
		Params:      batch.Params,
		Summary:     summary,
		Percentiles: percentiles,
		Display:     display,
		DurationMs:  float64(batch.Duration().Microseconds()) / 1000,
	}
}

// reject answers 400 for invalid parameters
func (s *Server) reject(w http.ResponseWriter, err error) {
	s.simulator.Metrics().ObserveRejected()
	writeJSON(w, http.StatusBadRequest, invalidParams(err))
}

func (s *Server) failBatch(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidParameter):
		writeJSON(w, http.StatusBadRequest, invalidParams(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("simulation cancelled", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("simulation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// overflowResponse explains a batch whose balances left the float64 range.
// JSON has no encoding for +Inf or NaN.
func overflowResponse(batch *types.BatchResult) ErrorResponse {
	return ErrorResponse{Error: fmt.Sprintf("batch %s: %s", batch.ID, types.ErrBalanceOverflow)}
}

func invalidParams(err error) ErrorResponse {
	resp := ErrorResponse{Error: types.ErrInvalidParameter.Error()}
	for _, pe := range types.ParameterErrors(err) {
		resp.Details = append(resp.Details, FieldError{Field: pe.Field, Value: pe.Value, Reason: pe.Reason})
	}
	return resp
}

func (s *Server) acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	<-s.slots
}

// writeJSON encodes v before writing the status, so an encoding failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(data, '\n'))
	return err
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
