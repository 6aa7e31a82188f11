package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-desktop/montecarlo-sim/internal/sizing"
	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	// Server -> Client messages
	MsgTypeStarted MessageType = "started"
	MsgTypeRun     MessageType = "run"
	MsgTypeSummary MessageType = "summary"
	MsgTypeError   MessageType = "error"
)

// WSMessage is a WebSocket message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// RunMessage carries one completed run
type RunMessage struct {
	Index           int       `json:"index"`
	History         []float64 `json:"history"`
	TerminalBalance float64   `json:"terminal_balance"`
	MaxDrawdownPct  float64   `json:"max_drawdown_pct"`

	Trades []types.TradeResult `json:"trades,omitempty"` // Present when trades are recorded
}

// StartedMessage acknowledges accepted parameters and quotes the first trade's risk
type StartedMessage struct {
	Params types.SimulationParameters `json:"params"`
	Sizing *sizing.SizingResult       `json:"sizing"`
}

// streamConn serializes writes to one connection and remembers the first failure.
type streamConn struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
	err     error
}

func (c *streamConn) send(msgType MessageType, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.err = err
		return err
	}

	msg := WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.err = err
	}
	return c.err
}

// handleStream runs one simulation per connection. The client sends the
// request, then receives a started message, one run message per completed
// run and a final summary, after which the server closes the connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxRequestBytes)
	stream := &streamConn{conn: conn, timeout: s.config.WriteTimeout}

	req, err := readRequest(conn)
	if err != nil {
		stream.send(MsgTypeError, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	params, err := req.ToParameters()
	if err != nil {
		s.simulator.Metrics().ObserveRejected()
		stream.send(MsgTypeError, invalidParams(err))
		return
	}

	if !s.acquire() {
		stream.send(MsgTypeError, ErrorResponse{Error: "too many concurrent simulations"})
		return
	}
	defer s.release()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A closed client shows up as a read error
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	sizer, err := sizing.NewPositionSizer(params.Sizing, params.InitialBalance)
	if err != nil {
		stream.send(MsgTypeError, invalidParams(err))
		return
	}
	started := StartedMessage{Params: params, Sizing: sizer.Quote(params.InitialBalance)}
	if err := stream.send(MsgTypeStarted, started); err != nil {
		return
	}

	// Observer calls are serialized and finish before RunBatchWithObserver returns
	overflowed := false
	batch, err := s.simulator.RunBatchWithObserver(ctx, params, func(run types.RunRecord) {
		if overflowed {
			return
		}
		if !run.Finite() {
			overflowed = true
			stream.send(MsgTypeError, ErrorResponse{Error: types.ErrBalanceOverflow.Error()})
			cancel()
			return
		}

		msg := RunMessage{
			Index:           run.Index,
			History:         run.History,
			TerminalBalance: run.TerminalBalance,
			MaxDrawdownPct:  run.MaxDrawdown * 100,
			Trades:          run.Trades,
		}
		if err := stream.send(MsgTypeRun, msg); err != nil {
			cancel()
		}
	})
	if overflowed {
		return
	}
	if err != nil {
		s.logger.Info("streamed simulation stopped", zap.Error(err))
		stream.send(MsgTypeError, ErrorResponse{Error: err.Error()})
		return
	}

	if err := stream.send(MsgTypeSummary, s.buildResponse(batch)); err != nil {
		s.logger.Debug("client went away before summary", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	stream.mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
	stream.mu.Unlock()
}

// readRequest decodes the single request frame, rejecting unknown fields
// like the HTTP endpoint does. Omitted fields keep their defaults.
func readRequest(conn *websocket.Conn) (types.SimulationRequest, error) {
	req := types.DefaultSimulationRequest()

	_, r, err := conn.NextReader()
	if err != nil {
		return req, err
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}
