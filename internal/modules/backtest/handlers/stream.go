package handlers

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/backtester/internal/modules/backtest"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// Stream message types.
const (
	MessageRebalance = "rebalance"
	MessageSummary   = "summary"
	MessageError     = "error"
)

// StreamMessage is one server-to-client websocket message.
type StreamMessage struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// HandleStream handles GET /api/backtests/stream
// The client sends one RunRequest; the server answers with one rebalance
// message per rebalance date, then a summary (or error) message, and closes.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.allowAnyOrigin,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	ctx := r.Context()

	var req RunRequest
	readCtx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.log.Debug().Err(err).Msg("No run request received on stream")
		conn.Close(websocket.StatusPolicyViolation, "expected run request")
		return
	}

	h.log.Info().Str("signal_mode", string(req.SignalMode)).Msg("Streaming backtest")

	// Observer runs synchronously inside the engine: once a write fails the
	// rest of the run is not sent.
	var writeErr error
	send := func(msg StreamMessage) {
		if writeErr != nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		writeErr = wsjson.Write(writeCtx, conn, msg)
	}

	rec, err := h.service.RunStored(ctx, backtest.RunOptions{
		SignalMode: req.SignalMode,
		Observer: func(reb backtest.Rebalance) {
			send(StreamMessage{Type: MessageRebalance, Data: reb})
		},
	})
	if err != nil {
		send(StreamMessage{Type: MessageError, Error: err.Error()})
	} else {
		send(StreamMessage{Type: MessageSummary, Data: map[string]interface{}{
			"id":      rec.ID,
			"summary": rec.Summary,
		}})
	}

	if writeErr != nil {
		h.log.Warn().Err(writeErr).Msg("Stream client went away")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
