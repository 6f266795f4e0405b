// Package handlers provides HTTP handlers for history import and backtest runs.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/loader"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/panels"
)

// MaxImportBytes bounds the size of an uploaded CSV.
const MaxImportBytes = 64 << 20

// HistoryStats reports what is stored for a panel kind.
type HistoryStats interface {
	Stats(kind history.Kind) (*history.Stats, error)
}

// Handler contains HTTP handlers for the backtest API
type Handler struct {
	service        *backtest.Service
	history        HistoryStats
	allowAnyOrigin bool
	log            zerolog.Logger
}

// NewHandler creates a new backtest handler. allowAnyOrigin disables the
// websocket origin check (development only).
func NewHandler(service *backtest.Service, historyStats HistoryStats, allowAnyOrigin bool, log zerolog.Logger) *Handler {
	return &Handler{
		service:        service,
		history:        historyStats,
		allowAnyOrigin: allowAnyOrigin,
		log:            log.With().Str("handler", "backtest").Logger(),
	}
}

// RunRequest is the body of POST /api/backtests and the first stream message.
type RunRequest struct {
	SignalMode backtest.SignalMode `json:"signal_mode"`
}

// HandleImport handles POST /api/history/{kind}
// The body is a wide CSV table with a Date column. By default cells are
// merged into the stored panel; ?replace=true swaps the whole panel.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := history.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := loader.ReadPanel(http.MaxBytesReader(w, r.Body, MaxImportBytes), kind.PanelName())
	if err != nil {
		h.writeError(w, err)
		return
	}

	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		replace, err = strconv.ParseBool(v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "replace must be a boolean",
				"metadata": map[string]interface{}{
					"timestamp": time.Now().Format(time.RFC3339),
				},
			})
			return
		}
	}

	var written int
	if replace {
		written, err = h.service.ReplaceHistory(kind, raw)
	} else {
		written, err = h.service.Import(kind, raw)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	stats, err := h.history.Stats(kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, map[string]interface{}{
		"kind":         kind,
		"replaced":     replace,
		"observations": written,
		"stats":        stats,
	})
}

// HandleGetHistory handles GET /api/history/{kind}
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	kind, err := history.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	stats, err := h.history.Stats(kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, stats)
}

// HandleDeleteHistory handles DELETE /api/history/{kind}
func (h *Handler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	kind, err := history.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	deleted, err := h.service.DeleteHistory(kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"kind":    kind,
		"deleted": deleted,
	})
}

// HandleRun handles POST /api/backtests
// Runs over the stored panels and archives the result. An empty body uses
// the default signal mode.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.service.RunStored(r.Context(), backtest.RunOptions{SignalMode: req.SignalMode})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, map[string]interface{}{
		"id":         rec.ID,
		"created_at": rec.CreatedAt,
		"summary":    rec.Summary,
	})
}

// HandleList handles GET /api/backtests
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	infos, err := h.service.List(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"runs":  infos,
		"count": len(infos),
	})
}

// HandleGet handles GET /api/backtests/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, rec)
}

// HandleSeries handles GET /api/backtests/{id}/series
// ?format=csv returns a Date,Value CSV instead of JSON.
func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+rec.ID+".csv\"")
		w.WriteHeader(http.StatusOK)
		if err := loader.WriteSeries(w, rec.Index); err != nil {
			h.log.Error().Err(err).Str("id", rec.ID).Msg("Failed to write series CSV")
		}
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"id":     rec.ID,
		"series": rec.Index,
	})
}

// HandleDelete handles DELETE /api/backtests/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, history.ErrNoData),
		errors.Is(err, panels.ErrInsufficientHistory),
		errors.Is(err, backtest.ErrNoMarketCapData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, history.ErrUnknownKind),
		errors.Is(err, backtest.ErrUnknownSignalMode),
		errors.Is(err, loader.ErrMissingDateColumn),
		errors.Is(err, loader.ErrInvalidNumber),
		errors.Is(err, panels.ErrEmptyPanel),
		errors.Is(err, panels.ErrNoColumns),
		errors.Is(err, panels.ErrDuplicateDate),
		errors.Is(err, panels.ErrDuplicateColumn),
		errors.Is(err, panels.ErrRowWidth),
		errors.Is(err, panels.ErrInvalidDate):
		return http.StatusBadRequest
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
