package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all history and backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/{kind}", h.HandleGetHistory) // Stored panel stats
		r.Post("/{kind}", h.HandleImport)    // CSV upload, ?replace=true swaps the panel
		r.Delete("/{kind}", h.HandleDeleteHistory)
	})

	r.Route("/backtests", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleRun)
		r.Get("/stream", h.HandleStream) // WebSocket: live rebalances
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/series", h.HandleSeries)
		r.Delete("/{id}", h.HandleDelete)
	})
}
