// Package httpapi implements the read-only HTTP projection (component
// 4.K): JSON views onto the charge-point and transaction registries,
// routed with go-chi/chi/v5. Every handler reads through a registry's
// snapshot API only — it never observes mid-mutation state.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chargepoint/central-system/internal/chargepoint"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/config"
	"github.com/chargepoint/central-system/internal/transaction"
)

// NewRouter builds the full HTTP route table.
func NewRouter(chargepts *chargepoint.Registry, txns *transaction.Registry, cfg *config.Config, clk clock.Clock) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	h := &handlers{chargepts: chargepts, txns: txns, production: cfg.IsProduction(), clk: clk}

	r.Get("/health", h.health)
	r.Get("/api/stations", h.listStations)
	r.Get("/api/stations/{id}", h.getStation)
	r.Get("/api/transactions", h.listTransactions)
	r.Get("/api/stations/{id}/transactions", h.stationTransactions)

	return r
}

type handlers struct {
	chargepts  *chargepoint.Registry
	txns       *transaction.Registry
	production bool
	clk        clock.Clock
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.clk.NowISO(),
	})
}

func (h *handlers) listStations(w http.ResponseWriter, r *http.Request) {
	stations := h.chargepts.List()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(stations),
		"stations": stations,
	})
}

func (h *handlers) getStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.chargepts.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown charge point")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	txns := h.txns.List()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(txns),
		"transactions": txns,
	})
}

func (h *handlers) stationTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.chargepts.IsRegistered(id) {
		h.writeError(w, http.StatusNotFound, "unknown charge point")
		return
	}
	txns := h.txns.ByStation(id)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chargePointId": id,
		"count":         len(txns),
		"transactions":  txns,
	})
}

// internalError is the generic message every 500 carries in production,
// never leaking the underlying error text.
func (h *handlers) internalError(w http.ResponseWriter, err error) {
	if h.production {
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}
