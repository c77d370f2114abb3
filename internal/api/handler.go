// Package api exposes the tracking sessions over HTTP and owns their
// lifecycle on behalf of connected clients.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"delivery-tracking/internal/client"
	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/tracking"
)

type Handler struct {
	mgr *Manager
	lg  *logger.Logger
}

func NewHandler(mgr *Manager, lg *logger.Logger) *Handler {
	return &Handler{mgr: mgr, lg: lg}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Route("/orders/{order_id}", func(r chi.Router) {
		r.Get("/view", h.getOrderView)
		r.Get("/delivery-tracking", h.getDeliveryView)
		r.Post("/track", h.openTracking)
		r.Delete("/track", h.closeTracking)
	})
	return r
}

func (h *Handler) getOrderView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	view, err := h.mgr.OrderView(r.Context(), id, userFrom(r))
	if err != nil {
		h.writeTrackingError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getDeliveryView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	view, route, err := h.mgr.DeliveryView(r.Context(), id)
	if err != nil {
		if errors.Is(err, client.ErrNoActiveDelivery) {
			writeProblem(w, http.StatusNotFound, "no_active_delivery", "no active delivery for this order")
			return
		}
		writeProblem(w, http.StatusBadGateway, "telemetry_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivery": view, "route": route})
}

func (h *Handler) openTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	if err := h.mgr.Open(r.Context(), id, userFrom(r)); err != nil {
		h.writeTrackingError(w, id, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order_id": id, "tracking": true})
}

func (h *Handler) closeTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	h.mgr.Close(id)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "tracking": false})
}

func (h *Handler) writeTrackingError(w http.ResponseWriter, orderID string, err error) {
	if errors.Is(err, tracking.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	h.lg.Error("tracking_request_failed", err, map[string]any{"order_id": orderID})
	writeProblem(w, http.StatusInternalServerError, "internal_error", err.Error())
}

// userFrom extracts the caller identity for the authenticated backend fetch.
// Anonymous requests are allowed; the fetch then goes out without a token.
func userFrom(r *http.Request) domain.UserContext {
	u := domain.UserContext{UserID: r.Header.Get("X-User-ID")}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		u.Token = strings.TrimPrefix(auth, "Bearer ")
	}
	return u
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem keeps the simplified problem+json error shape used across
// the service.
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}
