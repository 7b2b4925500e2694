package alert

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/middleware"
	"github.com/sepsiswatch/platform/pkg/notify"
)

type HTTPHandler struct {
	engine     *Engine
	dispatcher *notify.Dispatcher
	maxBody    int64
}

func NewHTTPHandler(engine *Engine, dispatcher *notify.Dispatcher, maxBody int64) *HTTPHandler {
	return &HTTPHandler{engine: engine, dispatcher: dispatcher, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/alerts/pending", h.handleListPending).Methods(http.MethodGet)
	router.HandleFunc("/alerts/patient/{id}", h.handleListForPatient).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}/status", h.handleUpdateStatus).Methods(http.MethodPut)
	router.HandleFunc("/alerts/{id}/send-notification", h.handleSendNotification).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleListPending(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r, 0, 100)

	alerts, err := h.engine.ListPending(r.Context(), skip, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list pending alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

func (h *HTTPHandler) handleListForPatient(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	skip, limit := pagination(r, 0, 100)

	alerts, err := h.engine.ListForPatient(r.Context(), patientID, skip, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list patient alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	a, err := h.engine.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch alert")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	id := mux.Vars(r)["id"]

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.engine.UpdateStatus(r.Context(), id, req.Status, actor)
	if err != nil {
		switch {
		case IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "alert not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrConflict):
			http.Error(w, "alert was modified concurrently, re-fetch and retry", http.StatusConflict)
		default:
			logger.Log.WithError(err).Error("failed to update alert status")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.ActorFrom(r.Context()); !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}
	id := mux.Vars(r)["id"]

	a, err := h.engine.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch alert")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), a); err != nil {
		logger.Log.WithError(err).WithField("alert_id", id).Error("failed to dispatch notification")
		http.Error(w, "notification dispatch failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "dispatched", "alert_id": id})
}

func pagination(r *http.Request, defSkip, defLimit int) (int, int) {
	skip, limit := defSkip, defLimit
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			skip = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return skip, limit
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
