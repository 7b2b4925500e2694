package feedback

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/middleware"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/predictions/{id}/feedback", h.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/predictions/{id}/feedback", h.handleListForPrediction).Methods(http.MethodGet)
	router.HandleFunc("/feedback/user/{id}", h.handleListForUser).Methods(http.MethodGet)
}

type submitRequest struct {
	FeedbackType string `json:"feedback_type"`
	Comments     string `json:"comments,omitempty"`
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	predictionID := mux.Vars(r)["id"]

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.service.Submit(r.Context(), predictionID, actor, req.FeedbackType, req.Comments)
	if err != nil {
		switch {
		case IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrPredictionNotFound):
			http.Error(w, "prediction not found", http.StatusNotFound)
		default:
			logger.Log.WithError(err).Error("failed to record feedback")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (h *HTTPHandler) handleListForPrediction(w http.ResponseWriter, r *http.Request) {
	predictionID := mux.Vars(r)["id"]

	entries, err := h.service.ListForPrediction(r.Context(), predictionID)
	if err != nil {
		if errors.Is(err, ErrPredictionNotFound) {
			http.Error(w, "prediction not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to list feedback")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	skip, limit := pagination(r, 0, 100)

	entries, err := h.service.ListForUser(r.Context(), userID, skip, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list user feedback")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
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
