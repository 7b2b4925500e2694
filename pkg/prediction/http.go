package prediction

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/middleware"
	"github.com/sepsiswatch/platform/pkg/patient"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	// history is registered before the {id} route so mux does not swallow it.
	router.HandleFunc("/predictions/history/{patient_id}", h.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/predictions/{patient_id}", h.handlePredict).Methods(http.MethodPost)
	router.HandleFunc("/predictions/{id}", h.handleGet).Methods(http.MethodGet)
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.ActorFrom(r.Context()); !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}
	patientID := mux.Vars(r)["patient_id"]

	outcome, err := h.service.ScoreAndRecord(r.Context(), patientID)
	if err != nil {
		switch {
		case errors.Is(err, patient.ErrNotFound):
			http.Error(w, "patient not found", http.StatusNotFound)
		case IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Log.WithError(err).WithField("patient_id", patientID).Error("prediction pipeline failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, outcome)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patient_id"]
	skip, limit := pagination(r, 0, 10)

	history, err := h.service.History(r.Context(), patientID, skip, limit)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch prediction history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	pred, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "prediction not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch prediction")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pred)
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
