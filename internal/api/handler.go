package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/service"
)

type Handler struct {
	payments *service.PaymentService
	summary  *service.SummaryService
}

func NewHandler(payments *service.PaymentService, summary *service.SummaryService) *Handler {
	return &Handler{payments: payments, summary: summary}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor resolves the caller's membership in the {class} of the route. It
// writes the error response itself and returns nil when the request must
// stop.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) *domain.Actor {
	classID, ok := pathID(w, r, "class")
	if !ok {
		return nil
	}
	a, err := h.payments.Actor(r.Context(), classID, UserID(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err)
		return nil
	}
	return a
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

// respondWithServiceError maps service errors onto status codes. Unknown
// errors are logged and hidden behind a generic 500.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithDetails(w, http.StatusUnprocessableEntity, "Validation failed", verr.Fields)
	case errors.Is(err, service.ErrNotMember):
		respondWithError(w, http.StatusForbidden, "Not a member of this class")
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrConflict):
		respondWithError(w, http.StatusConflict, "Payment is not awaiting review")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithDetails(w http.ResponseWriter, code int, message string, details map[string]string) {
	respondWithJSON(w, code, map[string]any{"error": message, "details": details})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
