package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"finance/internal/middleware"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/services"

	"github.com/lib/pq"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// respondServiceError maps service and validation errors to status codes.
// Anything unrecognised is logged and reported as a 500 with fallback.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrEntryNotFound),
		errors.Is(err, services.ErrRecurringNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, services.ErrRangeTooLarge),
		errors.Is(err, services.ErrInvalidAccount),
		errors.Is(err, services.ErrMissingSchedule),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrMissingAccount),
		errors.Is(err, models.ErrSameAccountTransfer),
		errors.Is(err, models.ErrUnknownKind),
		errors.Is(err, models.ErrUnknownFrequency),
		errors.Is(err, models.ErrInvalidRemaining),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrTooManyDecimals):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		var pgErr *pq.Error
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				respondError(w, http.StatusConflict, "already exists")
				return
			case "23503":
				respondError(w, http.StatusBadRequest, "referenced account does not exist")
				return
			}
		}
		h.logger.Error().Err(err).Msg(fallback)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
