package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"finance/internal/models"

	"github.com/go-chi/chi/v5"
)

type recurringRequest struct {
	AccountID            string           `json:"account_id"`
	CreditorID           string           `json:"creditor_id"`
	DebtorID             string           `json:"debtor_id"`
	Amount               string           `json:"amount"`
	Description          string           `json:"description"`
	PersonID             *string          `json:"person_id"`
	Tags                 []string         `json:"tags"`
	NextTransactionAt    string           `json:"next_transaction_at"`
	Frequency            models.Frequency `json:"frequency"`
	RemainingRecurrences *int             `json:"remaining_recurrences"`
}

func (req recurringRequest) recurring(kind models.EntryKind, id string) (models.Recurring, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return models.Recurring{}, err
	}
	next, err := parseOptionalDate(req.NextTransactionAt)
	if err != nil {
		return models.Recurring{}, err
	}
	description := strings.TrimSpace(req.Description)
	tags := cleanTags(req.Tags)
	if err := validateText(description, tags); err != nil {
		return models.Recurring{}, err
	}
	rec := models.Recurring{
		ID:                   id,
		Kind:                 kind,
		Amount:               amount,
		Description:          description,
		PersonID:             req.PersonID,
		Tags:                 tags,
		NextTransactionAt:    next,
		Frequency:            req.Frequency,
		RemainingRecurrences: req.RemainingRecurrences,
	}
	if kind == models.KindTransfer {
		rec.CreditorID = req.CreditorID
		rec.DebtorID = req.DebtorID
	} else {
		rec.AccountID = req.AccountID
	}
	return rec, nil
}

func decodeRecurring(w http.ResponseWriter, r *http.Request, id string) (models.Recurring, bool) {
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return models.Recurring{}, false
	}
	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return models.Recurring{}, false
	}
	rec, err := req.recurring(kind, id)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return models.Recurring{}, false
	}
	return rec, true
}

func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	rec, ok := decodeRecurring(w, r, "")
	if !ok {
		return
	}
	created, err := h.deps.Recurring.Create(r.Context(), userID, rec)
	if err != nil {
		h.respondServiceError(w, err, "unable to create recurring definition")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.deps.Recurring.Get(r.Context(), userID, kind, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "unable to load recurring definition")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	rec, ok := decodeRecurring(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	updated, err := h.deps.Recurring.Update(r.Context(), userID, rec)
	if err != nil {
		h.respondServiceError(w, err, "unable to update recurring definition")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Recurring.Delete(r.Context(), userID, kind, chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err, "unable to delete recurring definition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	recs, err := h.deps.Recurring.ListByAccount(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "unable to load recurring definitions")
		return
	}
	if recs == nil {
		recs = []models.Recurring{}
	}
	respondJSON(w, http.StatusOK, recs)
}
