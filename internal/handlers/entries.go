package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"finance/internal/models"
	"finance/internal/validator"

	"github.com/go-chi/chi/v5"
)

type entryRequest struct {
	AccountID    string   `json:"account_id"`
	CreditorID   string   `json:"creditor_id"`
	DebtorID     string   `json:"debtor_id"`
	Amount       string   `json:"amount"`
	TransactedAt string   `json:"transacted_at"`
	Description  string   `json:"description"`
	PersonID     *string  `json:"person_id"`
	Tags         []string `json:"tags"`
}

func (req entryRequest) entry(kind models.EntryKind, id string) (models.Entry, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return models.Entry{}, err
	}
	at, err := parseOptionalDate(req.TransactedAt)
	if err != nil {
		return models.Entry{}, err
	}
	description := strings.TrimSpace(req.Description)
	tags := cleanTags(req.Tags)
	if err := validateText(description, tags); err != nil {
		return models.Entry{}, err
	}
	entry := models.Entry{
		ID:           id,
		Kind:         kind,
		Amount:       amount,
		TransactedAt: at,
		Description:  description,
		PersonID:     req.PersonID,
		Tags:         tags,
	}
	if kind == models.KindTransfer {
		entry.CreditorID = req.CreditorID
		entry.DebtorID = req.DebtorID
	} else {
		entry.AccountID = req.AccountID
	}
	return entry, nil
}

func validateText(description string, tags []string) error {
	if err := validator.ValidateDescription(description); err != nil {
		return err
	}
	return validator.ValidateTags(tags)
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// decodeEntry reads the {kind} path parameter and the request body.
func decodeEntry(w http.ResponseWriter, r *http.Request, id string) (models.Entry, bool) {
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return models.Entry{}, false
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return models.Entry{}, false
	}
	entry, err := req.entry(kind, id)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return models.Entry{}, false
	}
	return entry, true
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	entry, ok := decodeEntry(w, r, "")
	if !ok {
		return
	}
	created, err := h.deps.Ledger.Create(r.Context(), userID, entry)
	if err != nil {
		h.respondServiceError(w, err, "unable to create entry")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.deps.Ledger.Get(r.Context(), userID, kind, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "unable to load entry")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	entry, ok := decodeEntry(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if entry.TransactedAt.IsZero() {
		respondError(w, http.StatusBadRequest, "transacted_at is required")
		return
	}
	updated, err := h.deps.Ledger.Update(r.Context(), userID, entry)
	if err != nil {
		h.respondServiceError(w, err, "unable to update entry")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Ledger.Delete(r.Context(), userID, kind, chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err, "unable to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries pages through an account's ledger in transacted_at order.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit, offset := pagination(query.Get("page"), query.Get("limit"), 50)
	entries, err := h.deps.Ledger.List(r.Context(), userID, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "unable to load entries")
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
