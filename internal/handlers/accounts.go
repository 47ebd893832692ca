package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"finance/internal/calendar"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/services"
	"finance/internal/validator"

	"github.com/go-chi/chi/v5"
)

type accountRequest struct {
	Name           string             `json:"name"`
	Type           models.AccountType `json:"type"`
	InitialBalance string             `json:"initial_balance"`
	InitialDate    string             `json:"initial_date"`
	Data           models.AccountData `json:"data"`
}

func (req accountRequest) input() (services.AccountInput, error) {
	if err := validator.ValidateAccountName(strings.TrimSpace(req.Name)); err != nil {
		return services.AccountInput{}, err
	}
	if err := validator.ValidateAccountData(req.Data, models.DataInterestRate, models.DataAverageBalanceRequirement); err != nil {
		return services.AccountInput{}, err
	}
	initial, err := parseSignedAmount(req.InitialBalance)
	if err != nil {
		return services.AccountInput{}, err
	}
	initialDate, err := parseOptionalDate(req.InitialDate)
	if err != nil {
		return services.AccountInput{}, err
	}
	return services.AccountInput{
		Name:           req.Name,
		Type:           req.Type,
		InitialBalance: initial,
		InitialDate:    initialDate,
		Data:           req.Data,
	}, nil
}

func decodeAccount(w http.ResponseWriter, r *http.Request) (services.AccountInput, bool) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return services.AccountInput{}, false
	}
	in, err := req.input()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return services.AccountInput{}, false
	}
	return in, true
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	accounts, err := h.deps.Accounts.List(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "unable to load accounts")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	in, ok := decodeAccount(w, r)
	if !ok {
		return
	}
	account, err := h.deps.Accounts.Create(r.Context(), userID, in)
	if err != nil {
		h.respondServiceError(w, err, "unable to create account")
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	in, ok := decodeAccount(w, r)
	if !ok {
		return
	}
	account, err := h.deps.Accounts.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondServiceError(w, err, "unable to update account")
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Accounts.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err, "unable to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visibleAccount loads the {id} account if the caller may see it and writes
// the error response otherwise.
func (h *Handler) visibleAccount(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return models.Account{}, false
	}
	account, err := h.deps.Accounts.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "unable to load account")
		return models.Account{}, false
	}
	return account, true
}

func (h *Handler) Projection(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	start, err := parseDate(query.Get("start"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := parseDate(query.Get("end"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}
	result, err := h.deps.Projection.Calculate(r.Context(), account.ID, start, end)
	if err != nil {
		h.respondServiceError(w, err, "unable to calculate projection")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) AverageBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	asOf := calendar.Day(h.now())
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "as_of: "+err.Error())
			return
		}
		asOf = parsed
	}
	result, err := h.deps.Projection.AverageBalance(r.Context(), account.ID, asOf)
	if err != nil {
		h.respondServiceError(w, err, "unable to calculate average balance")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	balances, err := h.deps.Snapshots.List(r.Context(), account.ID)
	if err != nil {
		h.respondServiceError(w, err, "unable to load balances")
		return
	}
	if balances == nil {
		balances = []models.Balance{}
	}
	respondJSON(w, http.StatusOK, balances)
}

// BalanceForDate reports the actual closing balance of one calendar day.
func (h *Handler) BalanceForDate(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.deps.Snapshots.BalanceForDate(r.Context(), account.ID, date)
	if err != nil {
		h.respondServiceError(w, err, "unable to load balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"account_id": account.ID,
		"date":       calendar.Format(date),
		"balance":    money.Format(balance),
	})
}

func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	months, err := h.deps.Snapshots.BackfillBalancesForAccount(r.Context(), account.ID)
	if err != nil {
		h.respondServiceError(w, err, "unable to backfill balances")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"account_id": account.ID, "months": months})
}

func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	result, err := h.deps.Reconcile.Reconcile(r.Context(), account.ID)
	if err != nil {
		h.respondServiceError(w, err, "unable to reconcile account")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// AccountHistory lists the audit trail recorded against one account.
func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit, offset := pagination(query.Get("page"), query.Get("limit"), 50)
	rows, err := h.deps.Audit.ListByEntity(r.Context(), "account", account.ID, limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "unable to load history")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
