package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"finance/internal/services"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type promoteRequest struct {
	Email string `json:"email"`
}

// PromoteAdmin grants admin rights to the user with the given email.
func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target, err := h.deps.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.deps.Admins.Grant(r.Context(), tx, target.ID, &userID); err != nil {
			return err
		}
		return h.deps.Audit.Log(r.Context(), tx, &userID, "admin.promote", "user", target.ID, nil)
	})
	if err != nil {
		h.respondServiceError(w, err, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted", "user_id": target.ID})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := pagination(query.Get("page"), query.Get("limit"), 50)
	rows, err := h.deps.Audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	if rows == nil {
		rows = []store.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type reconcileReport struct {
	Results []services.ReconcileResult `json:"results"`
	Drifted int                        `json:"drifted"`
	Error   string                     `json:"error,omitempty"`
}

// ReconcileAll recomputes every account's cached balance. Partial failures
// still return the accounts that succeeded.
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.deps.Reconcile.ReconcileAll(r.Context())
	report := reconcileReport{Results: results}
	if report.Results == nil {
		report.Results = []services.ReconcileResult{}
	}
	for _, result := range results {
		if !result.Drift.IsZero() {
			report.Drifted++
		}
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Error().Err(err).Msg("reconcile all had failures")
		report.Error = err.Error()
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, report)
}

func (h *Handler) RecordBalances(w http.ResponseWriter, r *http.Request) {
	written, err := h.deps.Snapshots.RecordMonthlyBalances(r.Context())
	payload := map[string]any{"accounts": written}
	status := http.StatusOK
	if err != nil {
		h.logger.Error().Err(err).Msg("record balances had failures")
		payload["error"] = err.Error()
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, payload)
}

func (h *Handler) Materialize(w http.ResponseWriter, r *http.Request) {
	results, err := h.deps.Materializer.TransactAll(r.Context())
	payload := map[string]any{"results": results}
	status := http.StatusOK
	if err != nil {
		h.logger.Error().Err(err).Msg("materialize had failures")
		payload["error"] = err.Error()
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, payload)
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	websocket.ServeWS(w, r, h.hub, userID)
}
