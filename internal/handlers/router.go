package handlers

import (
	"net/http"
	"time"

	"finance/internal/clock"
	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/logging"
	"finance/internal/middleware"
	"finance/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg      config.Config
	txRunner db.TxRunner
	deps     Deps
	hub      *websocket.Hub
	clock    clock.Clock
	logger   *logging.Logger
}

func New(cfg config.Config, txRunner db.TxRunner, deps Deps, hub *websocket.Hub, clk clock.Clock, logger *logging.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		txRunner: txRunner,
		deps:     deps,
		hub:      hub,
		clock:    clk,
		logger:   logger,
	}
}

func (h *Handler) now() time.Time {
	return h.clock.Now()
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	authed := middleware.Auth(h.cfg.JWTSecret)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
		r.With(authed).Put("/family", h.SetFamily)
	})

	router.Route("/accounts", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Put("/", h.UpdateAccount)
			r.Delete("/", h.DeleteAccount)
			r.Get("/entries", h.ListEntries)
			r.Get("/recurring", h.ListRecurring)
			r.Get("/projection", h.Projection)
			r.Get("/average-balance", h.AverageBalance)
			r.Get("/balances", h.ListBalances)
			r.Get("/balances/{date}", h.BalanceForDate)
			r.Get("/history", h.AccountHistory)
			r.Post("/backfill", h.Backfill)
			r.Post("/reconcile", h.ReconcileAccount)
		})
	})

	router.Route("/entries/{kind}", func(r chi.Router) {
		r.Use(authed)
		r.Post("/", h.CreateEntry)
		r.Get("/{id}", h.GetEntry)
		r.Put("/{id}", h.UpdateEntry)
		r.Delete("/{id}", h.DeleteEntry)
	})

	router.Route("/recurring/{kind}", func(r chi.Router) {
		r.Use(authed)
		r.Post("/", h.CreateRecurring)
		r.Get("/{id}", h.GetRecurring)
		r.Put("/{id}", h.UpdateRecurring)
		r.Delete("/{id}", h.DeleteRecurring)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.Use(middleware.RequireAdmin(h.deps.Admins))
		r.Post("/promote", h.PromoteAdmin)
		r.Get("/audit", h.ListAuditLogs)
		r.Post("/reconcile", h.ReconcileAll)
		r.Post("/balances/record", h.RecordBalances)
		r.Post("/recurring/materialize", h.Materialize)
	})

	router.With(authed).Get("/ws/balances", h.WSBalances)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
