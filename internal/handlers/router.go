package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"tradesim/internal/config"
	"tradesim/internal/middleware"
	"tradesim/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg       config.Config
	accounts  AccountService
	portfolio PortfolioService
	audit     AuditStore
	streams   *websocket.Endpoint
	logger    *slog.Logger
}

func New(cfg config.Config, accounts AccountService, portfolio PortfolioService, audit AuditStore, hub *websocket.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		accounts:  accounts,
		portfolio: portfolio,
		audit:     audit,
		streams:   websocket.NewEndpoint(hub, splitOrigins(cfg.AllowedOrigins)),
		logger:    logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestLog(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authn := middleware.Auth(h.cfg.JWTSecret)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authn).Get("/me", h.Me)
	})
	router.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/quote", h.Quote)
		r.Post("/trades/buy", h.Buy)
		r.Post("/trades/sell", h.Sell)
		r.Get("/portfolio", h.Portfolio)
		r.Get("/portfolio/self-check", h.SelfCheck)
		r.Get("/history", h.History)
		r.Get("/activity", h.Activity)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret, true)).Get("/ws/portfolio", h.WSPortfolio)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
