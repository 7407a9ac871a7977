package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/db"
	"tradesim/internal/handlers"
	"tradesim/internal/quote"
	"tradesim/internal/services"
	"tradesim/internal/store"
	"tradesim/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	startingCash, err := cfg.StartingCashMinor()
	if err != nil {
		logger.Error("invalid starting cash", "error", err)
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	holdings := store.NewHoldingStore(database)
	transactions := store.NewTransactionStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	gateway := quote.NewYahooGateway(cfg.QuoteBaseURL, cfg.QuoteTimeout)

	accountService := services.NewAccountService(txRunner, accounts, audit, startingCash)
	portfolioService := services.NewPortfolioService(txRunner, accounts, holdings, transactions, audit, gateway, hub)
	// Valuation and single-quote trades both finish within QuoteTimeout,
	// leaving the rest of WriteTimeout for the store and the response.
	portfolioService.SetValuationTimeout(cfg.QuoteTimeout)

	handler := handlers.New(cfg, accountService, portfolioService, audit, hub, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.QuoteTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("tradesim API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
