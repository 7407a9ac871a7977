package handlers

import (
	"context"

	"tradesim/internal/models"
	"tradesim/internal/services"
	"tradesim/internal/store"
)

type AccountService interface {
	Register(ctx context.Context, username, password, confirmation string) (models.Account, error)
	VerifyCredential(ctx context.Context, username, password string) (models.Account, error)
	Account(ctx context.Context, accountID string) (models.Account, error)
}

type PortfolioService interface {
	Lookup(ctx context.Context, symbol string) (models.Quote, error)
	Buy(ctx context.Context, accountID, symbol string, shares int64) (services.BuyResult, error)
	Sell(ctx context.Context, accountID, symbol string, shares int64) (services.SellResult, error)
	Portfolio(ctx context.Context, accountID string) (services.PortfolioView, error)
	History(ctx context.Context, req services.HistoryRequest) (services.HistoryPage, error)
	SelfCheck(ctx context.Context, accountID string) (store.Reconciliation, error)
}

type AuditStore interface {
	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error)
}
