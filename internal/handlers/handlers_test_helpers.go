package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"tradesim/internal/auth"
	"tradesim/internal/config"
	"tradesim/internal/models"
	"tradesim/internal/services"
	"tradesim/internal/store"
	"tradesim/internal/websocket"
)

type stubAccountService struct {
	registerFn func(ctx context.Context, username, password, confirmation string) (models.Account, error)
	verifyFn   func(ctx context.Context, username, password string) (models.Account, error)
	accountFn  func(ctx context.Context, accountID string) (models.Account, error)
}

func (s stubAccountService) Register(ctx context.Context, username, password, confirmation string) (models.Account, error) {
	if s.registerFn == nil {
		return models.Account{ID: "acc-1", Username: username}, nil
	}
	return s.registerFn(ctx, username, password, confirmation)
}

func (s stubAccountService) VerifyCredential(ctx context.Context, username, password string) (models.Account, error) {
	if s.verifyFn == nil {
		return models.Account{}, services.ErrInvalidCredential
	}
	return s.verifyFn(ctx, username, password)
}

func (s stubAccountService) Account(ctx context.Context, accountID string) (models.Account, error) {
	if s.accountFn == nil {
		return models.Account{ID: accountID}, nil
	}
	return s.accountFn(ctx, accountID)
}

type stubPortfolioService struct {
	lookupFn    func(ctx context.Context, symbol string) (models.Quote, error)
	buyFn       func(ctx context.Context, accountID, symbol string, shares int64) (services.BuyResult, error)
	sellFn      func(ctx context.Context, accountID, symbol string, shares int64) (services.SellResult, error)
	portfolioFn func(ctx context.Context, accountID string) (services.PortfolioView, error)
	historyFn   func(ctx context.Context, req services.HistoryRequest) (services.HistoryPage, error)
	selfCheckFn func(ctx context.Context, accountID string) (store.Reconciliation, error)
}

func (s stubPortfolioService) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	if s.lookupFn == nil {
		return models.Quote{}, services.ErrUnknownSymbol
	}
	return s.lookupFn(ctx, symbol)
}

func (s stubPortfolioService) Buy(ctx context.Context, accountID, symbol string, shares int64) (services.BuyResult, error) {
	if s.buyFn == nil {
		return services.BuyResult{}, nil
	}
	return s.buyFn(ctx, accountID, symbol, shares)
}

func (s stubPortfolioService) Sell(ctx context.Context, accountID, symbol string, shares int64) (services.SellResult, error) {
	if s.sellFn == nil {
		return services.SellResult{}, nil
	}
	return s.sellFn(ctx, accountID, symbol, shares)
}

func (s stubPortfolioService) Portfolio(ctx context.Context, accountID string) (services.PortfolioView, error) {
	if s.portfolioFn == nil {
		return services.PortfolioView{AccountID: accountID}, nil
	}
	return s.portfolioFn(ctx, accountID)
}

func (s stubPortfolioService) History(ctx context.Context, req services.HistoryRequest) (services.HistoryPage, error) {
	if s.historyFn == nil {
		return services.HistoryPage{Limit: req.Limit, Offset: req.Offset, Order: req.Order}, nil
	}
	return s.historyFn(ctx, req)
}

func (s stubPortfolioService) SelfCheck(ctx context.Context, accountID string) (store.Reconciliation, error) {
	if s.selfCheckFn == nil {
		return store.Reconciliation{AccountID: accountID}, nil
	}
	return s.selfCheckFn(ctx, accountID)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.listFn(ctx, actorID, limit, offset)
}

func newTestHandler(accounts AccountService, portfolio PortfolioService, audit AuditStore) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, accounts, portfolio, audit, websocket.NewHub(), logger)
}

// do sends a request through the full router. An empty accountID sends no
// token.
func do(t *testing.T, h *Handler, method, target, accountID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accountID != "" {
		token, err := auth.GenerateToken("secret", accountID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	resp := decodeBody[errorResponse](t, rr)
	if resp.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, resp.Code, resp.Error)
	}
	return resp
}
