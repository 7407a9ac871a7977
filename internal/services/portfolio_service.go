package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tradesim/internal/db"
	"tradesim/internal/models"
	"tradesim/internal/money"
	"tradesim/internal/quote"
	"tradesim/internal/store"
	"tradesim/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	DefaultValuationTimeout = 8 * time.Second
	valuationWorkers        = 4
)

type PortfolioService struct {
	txRunner         db.TxRunner
	accounts         AccountStore
	holdings         HoldingStore
	transactions     TransactionStore
	audit            AuditStore
	quotes           quote.Gateway
	hub              PortfolioHub
	valuationTimeout time.Duration
}

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	UpdateCash(ctx context.Context, tx store.Execer, accountID string, cash int64) error
	Reconcile(ctx context.Context, accountID string) (store.Reconciliation, error)
}

type HoldingStore interface {
	Get(ctx context.Context, accountID, symbol string) (models.Holding, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID, symbol string) (models.Holding, error)
	Upsert(ctx context.Context, tx store.Getter, h models.Holding) (int64, error)
	UpdateShares(ctx context.Context, tx store.Execer, accountID, symbol string, shares int64) error
	Delete(ctx context.Context, tx store.Execer, accountID, symbol string) error
	ListByAccount(ctx context.Context, accountID string) ([]models.Holding, error)
}

type TransactionStore interface {
	Append(ctx context.Context, tx store.Getter, input store.TransactionInput) (models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, order store.SortOrder, limit, offset int) ([]models.Transaction, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type PortfolioHub interface {
	BroadcastPortfolio(accountID string, update websocket.PortfolioUpdate)
}

func NewPortfolioService(txRunner db.TxRunner, accounts AccountStore, holdings HoldingStore, transactions TransactionStore, audit AuditStore, quotes quote.Gateway, hub PortfolioHub) *PortfolioService {
	return &PortfolioService{
		txRunner:     txRunner,
		accounts:     accounts,
		holdings:     holdings,
		transactions: transactions,
		audit:        audit,
		quotes:       quotes,
		hub:          hub,

		valuationTimeout: DefaultValuationTimeout,
	}
}

// SetValuationTimeout bounds how long Portfolio waits on quotes in total.
// Rows still unpriced when it expires are valued at zero.
func (s *PortfolioService) SetValuationTimeout(d time.Duration) {
	if d > 0 {
		s.valuationTimeout = d
	}
}

type BuyResult struct {
	TransactionID string `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Shares        int64  `json:"shares"`
	Price         int64  `json:"price"`
	Total         int64  `json:"total"`
	CashAfter     int64  `json:"cash_after"`
	SharesAfter   int64  `json:"shares_after"`
}

type SellResult struct {
	TransactionID string `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Shares        int64  `json:"shares"`
	Price         int64  `json:"price"`
	Proceeds      int64  `json:"proceeds"`
	CashAfter     int64  `json:"cash_after"`
	SharesAfter   int64  `json:"shares_after"`
}

// Lookup resolves a symbol for display. Any gateway failure is reported as
// ErrUnknownSymbol.
func (s *PortfolioService) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return models.Quote{}, ErrUnknownSymbol
	}
	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		slog.DebugContext(ctx, "quote lookup failed", "symbol", symbol, "error", err)
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if q.Price <= 0 {
		return models.Quote{}, fmt.Errorf("%w: %s has no price", ErrUnknownSymbol, symbol)
	}
	return q, nil
}

// Buy debits cash and credits the position at the current quote. The quote
// is taken before the transaction opens; everything after it commits or
// rolls back as one unit.
func (s *PortfolioService) Buy(ctx context.Context, accountID, symbol string, shares int64) (BuyResult, error) {
	if shares <= 0 {
		return BuyResult{}, ErrInvalidQuantity
	}
	symbol = quote.NormalizeSymbol(symbol)
	q, err := s.Lookup(ctx, symbol)
	if err != nil {
		return BuyResult{}, err
	}
	if shares > math.MaxInt64/q.Price {
		return BuyResult{}, ErrInvalidQuantity
	}
	total := q.Price * shares

	// Positions are keyed by the symbol the account traded, not the one the
	// gateway echoes back, so a later Sell of the same input finds them.
	result := BuyResult{
		Symbol: symbol,
		Name:   q.Name,
		Shares: shares,
		Price:  q.Price,
		Total:  total,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return accountErr(err)
		}
		if acc.Cash < total {
			return &TradeError{Op: "buy", Symbol: symbol, Requested: total, Available: acc.Cash, Err: ErrInsufficientFunds}
		}
		result.CashAfter = acc.Cash - total
		if err := s.accounts.UpdateCash(ctx, tx, accountID, result.CashAfter); err != nil {
			return err
		}
		result.SharesAfter, err = s.holdings.Upsert(ctx, tx, models.Holding{
			AccountID: accountID,
			Symbol:    symbol,
			Name:      q.Name,
			Shares:    shares,
		})
		if err != nil {
			return err
		}
		row, err := s.transactions.Append(ctx, tx, store.TransactionInput{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Symbol:    symbol,
			Shares:    models.SignedShares(models.TradeBuy, shares),
			Price:     q.Price,
			Type:      models.TradeBuy,
		})
		if err != nil {
			return err
		}
		result.TransactionID = row.ID
		return s.logTrade(ctx, tx, accountID, row)
	})
	if err != nil {
		return BuyResult{}, classify("buy", err)
	}
	slog.InfoContext(ctx, "buy executed", "account_id", accountID, "symbol", symbol, "shares", shares, "total", money.FormatMinor(total))
	s.hub.BroadcastPortfolio(accountID, websocket.PortfolioUpdate{
		Type:        string(models.TradeBuy),
		Symbol:      symbol,
		Shares:      shares,
		SharesAfter: result.SharesAfter,
		Price:       money.FormatMinor(q.Price),
		Cash:        money.FormatMinor(result.CashAfter),
	})
	return result, nil
}

// Sell credits cash and reduces the position. Ownership is checked before
// the quote is fetched, and checked again under lock before any write.
func (s *PortfolioService) Sell(ctx context.Context, accountID, symbol string, shares int64) (SellResult, error) {
	if shares <= 0 {
		return SellResult{}, ErrInvalidQuantity
	}
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return SellResult{}, ErrUnknownSymbol
	}
	held, err := s.holdings.Get(ctx, accountID, symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return SellResult{}, &TradeError{Op: "sell", Symbol: symbol, Requested: shares, Err: ErrInsufficientShares}
	case err != nil:
		return SellResult{}, classify("sell", err)
	case held.Shares < shares:
		return SellResult{}, &TradeError{Op: "sell", Symbol: symbol, Requested: shares, Available: held.Shares, Err: ErrInsufficientShares}
	}

	q, err := s.Lookup(ctx, symbol)
	if err != nil {
		return SellResult{}, err
	}
	if shares > math.MaxInt64/q.Price {
		return SellResult{}, ErrInvalidQuantity
	}
	proceeds := q.Price * shares

	result := SellResult{
		Symbol:   symbol,
		Name:     held.Name,
		Shares:   shares,
		Price:    q.Price,
		Proceeds: proceeds,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return accountErr(err)
		}
		h, err := s.holdings.GetForUpdate(ctx, tx, accountID, symbol)
		if errors.Is(err, store.ErrNotFound) {
			return &TradeError{Op: "sell", Symbol: symbol, Requested: shares, Err: ErrInsufficientShares}
		}
		if err != nil {
			return err
		}
		if h.Shares < shares {
			return &TradeError{Op: "sell", Symbol: symbol, Requested: shares, Available: h.Shares, Err: ErrInsufficientShares}
		}
		if acc.Cash > math.MaxInt64-proceeds {
			return &TradeError{Op: "sell", Symbol: symbol, Requested: proceeds, Available: math.MaxInt64 - acc.Cash, Err: ErrCashLimit}
		}

		result.SharesAfter = h.Shares - shares
		if result.SharesAfter == 0 {
			err = s.holdings.Delete(ctx, tx, accountID, symbol)
		} else {
			err = s.holdings.UpdateShares(ctx, tx, accountID, symbol, result.SharesAfter)
		}
		if err != nil {
			return err
		}
		result.CashAfter = acc.Cash + proceeds
		if err := s.accounts.UpdateCash(ctx, tx, accountID, result.CashAfter); err != nil {
			return err
		}
		row, err := s.transactions.Append(ctx, tx, store.TransactionInput{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Symbol:    symbol,
			Shares:    models.SignedShares(models.TradeSell, shares),
			Price:     q.Price,
			Type:      models.TradeSell,
		})
		if err != nil {
			return err
		}
		result.TransactionID = row.ID
		return s.logTrade(ctx, tx, accountID, row)
	})
	if err != nil {
		return SellResult{}, classify("sell", err)
	}
	slog.InfoContext(ctx, "sell executed", "account_id", accountID, "symbol", symbol, "shares", shares, "proceeds", money.FormatMinor(proceeds))
	s.hub.BroadcastPortfolio(accountID, websocket.PortfolioUpdate{
		Type:        string(models.TradeSell),
		Symbol:      symbol,
		Shares:      -shares,
		SharesAfter: result.SharesAfter,
		Price:       money.FormatMinor(q.Price),
		Cash:        money.FormatMinor(result.CashAfter),
	})
	return result, nil
}

func (s *PortfolioService) logTrade(ctx context.Context, tx store.Execer, accountID string, row models.Transaction) error {
	data, _ := json.Marshal(map[string]any{
		"symbol": row.Symbol,
		"shares": row.Shares,
		"price":  money.FormatMinor(row.Price),
	})
	return s.audit.Log(ctx, tx, accountID, "trade."+string(row.Type), "transaction", row.ID, string(data))
}

type Position struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Shares      int64  `json:"shares"`
	Price       int64  `json:"price"`
	MarketValue int64  `json:"market_value"`
	Priced      bool   `json:"priced"`
}

type PortfolioView struct {
	AccountID  string     `json:"account_id"`
	Cash       int64      `json:"cash"`
	Holdings   []Position `json:"holdings"`
	TotalValue int64      `json:"total_value"`
}

// Portfolio values every holding at its current quote. A failed quote values
// that row at zero instead of failing the whole view. Nothing is written.
func (s *PortfolioService) Portfolio(ctx context.Context, accountID string) (PortfolioView, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return PortfolioView{}, classify("portfolio", accountErr(err))
	}
	held, err := s.holdings.ListByAccount(ctx, accountID)
	if err != nil {
		return PortfolioView{}, classify("portfolio", err)
	}

	view := PortfolioView{
		AccountID:  accountID,
		Cash:       acc.Cash,
		Holdings:   make([]Position, len(held)),
		TotalValue: acc.Cash,
	}

	quoteCtx, cancel := context.WithTimeout(ctx, s.valuationTimeout)
	defer cancel()
	var g errgroup.Group
	g.SetLimit(valuationWorkers)
	for i, h := range held {
		view.Holdings[i] = Position{Symbol: h.Symbol, Name: h.Name, Shares: h.Shares}
		i := i
		g.Go(func() error {
			s.price(quoteCtx, accountID, &view.Holdings[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, pos := range view.Holdings {
		view.TotalValue += pos.MarketValue
	}
	return view, nil
}

// price fills in the quote for one row, leaving it at zero on any failure.
func (s *PortfolioService) price(ctx context.Context, accountID string, pos *Position) {
	q, err := s.quotes.Quote(ctx, pos.Symbol)
	switch {
	case err != nil:
	case q.Price <= 0:
		err = fmt.Errorf("no price for %s", pos.Symbol)
	case pos.Shares > math.MaxInt64/q.Price:
		err = fmt.Errorf("market value of %d shares at %d overflows", pos.Shares, q.Price)
	}
	if err != nil {
		slog.WarnContext(ctx, "valuing holding at zero", "account_id", accountID, "symbol", pos.Symbol, "error", err)
		return
	}
	pos.Price = q.Price
	pos.MarketValue = q.Price * pos.Shares
	pos.Priced = true
}

type HistoryRequest struct {
	AccountID string
	Order     store.SortOrder
	Limit     int
	Offset    int
}

type HistoryPage struct {
	Items  []models.Transaction `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Order  store.SortOrder      `json:"order"`
}

// History lists executed trades oldest first unless Order is desc.
func (s *PortfolioService) History(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	if req.Order != store.OrderDesc {
		req.Order = store.OrderAsc
	}
	if req.Limit <= 0 {
		req.Limit = DefaultHistoryLimit
	}
	if req.Limit > MaxHistoryLimit {
		req.Limit = MaxHistoryLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	items, err := s.transactions.ListByAccount(ctx, req.AccountID, req.Order, req.Limit, req.Offset)
	if err != nil {
		return HistoryPage{}, classify("history", err)
	}
	total, err := s.transactions.CountByAccount(ctx, req.AccountID)
	if err != nil {
		return HistoryPage{}, classify("history", err)
	}
	return HistoryPage{
		Items:  items,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
		Order:  req.Order,
	}, nil
}

// SelfCheck reports whether stored cash and holdings agree with the
// transaction history.
func (s *PortfolioService) SelfCheck(ctx context.Context, accountID string) (store.Reconciliation, error) {
	rec, err := s.accounts.Reconcile(ctx, accountID)
	if err != nil {
		return store.Reconciliation{}, classify("self-check", accountErr(err))
	}
	if !rec.Balanced() {
		slog.ErrorContext(ctx, "account out of balance", "account_id", accountID,
			"cash", rec.Cash, "expected_cash", rec.ExpectedCash, "holding_drift", len(rec.Holdings))
	}
	return rec, nil
}

func accountErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}
