package handlers

import (
	"net/http"
	"time"

	"tradesim/internal/money"
	"tradesim/internal/services"
	"tradesim/internal/store"
	"tradesim/internal/websocket"
)

const defaultActivityLimit = 20

type positionResponse struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Shares int64  `json:"shares"`
	Price  amount `json:"price"`
	Value  amount `json:"value"`
	Priced bool   `json:"priced"`
}

type portfolioResponse struct {
	Cash     amount             `json:"cash"`
	Holdings []positionResponse `json:"holdings"`
	Total    amount             `json:"total"`
}

type historyItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Shares    int64     `json:"shares"`
	Price     amount    `json:"price"`
	Amount    amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	Items []historyItem   `json:"items"`
	Total int             `json:"total"`
	Limit int             `json:"limit"`
	Page  int             `json:"page"`
	Order store.SortOrder `json:"order"`
}

type selfCheckResponse struct {
	Balanced     bool                 `json:"balanced"`
	Cash         amount               `json:"cash"`
	ExpectedCash amount               `json:"expected_cash"`
	Difference   amount               `json:"difference"`
	Holdings     []store.HoldingDrift `json:"holding_drift"`
}

func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	view, err := h.portfolio.Portfolio(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	resp := portfolioResponse{
		Cash:     newAmount(view.Cash),
		Holdings: make([]positionResponse, 0, len(view.Holdings)),
		Total:    newAmount(view.TotalValue),
	}
	for _, p := range view.Holdings {
		resp.Holdings = append(resp.Holdings, positionResponse{
			Symbol: p.Symbol,
			Name:   p.Name,
			Shares: p.Shares,
			Price:  newAmount(p.Price),
			Value:  newAmount(p.MarketValue),
			Priced: p.Priced,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r, services.DefaultHistoryLimit, services.MaxHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	res, err := h.portfolio.History(r.Context(), services.HistoryRequest{
		AccountID: accountID,
		Order:     page.Order,
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	resp := historyResponse{
		Items: make([]historyItem, 0, len(res.Items)),
		Total: res.Total,
		Limit: res.Limit,
		Page:  res.Offset/res.Limit + 1,
		Order: res.Order,
	}
	for _, t := range res.Items {
		resp.Items = append(resp.Items, historyItem{
			ID:        t.ID,
			Type:      string(t.Type),
			Symbol:    t.Symbol,
			Shares:    t.Shares,
			Price:     newAmount(t.Price),
			Amount:    newAmount(t.Amount()),
			CreatedAt: t.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	rec, err := h.portfolio.SelfCheck(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	drift := rec.Holdings
	if drift == nil {
		drift = []store.HoldingDrift{}
	}
	respondJSON(w, http.StatusOK, selfCheckResponse{
		Balanced:     rec.Balanced(),
		Cash:         newAmount(rec.Cash),
		ExpectedCash: newAmount(rec.ExpectedCash),
		Difference:   newAmount(rec.Cash - rec.ExpectedCash),
		Holdings:     drift,
	})
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r, defaultActivityLimit, services.MaxHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	logs, err := h.audit.ListByActor(r.Context(), accountID, page.Limit, page.Offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (h *Handler) WSPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.Account(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.streams.Serve(w, r, accountID, websocket.PortfolioUpdate{Type: "hello", Cash: money.FormatMinor(acc.Cash)})
}
