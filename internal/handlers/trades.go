package handlers

import (
	"encoding/json"
	"net/http"

	"tradesim/internal/validator"
)

type tradeRequest struct {
	Symbol string      `json:"symbol" validate:"required,symbol"`
	Shares json.Number `json:"shares" validate:"required"`
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  amount `json:"price"`
}

type tradeResponse struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Shares        int64  `json:"shares"`
	Price         amount `json:"price"`
	Total         amount `json:"total"`
	Cash          amount `json:"cash"`
	SharesAfter   int64  `json:"shares_after"`
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if err := validator.ValidateSymbol(symbol); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	q, err := h.portfolio.Lookup(r.Context(), symbol)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quoteResponse{Symbol: q.Symbol, Name: q.Name, Price: newAmount(q.Price)})
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[tradeRequest](w, r)
	if !ok {
		return
	}
	shares, ok := parseShares(req.Shares)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "shares must be a positive whole number")
		return
	}
	res, err := h.portfolio.Buy(r.Context(), accountID, req.Symbol, shares)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{
		TransactionID: res.TransactionID,
		Type:          "buy",
		Symbol:        res.Symbol,
		Name:          res.Name,
		Shares:        res.Shares,
		Price:         newAmount(res.Price),
		Total:         newAmount(res.Total),
		Cash:          newAmount(res.CashAfter),
		SharesAfter:   res.SharesAfter,
	})
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[tradeRequest](w, r)
	if !ok {
		return
	}
	shares, ok := parseShares(req.Shares)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "shares must be a positive whole number")
		return
	}
	res, err := h.portfolio.Sell(r.Context(), accountID, req.Symbol, shares)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tradeResponse{
		TransactionID: res.TransactionID,
		Type:          "sell",
		Symbol:        res.Symbol,
		Name:          res.Name,
		Shares:        res.Shares,
		Price:         newAmount(res.Price),
		Total:         newAmount(res.Proceeds),
		Cash:          newAmount(res.CashAfter),
		SharesAfter:   res.SharesAfter,
	})
}
