package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tradesim/internal/middleware"
	"tradesim/internal/money"
	"tradesim/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	}
	return accountID, ok
}

// respondServiceError maps a service error to a status and message. Each
// business rule gets its own code so clients can tell them apart.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var te *services.TradeError
	switch {
	case errors.Is(err, services.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "shares must be a positive whole number")
	case errors.Is(err, services.ErrUnknownSymbol):
		respondError(w, http.StatusBadRequest, "unknown_symbol", "symbol not found or quote unavailable")
	case errors.Is(err, services.ErrInsufficientFunds):
		msg := "insufficient funds"
		if errors.As(err, &te) {
			msg = fmt.Sprintf("insufficient funds: need %s, have %s", money.Display(te.Requested), money.Display(te.Available))
		}
		respondError(w, http.StatusBadRequest, "insufficient_funds", msg)
	case errors.Is(err, services.ErrInsufficientShares):
		msg := "insufficient shares"
		if errors.As(err, &te) {
			msg = fmt.Sprintf("insufficient shares of %s: requested %d, own %d", te.Symbol, te.Requested, te.Available)
		}
		respondError(w, http.StatusBadRequest, "insufficient_shares", msg)
	case errors.Is(err, services.ErrCashLimit):
		respondError(w, http.StatusBadRequest, "cash_limit", "trade would push the cash balance past the supported maximum")
	case errors.Is(err, services.ErrUsernameTaken):
		respondError(w, http.StatusConflict, "username_taken", "username already exists")
	case errors.Is(err, services.ErrMissingUsername):
		respondError(w, http.StatusBadRequest, "missing_username", "must provide username")
	case errors.Is(err, services.ErrMissingPassword):
		respondError(w, http.StatusBadRequest, "missing_password", "must provide password")
	case errors.Is(err, services.ErrPasswordMismatch):
		respondError(w, http.StatusBadRequest, "password_mismatch", "passwords do not match")
	case errors.Is(err, services.ErrInvalidCredential):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username and/or password")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found", "account not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "storage_failure", "temporarily unable to complete the request")
	}
}

// amount renders minor units both as a plain decimal and for display.
type amount struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func newAmount(minor int64) amount {
	return amount{Value: money.FormatMinor(minor), Display: money.Display(minor)}
}
