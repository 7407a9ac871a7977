package handlers

import (
	"net/http"
	"time"

	"tradesim/internal/auth"
	"tradesim/internal/models"
)

type registerRequest struct {
	Username     string `json:"username" validate:"required,username"`
	Password     string `json:"password" validate:"required,password"`
	Confirmation string `json:"confirmation" validate:"required"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID string    `json:"account_id"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Cash      amount    `json:"cash"`
	CreatedAt time.Time `json:"created_at"`
}

func newAccountResponse(acc models.Account) accountResponse {
	return accountResponse{
		ID:        acc.ID,
		Username:  acc.Username,
		Cash:      newAmount(acc.Cash),
		CreatedAt: acc.CreatedAt,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[registerRequest](w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.Register(r.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondToken(w, http.StatusCreated, acc.ID)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[loginRequest](w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.VerifyCredential(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondToken(w, http.StatusOK, acc.ID)
}

func (h *Handler) respondToken(w http.ResponseWriter, status int, accountID string) {
	token, err := auth.GenerateToken(h.cfg.JWTSecret, accountID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token_failure", "failed to generate token")
		return
	}
	respondJSON(w, status, tokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.TokenTTL).UTC(),
		AccountID: accountID,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.Account(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAccountResponse(acc))
}
