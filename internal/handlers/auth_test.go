package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"tradesim/internal/auth"
	"tradesim/internal/models"
	"tradesim/internal/services"
)

func TestRegisterSuccess(t *testing.T) {
	var got [3]string
	h := newTestHandler(stubAccountService{
		registerFn: func(_ context.Context, username, password, confirmation string) (models.Account, error) {
			got = [3]string{username, password, confirmation}
			return models.Account{ID: "acc-9", Username: username}, nil
		},
	}, stubPortfolioService{}, stubAuditStore{})

	rr := do(t, h, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "password": "password1", "confirmation": "password1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got != [3]string{"alice", "password1", "password1"} {
		t.Fatalf("unexpected register args: %#v", got)
	}
	resp := decodeBody[tokenResponse](t, rr)
	claims, err := auth.ParseToken("secret", resp.Token)
	if err != nil || claims.AccountID != "acc-9" {
		t.Fatalf("unexpected token: %v %#v", err, claims)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(stubAccountService{
		registerFn: func(context.Context, string, string, string) (models.Account, error) {
			t.Fatalf("service should not be called")
			return models.Account{}, nil
		},
	}, stubPortfolioService{}, stubAuditStore{})

	rr := do(t, h, http.MethodPost, "/auth/register", "", `{"username":`)
	expectError(t, rr, http.StatusBadRequest, "invalid_payload")

	rr = do(t, h, http.MethodPost, "/auth/register", "", map[string]string{"username": "a", "password": "password1", "confirmation": "password1"})
	expectError(t, rr, http.StatusBadRequest, "validation_failed")

	rr = do(t, h, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice", "password": "short", "confirmation": "short"})
	expectError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestRegisterServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrUsernameTaken, http.StatusConflict, "username_taken"},
		{services.ErrPasswordMismatch, http.StatusBadRequest, "password_mismatch"},
		{&services.StorageError{Op: "register", Err: errors.New("down")}, http.StatusInternalServerError, "storage_failure"},
	}
	for _, tc := range cases {
		h := newTestHandler(stubAccountService{
			registerFn: func(context.Context, string, string, string) (models.Account, error) {
				return models.Account{}, tc.err
			},
		}, stubPortfolioService{}, stubAuditStore{})
		rr := do(t, h, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "alice", "password": "password1", "confirmation": "password2",
		})
		expectError(t, rr, tc.status, tc.code)
	}
}

func TestLogin(t *testing.T) {
	h := newTestHandler(stubAccountService{
		verifyFn: func(_ context.Context, username, password string) (models.Account, error) {
			if username == "alice" && password == "password1" {
				return models.Account{ID: "acc-1"}, nil
			}
			return models.Account{}, services.ErrInvalidCredential
		},
	}, stubPortfolioService{}, stubAuditStore{})

	rr := do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "password1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp := decodeBody[tokenResponse](t, rr); resp.AccountID != "acc-1" || resp.Token == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	rr = do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	expectError(t, rr, http.StatusUnauthorized, "invalid_credentials")

	rr = do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice"})
	expectError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestMe(t *testing.T) {
	h := newTestHandler(stubAccountService{
		accountFn: func(_ context.Context, id string) (models.Account, error) {
			return models.Account{ID: id, Username: "alice", Cash: 1_000_000, CreatedAt: time.Unix(0, 0)}, nil
		},
	}, stubPortfolioService{}, stubAuditStore{})

	rr := do(t, h, http.MethodGet, "/auth/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/auth/me", "acc-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeBody[accountResponse](t, rr)
	if resp.ID != "acc-1" || resp.Cash.Value != "10000.00" || resp.Cash.Display != "$10,000.00" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}
