package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"tradesim/internal/auth"
	"tradesim/internal/db"
	"tradesim/internal/models"
	"tradesim/internal/money"
	"tradesim/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type AccountService struct {
	txRunner     db.TxRunner
	accounts     AccountDirectory
	audit        AuditStore
	startingCash int64
}

type AccountDirectory interface {
	Create(ctx context.Context, tx store.Execer, id, username, passwordHash string, cash int64) error
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetByUsername(ctx context.Context, username string) (models.Account, error)
}

func NewAccountService(txRunner db.TxRunner, accounts AccountDirectory, audit AuditStore, startingCash int64) *AccountService {
	return &AccountService{
		txRunner:     txRunner,
		accounts:     accounts,
		audit:        audit,
		startingCash: startingCash,
	}
}

// Register creates an account funded with the configured starting cash.
func (s *AccountService) Register(ctx context.Context, username, password, confirmation string) (models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Account{}, ErrMissingUsername
	}
	if password == "" {
		return models.Account{}, ErrMissingPassword
	}
	if password != confirmation {
		return models.Account{}, ErrPasswordMismatch
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.Account{}, &StorageError{Op: "register", Err: err}
	}

	acc := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Cash:         s.startingCash,
		OpeningCash:  s.startingCash,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Create(ctx, tx, acc.ID, acc.Username, acc.PasswordHash, acc.Cash); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"username":      acc.Username,
			"starting_cash": money.FormatMinor(acc.Cash),
		})
		return s.audit.Log(ctx, tx, acc.ID, "account.register", "account", acc.ID, string(data))
	})
	if err != nil {
		return models.Account{}, classify("register", err)
	}
	slog.InfoContext(ctx, "account registered", "account_id", acc.ID, "username", acc.Username)
	return acc, nil
}

// VerifyCredential returns the account only when the password matches.
// Unknown usernames and wrong passwords are indistinguishable to callers.
func (s *AccountService) VerifyCredential(ctx context.Context, username, password string) (models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.Account{}, ErrInvalidCredential
	}
	acc, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrInvalidCredential
	}
	if err != nil {
		return models.Account{}, classify("verify credential", err)
	}
	if !auth.CheckPassword(acc.PasswordHash, password) {
		return models.Account{}, ErrInvalidCredential
	}
	return acc, nil
}

func (s *AccountService) Account(ctx context.Context, accountID string) (models.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, classify("account", accountErr(err))
	}
	return acc, nil
}
