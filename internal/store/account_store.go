package store

import (
	"context"

	"tradesim/internal/models"
)

type AccountStore struct {
	db DB
}

// HoldingDrift is a symbol whose stored share count disagrees with the sum
// of its transaction history.
type HoldingDrift struct {
	Symbol   string `db:"symbol" json:"symbol"`
	Held     int64  `db:"held" json:"held"`
	Expected int64  `db:"expected" json:"expected"`
}

type Reconciliation struct {
	AccountID    string         `json:"account_id"`
	Cash         int64          `json:"cash"`
	ExpectedCash int64          `json:"expected_cash"`
	Holdings     []HoldingDrift `json:"holding_drift"`
}

func (r Reconciliation) Balanced() bool {
	return r.Cash == r.ExpectedCash && len(r.Holdings) == 0
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, username, passwordHash string, cash int64) error {
	query := `
		INSERT INTO accounts (id, username, password_hash, cash, opening_cash)
		VALUES ($1, $2, $3, $4, $4)
	`
	_, err := tx.ExecContext(ctx, query, id, username, passwordHash, cash)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, cash, opening_cash, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

func (s *AccountStore) GetByUsername(ctx context.Context, username string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, cash, opening_cash, created_at
		FROM accounts
		WHERE username = $1
	`, username)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

// GetForUpdate locks the account row for the rest of the transaction. Every
// trade takes this lock first, so trades on one account run one at a time.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, username, password_hash, cash, opening_cash, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

func (s *AccountStore) UpdateCash(ctx context.Context, tx Execer, accountID string, cash int64) error {
	if cash < 0 {
		return models.ErrNegativeCash
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET cash = $1, updated_at = NOW()
		WHERE id = $2
	`, cash, accountID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Reconcile compares stored cash and holdings against what the transaction
// history implies.
func (s *AccountStore) Reconcile(ctx context.Context, accountID string) (Reconciliation, error) {
	var cash struct {
		Cash     int64 `db:"cash"`
		Expected int64 `db:"expected_cash"`
	}
	err := s.db.GetContext(ctx, &cash, `
		SELECT a.cash,
		       (a.opening_cash - COALESCE(SUM(t.shares * t.price), 0))::bigint AS expected_cash
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id, a.cash, a.opening_cash
	`, accountID)
	if err != nil {
		return Reconciliation{}, notFound(err)
	}

	var drift []HoldingDrift
	err = s.db.SelectContext(ctx, &drift, `
		SELECT COALESCE(h.symbol, t.symbol) AS symbol,
		       COALESCE(h.shares, 0)::bigint AS held,
		       COALESCE(t.total, 0)::bigint AS expected
		FROM (SELECT symbol, shares FROM holdings WHERE account_id = $1) h
		FULL OUTER JOIN (
			SELECT symbol, SUM(shares) AS total
			FROM transactions
			WHERE account_id = $1
			GROUP BY symbol
			HAVING SUM(shares) <> 0
		) t ON t.symbol = h.symbol
		WHERE COALESCE(h.shares, 0) <> COALESCE(t.total, 0)
		ORDER BY 1
	`, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		AccountID:    accountID,
		Cash:         cash.Cash,
		ExpectedCash: cash.Expected,
		Holdings:     drift,
	}, nil
}
