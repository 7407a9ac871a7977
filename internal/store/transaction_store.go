package store

import (
	"context"
	"fmt"

	"tradesim/internal/models"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

type TransactionStore struct {
	db DB
}

type TransactionInput struct {
	ID        string
	AccountID string
	Symbol    string
	Shares    int64
	Price     int64
	Type      models.TradeType
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Append writes one immutable trade record and returns it with its
// sequence number and timestamp filled in.
func (s *TransactionStore) Append(ctx context.Context, tx Getter, input TransactionInput) (models.Transaction, error) {
	if err := models.ValidateTrade(input.Type, input.Shares, input.Price); err != nil {
		return models.Transaction{}, err
	}
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		INSERT INTO transactions (id, account_id, symbol, shares, price, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, seq, account_id, symbol, shares, price, type, created_at
	`, input.ID, input.AccountID, input.Symbol, input.Shares, input.Price, input.Type)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// ListByAccount pages through an account's history. Rows sharing a
// timestamp are ordered by insertion sequence, so paging is stable.
func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string, order SortOrder, limit, offset int) ([]models.Transaction, error) {
	dir := "ASC"
	if order == OrderDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, seq, account_id, symbol, shares, price, type, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at %[1]s, seq %[1]s
		LIMIT $2 OFFSET $3
	`, dir)
	rows := []models.Transaction{}
	if err := s.db.SelectContext(ctx, &rows, query, accountID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID)
	return n, err
}
