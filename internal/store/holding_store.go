package store

import (
	"context"

	"tradesim/internal/models"
)

type HoldingStore struct {
	db DB
}

func NewHoldingStore(db DB) *HoldingStore {
	return &HoldingStore{db: db}
}

func (s *HoldingStore) Get(ctx context.Context, accountID, symbol string) (models.Holding, error) {
	var row models.Holding
	err := s.db.GetContext(ctx, &row, `
		SELECT account_id, symbol, name, shares
		FROM holdings
		WHERE account_id = $1 AND symbol = $2
	`, accountID, symbol)
	if err != nil {
		return models.Holding{}, notFound(err)
	}
	return row, nil
}

func (s *HoldingStore) GetForUpdate(ctx context.Context, tx Getter, accountID, symbol string) (models.Holding, error) {
	var row models.Holding
	err := tx.GetContext(ctx, &row, `
		SELECT account_id, symbol, name, shares
		FROM holdings
		WHERE account_id = $1 AND symbol = $2
		FOR UPDATE
	`, accountID, symbol)
	if err != nil {
		return models.Holding{}, notFound(err)
	}
	return row, nil
}

// Upsert adds h.Shares to the position, creating it if needed. The display
// name is set on first insert only. Returns the resulting share count.
func (s *HoldingStore) Upsert(ctx context.Context, tx Getter, h models.Holding) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, err
	}
	var shares int64
	err := tx.GetContext(ctx, &shares, `
		INSERT INTO holdings (account_id, symbol, name, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, symbol)
		DO UPDATE SET shares = holdings.shares + EXCLUDED.shares
		RETURNING shares
	`, h.AccountID, h.Symbol, h.Name, h.Shares)
	return shares, err
}

func (s *HoldingStore) UpdateShares(ctx context.Context, tx Execer, accountID, symbol string, shares int64) error {
	if shares <= 0 {
		return models.ErrNonPositiveShare
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE holdings
		SET shares = $1
		WHERE account_id = $2 AND symbol = $3
	`, shares, accountID, symbol)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *HoldingStore) Delete(ctx context.Context, tx Execer, accountID, symbol string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`, accountID, symbol)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *HoldingStore) ListByAccount(ctx context.Context, accountID string) ([]models.Holding, error) {
	rows := []models.Holding{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT account_id, symbol, name, shares
		FROM holdings
		WHERE account_id = $1
		ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
