package models

import (
	"errors"
	"time"
)

type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

var (
	ErrNegativeCash     = errors.New("cash balance cannot be negative")
	ErrNonPositiveShare = errors.New("holding share count must be positive")
	ErrZeroShares       = errors.New("transaction share quantity cannot be zero")
	ErrSignMismatch     = errors.New("transaction share sign does not match its type")
	ErrNonPositivePrice = errors.New("transaction price must be positive")
	ErrUnknownTradeType = errors.New("unknown trade type")
)

// Account is the root entity. Cash and OpeningCash are in minor units.
type Account struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Cash         int64     `db:"cash" json:"cash"`
	OpeningCash  int64     `db:"opening_cash" json:"opening_cash"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (a Account) Validate() error {
	if a.Cash < 0 {
		return ErrNegativeCash
	}
	return nil
}

// Holding is one account's open position in one symbol.
type Holding struct {
	AccountID string `db:"account_id" json:"account_id"`
	Symbol    string `db:"symbol" json:"symbol"`
	Name      string `db:"name" json:"name"`
	Shares    int64  `db:"shares" json:"shares"`
}

func (h Holding) Validate() error {
	if h.Shares <= 0 {
		return ErrNonPositiveShare
	}
	return nil
}

// Transaction is an append-only trade record. Shares is signed: positive for
// buys, negative for sells.
type Transaction struct {
	ID        string    `db:"id" json:"id"`
	Seq       int64     `db:"seq" json:"seq"`
	AccountID string    `db:"account_id" json:"account_id"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Shares    int64     `db:"shares" json:"shares"`
	Price     int64     `db:"price" json:"price"`
	Type      TradeType `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (t Transaction) Validate() error {
	return ValidateTrade(t.Type, t.Shares, t.Price)
}

// Amount is the signed cash effect of the trade on the account: negative for
// buys, positive for sells.
func (t Transaction) Amount() int64 {
	return -t.Shares * t.Price
}

func ValidateTrade(tradeType TradeType, shares, price int64) error {
	if shares == 0 {
		return ErrZeroShares
	}
	if price <= 0 {
		return ErrNonPositivePrice
	}
	switch tradeType {
	case TradeBuy:
		if shares < 0 {
			return ErrSignMismatch
		}
	case TradeSell:
		if shares > 0 {
			return ErrSignMismatch
		}
	default:
		return ErrUnknownTradeType
	}
	return nil
}

// SignedShares applies the sign convention for a trade of n shares.
func SignedShares(tradeType TradeType, n int64) int64 {
	if tradeType == TradeSell {
		return -n
	}
	return n
}

// Quote is a point-in-time lookup result. Price is in minor units.
type Quote struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
}
