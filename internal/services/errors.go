package services

import (
	"context"
	"errors"
	"fmt"

	"tradesim/internal/store"
)

var (
	ErrInvalidQuantity    = errors.New("share quantity must be a positive integer")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrCashLimit          = errors.New("cash balance limit exceeded")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameTaken      = store.ErrUsernameTaken
	ErrMissingUsername    = errors.New("username is required")
	ErrMissingPassword    = errors.New("password is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCredential  = errors.New("invalid username or password")
	ErrStorageFailure     = errors.New("storage failure")
)

// TradeError carries the amounts behind a rejected trade. For
// ErrInsufficientFunds Requested and Available are minor units; for
// ErrInsufficientShares they are share counts. For ErrCashLimit Available
// is the headroom left below the maximum balance.
type TradeError struct {
	Op        string
	Symbol    string
	Requested int64
	Available int64
	Err       error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s %s: %v (requested %d, available %d)", e.Op, e.Symbol, e.Err, e.Requested, e.Available)
}

func (e *TradeError) Unwrap() error { return e.Err }

// StorageError is any failure of the backing store that is not a business
// rule. It matches ErrStorageFailure under errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageFailure, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

var domainErrors = []error{
	ErrInvalidQuantity,
	ErrUnknownSymbol,
	ErrInsufficientFunds,
	ErrInsufficientShares,
	ErrCashLimit,
	ErrAccountNotFound,
	ErrUsernameTaken,
	ErrMissingUsername,
	ErrMissingPassword,
	ErrPasswordMismatch,
	ErrInvalidCredential,
	context.Canceled,
	context.DeadlineExceeded,
}

// classify passes business errors through and wraps everything else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
