package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrSoldOut           = errors.New("sold out")
	ErrNotOrganizer      = errors.New("only organizer can withdraw")
	ErrNotTicketOwner    = errors.New("not ticket owner")
	ErrNotWhitelisted    = errors.New("not on whitelist")
	ErrTransferInFlight  = errors.New("ticket transfer already in progress")
	ErrInsufficientFunds = errors.New("insufficient funds collected")
)

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PriceCapError rejects a resale priced above round(original * multiplier).
type PriceCapError struct {
	SalePrice *big.Int
	MaxPrice  *big.Int
}

func (e *PriceCapError) Error() string {
	return fmt.Sprintf("price %s exceeds maximum resale price of %s", e.SalePrice, e.MaxPrice)
}

// PaymentError wraps a ledger failure. By the time it surfaces, the
// corresponding reservation has already been rolled back.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string {
	return "payment failed: " + e.Err.Error()
}

func (e *PaymentError) Unwrap() error { return e.Err }
