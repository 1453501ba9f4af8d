package store

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrSoldOut           = errors.New("sold out")
	ErrInsufficientFunds = errors.New("insufficient funds collected")
	ErrNotOwner          = errors.New("not ticket owner")
	ErrTransferInFlight  = errors.New("transfer already in flight")
)
