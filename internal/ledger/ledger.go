// Package ledger is the client side of the external money ledger. The
// marketplace never holds funds; every value movement goes through
// Client.Transfer, which may suspend the calling operation.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// BlockHeight is the ledger's receipt for an executed transfer.
type BlockHeight uint64

// TransferArgs describes one value movement. Memo encodes the operation
// context as bytes; the ledger uses it for deduplication and the engine never
// interprets it.
type TransferArgs struct {
	To             string    `json:"to"`
	Amount         *big.Int  `json:"amount"`
	Fee            *big.Int  `json:"fee"`
	Memo           []byte    `json:"memo"`
	FromSubaccount []byte    `json:"from_subaccount,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Client executes transfers on the external ledger.
//
// A failed call returns either a *TransferError (the ledger rejected or
// failed the transfer) or a transport error. Both mean the transfer did not
// happen; callers roll back whatever they reserved.
type Client interface {
	Transfer(ctx context.Context, args TransferArgs) (BlockHeight, error)
}

// ErrorKind enumerates the ledger's reported failure kinds. The set is
// closed; unknown kinds map to KindOther at the decoding boundary.
type ErrorKind string

const (
	KindBadFee            ErrorKind = "bad_fee"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindTxTooOld          ErrorKind = "tx_too_old"
	KindTxDuplicate       ErrorKind = "tx_duplicate"
	KindTxCreatedInFuture ErrorKind = "tx_created_in_future"
	KindOther             ErrorKind = "other"
)

// TransferError is the ledger's failure union, mapped 1:1 from its reported
// kinds. Only the fields for the active kind are set. It is translated to a
// display string here and nowhere else; the engine treats it as opaque.
type TransferError struct {
	Kind          ErrorKind `json:"kind"`
	ExpectedFee   *big.Int  `json:"expected_fee,omitempty"`
	Balance       *big.Int  `json:"balance,omitempty"`
	AllowedWindow uint64    `json:"allowed_window_nanos,omitempty"`
	DuplicateOf   uint64    `json:"duplicate_of,omitempty"`
	Message       string    `json:"message,omitempty"`
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case KindBadFee:
		return fmt.Sprintf("bad fee, expected %s", e.ExpectedFee)
	case KindInsufficientFunds:
		return fmt.Sprintf("insufficient funds, balance %s", e.Balance)
	case KindTxTooOld:
		return fmt.Sprintf("transaction too old, allowed window %d nanos", e.AllowedWindow)
	case KindTxDuplicate:
		return fmt.Sprintf("duplicate transaction of block %d", e.DuplicateOf)
	case KindTxCreatedInFuture:
		return "transaction created in future"
	case KindOther:
		return e.Message
	default:
		return string(e.Kind)
	}
}
