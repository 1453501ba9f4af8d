package httpgin

import (
	"fmt"
	"math/big"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

type CreateEventRequest struct {
	Name                string   `json:"name" binding:"required"`
	Location            string   `json:"location"`
	Date                string   `json:"date" binding:"required"`
	TicketPrice         string   `json:"ticket_price" binding:"required"`
	TotalTickets        uint64   `json:"total_tickets" binding:"required,gt=0"`
	MaxResaleMultiplier *string  `json:"max_resale_multiplier"`
	Whitelist           []string `json:"whitelist"`
}

type CreateEventResponse struct {
	EventID string `json:"event_id"`
}

type PurchaseTicketResponse struct {
	TicketID string `json:"ticket_id"`
}

type TransferTicketRequest struct {
	NewOwner  string  `json:"new_owner" binding:"required"`
	SalePrice *string `json:"sale_price"`
}

type WithdrawFundsRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type TicketOwnerResponse struct {
	Owner string `json:"owner"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseAmount parses a base-10 ledger-native amount.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// parseMultiplier accepts decimal ("1.5") and fraction ("3/2") forms.
func parseMultiplier(s string) (*big.Rat, error) {
	v, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid multiplier %q", s)
	}
	return v, nil
}

func toWhitelist(accts []string) []domain.AccountID {
	if accts == nil {
		return nil
	}
	out := make([]domain.AccountID, 0, len(accts))
	for _, a := range accts {
		out = append(out, domain.AccountID(a))
	}
	return out
}
