package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// AccountID identifies an account on the external money ledger. The marketplace
// treats it as opaque text; the ledger is the authority on its meaning.
type AccountID string

// MaxEventNameLength bounds event names.
const MaxEventNameLength = 100

// Event is a ticketed event with a fixed supply and a single price.
// Counters are mutated only through the engine's reservation protocol.
type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Date     time.Time `json:"date"`

	// Organizer receives ticket payments and withdrawals. Immutable.
	Organizer AccountID `json:"organizer"`

	// TicketPrice is in the ledger-native unit, non-negative.
	TicketPrice *big.Int `json:"ticket_price"`

	// MaxResaleMultiplier caps resale prices at round(original * multiplier).
	// Nil means unrestricted resale.
	MaxResaleMultiplier *big.Rat `json:"max_resale_multiplier,omitempty"`

	TotalTickets uint64 `json:"total_tickets"`

	// TicketsSold counts reserved plus committed sales.
	// Invariant: 0 <= TicketsSold <= TotalTickets.
	TicketsSold uint64 `json:"tickets_sold"`

	// TicketsIssued counts every mint number ever allocated. It never
	// decreases, so a rolled-back sale cannot free a number that an
	// outstanding or committed purchase already holds.
	TicketsIssued uint64 `json:"tickets_issued"`

	// FundsCollected is the net balance available for withdrawal.
	// Invariant: FundsCollected >= 0 and
	// FundsCollected <= TicketsSold*TicketPrice - FundsWithdrawn.
	FundsCollected *big.Int `json:"funds_collected"`

	// FundsWithdrawn accumulates committed withdrawals, for audit.
	FundsWithdrawn *big.Int `json:"funds_withdrawn"`

	// Whitelist, when non-nil, is the set of accounts allowed to purchase.
	Whitelist []AccountID `json:"whitelist,omitempty"`
}

// Whitelisted reports whether acct may purchase a ticket for the event.
// A nil whitelist admits everyone.
func (e *Event) Whitelisted(acct AccountID) bool {
	if e.Whitelist == nil {
		return true
	}
	for _, a := range e.Whitelist {
		if a == acct {
			return true
		}
	}
	return false
}

// MaxResalePrice computes round(original * multiplier) exactly, rounding
// half up. Returns nil when the event has no multiplier.
func (e *Event) MaxResalePrice(original *big.Int) *big.Int {
	if e.MaxResaleMultiplier == nil {
		return nil
	}
	num := new(big.Int).Mul(original, e.MaxResaleMultiplier.Num())
	den := e.MaxResaleMultiplier.Denom()
	// round(num/den) half up == floor((2*num + den) / (2*den))
	r := new(big.Int).Lsh(num, 1)
	r.Add(r, den)
	return r.Div(r, new(big.Int).Lsh(den, 1))
}

// TicketID identifies a ticket. Number is the per-event mint sequence, so the
// event id is part of the identity.
type TicketID struct {
	EventID string `json:"event_id"`
	Number  uint64 `json:"number"`
}

func (id TicketID) String() string {
	return id.EventID + ":" + strconv.FormatUint(id.Number, 10)
}

// ParseTicketID parses the "<event-id>:<number>" form produced by String.
func ParseTicketID(s string) (TicketID, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return TicketID{}, fmt.Errorf("invalid ticket id %q", s)
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return TicketID{}, fmt.Errorf("invalid ticket id %q: %w", s, err)
	}
	return TicketID{EventID: s[:i], Number: n}, nil
}

// TicketMetadata is descriptive only and immutable after mint.
type TicketMetadata struct {
	EventID  string  `json:"event_id"`
	Seat     *string `json:"seat,omitempty"`
	Tier     *string `json:"tier,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// TransferRecord is one entry in a ticket's ownership history.
type TransferRecord struct {
	At    time.Time `json:"at"`
	Owner AccountID `json:"owner"`
}

// Ticket is a minted admission right. Ownership changes only through the
// engine; the history's first entry is the mint.
type Ticket struct {
	ID       TicketID       `json:"id"`
	Owner    AccountID      `json:"owner"`
	Metadata TicketMetadata `json:"metadata"`

	// OriginalPrice is the mint price, the base for the resale cap.
	OriginalPrice *big.Int `json:"original_price"`

	// TransferHistory is append-only; its last entry's owner equals Owner.
	TransferHistory []TransferRecord `json:"transfer_history"`
}
