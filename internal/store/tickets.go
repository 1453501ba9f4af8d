package store

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

type ticketRecord struct {
	ticket domain.Ticket

	// transferInFlight marks a resale whose payment is awaited. It is
	// engine-internal reservation state: never serialized, never visible
	// through Get.
	transferInFlight bool
}

// TicketStore is the keyed table of tickets. It owns ownership and transfer
// history; the transfer reservation mutators are engine-only.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[domain.TicketID]*ticketRecord
}

func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[domain.TicketID]*ticketRecord)}
}

func (s *TicketStore) Insert(t domain.Ticket) error {
	const op = "store.TicketStore.Insert"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("%s:%w", op, ErrDuplicateID)
	}

	s.tickets[t.ID] = &ticketRecord{ticket: *copyTicket(&t)}

	return nil
}

// Get returns a copy of the ticket.
func (s *TicketStore) Get(id domain.TicketID) (*domain.Ticket, error) {
	const op = "store.TicketStore.Get"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	return copyTicket(&rec.ticket), nil
}

func (s *TicketStore) ListByOwner(owner domain.AccountID) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Ticket
	for _, rec := range s.tickets {
		if rec.ticket.Owner == owner {
			out = append(out, *copyTicket(&rec.ticket))
		}
	}

	return out
}

// ReserveTransfer marks the ticket transfer-in-flight on behalf of caller.
// The mark is taken before the resale payment is awaited, so a second
// transfer of the same ticket during the suspension is rejected instead of
// double-charging the buyer side.
//
// Returns:
//   - store.ErrNotFound if the ticket does not exist.
//   - store.ErrNotOwner if caller does not own the ticket.
//   - store.ErrTransferInFlight if another transfer already holds the mark.
func (s *TicketStore) ReserveTransfer(id domain.TicketID, caller domain.AccountID) error {
	const op = "store.TicketStore.ReserveTransfer"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tickets[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}
	if rec.ticket.Owner != caller {
		return fmt.Errorf("%s:%w", op, ErrNotOwner)
	}
	if rec.transferInFlight {
		return fmt.Errorf("%s:%w", op, ErrTransferInFlight)
	}

	rec.transferInFlight = true

	return nil
}

// ReleaseTransfer rolls a transfer reservation back, leaving ownership
// untouched.
func (s *TicketStore) ReleaseTransfer(id domain.TicketID) error {
	const op = "store.TicketStore.ReleaseTransfer"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tickets[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	rec.transferInFlight = false

	return nil
}

// SetOwner commits an ownership change: it appends to the transfer history
// and overwrites the owner in one step, clearing any transfer reservation.
func (s *TicketStore) SetOwner(id domain.TicketID, newOwner domain.AccountID, at time.Time) error {
	const op = "store.TicketStore.SetOwner"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tickets[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	rec.ticket.Owner = newOwner
	rec.ticket.TransferHistory = append(rec.ticket.TransferHistory, domain.TransferRecord{
		At:    at,
		Owner: newOwner,
	})
	rec.transferInFlight = false

	return nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	cp.OriginalPrice = new(big.Int).Set(t.OriginalPrice)
	cp.TransferHistory = append([]domain.TransferRecord(nil), t.TransferHistory...)
	return &cp
}
