// Package store holds the marketplace's two tables. Both are in-memory,
// exclusively owned by their store, and every mutator is a single critical
// section: it runs to completion without any suspension point. That atomicity
// is what the engine's reserve/commit/rollback protocol is built on — a
// reservation is applied before the engine awaits the ledger, and other
// invocations observe it immediately.
package store

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

// EventStore is the keyed table of events. It owns the capacity and funds
// counters; only the engine calls the reservation mutators.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]*domain.Event)}
}

// SaleReservation is the token for one provisionally sold ticket. Number is
// the per-event sequence the ticket will be minted under; Price and Organizer
// are captured at reservation time so the payment step needs no further reads.
type SaleReservation struct {
	EventID   string
	Number    uint64
	Price     *big.Int
	Organizer domain.AccountID
}

// WithdrawalReservation is the token for one provisionally debited
// withdrawal.
type WithdrawalReservation struct {
	EventID string
	Amount  *big.Int
}

func (s *EventStore) Insert(ev domain.Event) error {
	const op = "store.EventStore.Insert"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("%s:%w", op, ErrDuplicateID)
	}

	cp := copyEvent(&ev)
	s.events[ev.ID] = cp

	return nil
}

// Get returns a copy of the event, so callers can never mutate shared state
// outside the store's critical sections.
func (s *EventStore) Get(id string) (*domain.Event, error) {
	const op = "store.EventStore.Get"

	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	return copyEvent(ev), nil
}

func (s *EventStore) ListByOrganizer(organizer domain.AccountID) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.Organizer == organizer {
			out = append(out, *copyEvent(ev))
		}
	}

	return out
}

// ReserveSale provisionally consumes one capacity unit: the sold counter is
// incremented before any payment is attempted, so a concurrent purchase
// observes the reduced capacity. The mint number comes from the issue counter,
// which never decreases, so numbers freed by a rollback are not handed out
// again. The returned token either gets committed (CommitSale) or rolled back
// (RollbackSale); there is no third path.
//
// Returns:
//   - store.ErrNotFound if the event does not exist.
//   - store.ErrSoldOut if all capacity is sold or reserved.
func (s *EventStore) ReserveSale(id string) (SaleReservation, error) {
	const op = "store.EventStore.ReserveSale"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return SaleReservation{}, fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	if ev.TicketsSold >= ev.TotalTickets {
		return SaleReservation{}, fmt.Errorf("%s:%w", op, ErrSoldOut)
	}

	ev.TicketsSold++
	ev.TicketsIssued++

	return SaleReservation{
		EventID:   id,
		Number:    ev.TicketsIssued,
		Price:     new(big.Int).Set(ev.TicketPrice),
		Organizer: ev.Organizer,
	}, nil
}

// CommitSale records the payment's proceeds for the reserved sale.
func (s *EventStore) CommitSale(res SaleReservation) error {
	const op = "store.EventStore.CommitSale"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[res.EventID]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	ev.FundsCollected.Add(ev.FundsCollected, res.Price)

	return nil
}

// RollbackSale releases the reserved capacity unit after a failed payment.
// The issue counter stays put; the reservation's number is retired.
func (s *EventStore) RollbackSale(res SaleReservation) error {
	const op = "store.EventStore.RollbackSale"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[res.EventID]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	if ev.TicketsSold == 0 {
		return fmt.Errorf("%s: rollback without reservation", op)
	}
	ev.TicketsSold--

	return nil
}

// ReserveWithdrawal provisionally debits amount from the event's collected
// funds. A concurrent withdrawal observes the already-reduced balance, which
// closes the double-withdrawal race.
//
// Returns:
//   - store.ErrNotFound if the event does not exist.
//   - store.ErrInsufficientFunds if amount exceeds the available balance.
func (s *EventStore) ReserveWithdrawal(id string, amount *big.Int) (WithdrawalReservation, error) {
	const op = "store.EventStore.ReserveWithdrawal"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return WithdrawalReservation{}, fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	if amount.Cmp(ev.FundsCollected) > 0 {
		return WithdrawalReservation{}, fmt.Errorf("%s:%w", op, ErrInsufficientFunds)
	}

	ev.FundsCollected.Sub(ev.FundsCollected, amount)

	return WithdrawalReservation{
		EventID: id,
		Amount:  new(big.Int).Set(amount),
	}, nil
}

// CommitWithdrawal finalizes the reservation. The balance was already debited
// at reserve time; this only records the withdrawal for audit.
func (s *EventStore) CommitWithdrawal(res WithdrawalReservation) error {
	const op = "store.EventStore.CommitWithdrawal"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[res.EventID]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	ev.FundsWithdrawn.Add(ev.FundsWithdrawn, res.Amount)

	return nil
}

// RollbackWithdrawal re-credits the debited amount after a failed payment.
func (s *EventStore) RollbackWithdrawal(res WithdrawalReservation) error {
	const op = "store.EventStore.RollbackWithdrawal"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[res.EventID]
	if !ok {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}

	ev.FundsCollected.Add(ev.FundsCollected, res.Amount)

	return nil
}

func copyEvent(ev *domain.Event) *domain.Event {
	cp := *ev
	cp.TicketPrice = new(big.Int).Set(ev.TicketPrice)
	cp.FundsCollected = new(big.Int).Set(ev.FundsCollected)
	cp.FundsWithdrawn = new(big.Int).Set(ev.FundsWithdrawn)
	if ev.MaxResaleMultiplier != nil {
		cp.MaxResaleMultiplier = new(big.Rat).Set(ev.MaxResaleMultiplier)
	}
	if ev.Whitelist != nil {
		cp.Whitelist = append([]domain.AccountID(nil), ev.Whitelist...)
	}
	return &cp
}
