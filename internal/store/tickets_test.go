package store

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

func newTicket(eventID string, number uint64, owner domain.AccountID) domain.Ticket {
	minted := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Ticket{
		ID:            domain.TicketID{EventID: eventID, Number: number},
		Owner:         owner,
		Metadata:      domain.TicketMetadata{EventID: eventID},
		OriginalPrice: big.NewInt(100),
		TransferHistory: []domain.TransferRecord{
			{At: minted, Owner: owner},
		},
	}
}

func TestTicketStoreInsertGet(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		s := NewTicketStore()
		tk := newTicket("e1", 1, "alice")
		if err := s.Insert(tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, err := s.Get(tk.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Owner != "alice" || got.OriginalPrice.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("unexpected ticket %+v", got)
		}
	})

	t.Run("same number under different events", func(t *testing.T) {
		s := NewTicketStore()
		if err := s.Insert(newTicket("e1", 1, "alice")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Insert(newTicket("e2", 1, "bob")); err != nil {
			t.Fatalf("ticket 1 of a different event must not collide: %v", err)
		}
		if err := s.Insert(newTicket("e1", 1, "carol")); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("get returns an isolated copy", func(t *testing.T) {
		s := NewTicketStore()
		tk := newTicket("e1", 1, "alice")
		if err := s.Insert(tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, _ := s.Get(tk.ID)
		got.OriginalPrice.SetInt64(1)
		got.TransferHistory[0].Owner = "mallory"

		again, _ := s.Get(tk.ID)
		if again.OriginalPrice.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("price mutated through a copy: %s", again.OriginalPrice)
		}
		if again.TransferHistory[0].Owner != "alice" {
			t.Fatalf("history mutated through a copy: %+v", again.TransferHistory)
		}
	})
}

func TestTicketStoreListByOwner(t *testing.T) {
	t.Parallel()

	s := NewTicketStore()
	for i, owner := range []domain.AccountID{"alice", "bob", "alice"} {
		if err := s.Insert(newTicket("e1", uint64(i+1), owner)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if got := s.ListByOwner("alice"); len(got) != 2 {
		t.Fatalf("expected 2 tickets for alice, got %d", len(got))
	}
	if got := s.ListByOwner("carol"); len(got) != 0 {
		t.Fatalf("expected no tickets for carol, got %d", len(got))
	}
}

func TestTicketStoreTransferReservation(t *testing.T) {
	t.Parallel()

	t.Run("reserve is exclusive until released", func(t *testing.T) {
		s := NewTicketStore()
		tk := newTicket("e1", 1, "alice")
		if err := s.Insert(tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		if err := s.ReserveTransfer(tk.ID, "alice"); err != nil {
			t.Fatalf("ReserveTransfer: %v", err)
		}
		if err := s.ReserveTransfer(tk.ID, "alice"); !errors.Is(err, ErrTransferInFlight) {
			t.Fatalf("expected ErrTransferInFlight, got %v", err)
		}

		if err := s.ReleaseTransfer(tk.ID); err != nil {
			t.Fatalf("ReleaseTransfer: %v", err)
		}
		if err := s.ReserveTransfer(tk.ID, "alice"); err != nil {
			t.Fatalf("reserve after release: %v", err)
		}
	})

	t.Run("only the owner may reserve", func(t *testing.T) {
		s := NewTicketStore()
		tk := newTicket("e1", 1, "alice")
		if err := s.Insert(tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		if err := s.ReserveTransfer(tk.ID, "mallory"); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("unknown ticket", func(t *testing.T) {
		s := NewTicketStore()
		id := domain.TicketID{EventID: "e1", Number: 1}
		if err := s.ReserveTransfer(id, "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTicketStoreSetOwner(t *testing.T) {
	t.Parallel()

	t.Run("appends history and clears the reservation", func(t *testing.T) {
		s := NewTicketStore()
		tk := newTicket("e1", 1, "alice")
		if err := s.Insert(tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		if err := s.ReserveTransfer(tk.ID, "alice"); err != nil {
			t.Fatalf("ReserveTransfer: %v", err)
		}

		at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
		if err := s.SetOwner(tk.ID, "bob", at); err != nil {
			t.Fatalf("SetOwner: %v", err)
		}

		got, _ := s.Get(tk.ID)
		if got.Owner != "bob" {
			t.Fatalf("expected owner bob, got %s", got.Owner)
		}
		if len(got.TransferHistory) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(got.TransferHistory))
		}
		last := got.TransferHistory[len(got.TransferHistory)-1]
		if last.Owner != "bob" || !last.At.Equal(at) {
			t.Fatalf("unexpected last history entry %+v", last)
		}

		// The mark is gone: the new owner can reserve.
		if err := s.ReserveTransfer(tk.ID, "bob"); err != nil {
			t.Fatalf("reserve by new owner: %v", err)
		}
	})

	t.Run("unknown ticket", func(t *testing.T) {
		s := NewTicketStore()
		id := domain.TicketID{EventID: "e1", Number: 1}
		if err := s.SetOwner(id, "bob", time.Now()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
