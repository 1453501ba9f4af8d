package store

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

func newEvent(id string, total uint64, price int64) domain.Event {
	return domain.Event{
		ID:             id,
		Name:           "Gig",
		Location:       "Hall",
		Date:           time.Date(2025, 7, 1, 20, 0, 0, 0, time.UTC),
		Organizer:      "org",
		TicketPrice:    big.NewInt(price),
		TotalTickets:   total,
		FundsCollected: new(big.Int),
		FundsWithdrawn: new(big.Int),
	}
}

func TestEventStoreInsertGet(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 5, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		ev, err := s.Get("e1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ev.TotalTickets != 5 || ev.TicketPrice.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("unexpected event %+v", ev)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 5, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Insert(newEvent("e1", 1, 1)); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := NewEventStore()
		if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("get returns an isolated copy", func(t *testing.T) {
		s := NewEventStore()
		ev := newEvent("e1", 5, 100)
		ev.Whitelist = []domain.AccountID{"vip"}
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, _ := s.Get("e1")
		got.TicketPrice.SetInt64(1)
		got.Whitelist[0] = "mallory"
		got.TicketsSold = 99

		again, _ := s.Get("e1")
		if again.TicketPrice.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("price mutated through a copy: %s", again.TicketPrice)
		}
		if again.Whitelist[0] != "vip" {
			t.Fatalf("whitelist mutated through a copy: %v", again.Whitelist)
		}
		if again.TicketsSold != 0 {
			t.Fatalf("counter mutated through a copy: %d", again.TicketsSold)
		}
	})
}

func TestEventStoreListByOrganizer(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	a := newEvent("e1", 5, 100)
	b := newEvent("e2", 5, 100)
	b.Organizer = "other"
	c := newEvent("e3", 5, 100)
	for _, ev := range []domain.Event{a, b, c} {
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got := s.ListByOrganizer("org")
	if len(got) != 2 {
		t.Fatalf("expected 2 events for org, got %d", len(got))
	}
	if len(s.ListByOrganizer("nobody")) != 0 {
		t.Fatalf("expected no events for unknown organizer")
	}
}

func TestEventStoreSaleReservation(t *testing.T) {
	t.Parallel()

	t.Run("reserve increments the counter immediately", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 2, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		res, err := s.ReserveSale("e1")
		if err != nil {
			t.Fatalf("ReserveSale: %v", err)
		}
		if res.Number != 1 || res.Price.Cmp(big.NewInt(100)) != 0 || res.Organizer != "org" {
			t.Fatalf("unexpected reservation %+v", res)
		}

		ev, _ := s.Get("e1")
		if ev.TicketsSold != 1 {
			t.Fatalf("expected tickets_sold 1 before commit, got %d", ev.TicketsSold)
		}
		if ev.FundsCollected.Sign() != 0 {
			t.Fatalf("funds must not move at reserve time, got %s", ev.FundsCollected)
		}
	})

	t.Run("reserve beyond capacity", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 1, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		if _, err := s.ReserveSale("e1"); err != nil {
			t.Fatalf("first ReserveSale: %v", err)
		}
		if _, err := s.ReserveSale("e1"); !errors.Is(err, ErrSoldOut) {
			t.Fatalf("expected ErrSoldOut, got %v", err)
		}
	})

	t.Run("commit records the proceeds", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 2, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		res, _ := s.ReserveSale("e1")
		if err := s.CommitSale(res); err != nil {
			t.Fatalf("CommitSale: %v", err)
		}

		ev, _ := s.Get("e1")
		if ev.TicketsSold != 1 || ev.FundsCollected.Cmp(big.NewInt(100)) != 0 {
			t.Fatalf("unexpected state after commit: sold=%d funds=%s", ev.TicketsSold, ev.FundsCollected)
		}
	})

	t.Run("rollback frees the slot but retires the number", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 1, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		res, _ := s.ReserveSale("e1")
		if err := s.RollbackSale(res); err != nil {
			t.Fatalf("RollbackSale: %v", err)
		}

		ev, _ := s.Get("e1")
		if ev.TicketsSold != 0 {
			t.Fatalf("expected tickets_sold 0 after rollback, got %d", ev.TicketsSold)
		}
		if ev.TicketsIssued != 1 {
			t.Fatalf("expected issue counter untouched by rollback, got %d", ev.TicketsIssued)
		}

		res2, err := s.ReserveSale("e1")
		if err != nil {
			t.Fatalf("ReserveSale after rollback: %v", err)
		}
		if res2.Number != 2 {
			t.Fatalf("expected fresh number 2, got %d", res2.Number)
		}
	})

	t.Run("rollback without a reservation fails", func(t *testing.T) {
		s := NewEventStore()
		if err := s.Insert(newEvent("e1", 1, 100)); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		if err := s.RollbackSale(SaleReservation{EventID: "e1"}); err == nil {
			t.Fatal("expected error for rollback with zero sold")
		}
	})
}

func TestEventStoreWithdrawalReservation(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, funds int64) *EventStore {
		t.Helper()
		s := NewEventStore()
		ev := newEvent("e1", 5, 100)
		ev.FundsCollected = big.NewInt(funds)
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		return s
	}

	t.Run("reserve debits immediately", func(t *testing.T) {
		s := seed(t, 200)

		res, err := s.ReserveWithdrawal("e1", big.NewInt(150))
		if err != nil {
			t.Fatalf("ReserveWithdrawal: %v", err)
		}

		ev, _ := s.Get("e1")
		if ev.FundsCollected.Cmp(big.NewInt(50)) != 0 {
			t.Fatalf("expected 50 remaining after reserve, got %s", ev.FundsCollected)
		}

		// A second reservation only sees what is left.
		if _, err := s.ReserveWithdrawal("e1", big.NewInt(51)); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}

		if err := s.CommitWithdrawal(res); err != nil {
			t.Fatalf("CommitWithdrawal: %v", err)
		}
		ev, _ = s.Get("e1")
		if ev.FundsWithdrawn.Cmp(big.NewInt(150)) != 0 {
			t.Fatalf("expected 150 recorded withdrawn, got %s", ev.FundsWithdrawn)
		}
	})

	t.Run("overdraw rejected", func(t *testing.T) {
		s := seed(t, 100)
		if _, err := s.ReserveWithdrawal("e1", big.NewInt(101)); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("full-balance and zero withdrawals allowed", func(t *testing.T) {
		s := seed(t, 100)
		if _, err := s.ReserveWithdrawal("e1", big.NewInt(100)); err != nil {
			t.Fatalf("full-balance reserve: %v", err)
		}
		if _, err := s.ReserveWithdrawal("e1", new(big.Int)); err != nil {
			t.Fatalf("zero reserve: %v", err)
		}
	})

	t.Run("rollback re-credits", func(t *testing.T) {
		s := seed(t, 200)

		res, _ := s.ReserveWithdrawal("e1", big.NewInt(150))
		if err := s.RollbackWithdrawal(res); err != nil {
			t.Fatalf("RollbackWithdrawal: %v", err)
		}

		ev, _ := s.Get("e1")
		if ev.FundsCollected.Cmp(big.NewInt(200)) != 0 {
			t.Fatalf("expected 200 restored, got %s", ev.FundsCollected)
		}
		if ev.FundsWithdrawn.Sign() != 0 {
			t.Fatalf("rollback must not record a withdrawal, got %s", ev.FundsWithdrawn)
		}
	})
}
