package store

import (
	"math/big"
	"testing"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	events := NewEventStore()
	tickets := NewTicketStore()

	ev := newEvent("e1", 5, 100)
	ev.MaxResaleMultiplier = big.NewRat(3, 2)
	ev.Whitelist = []domain.AccountID{"vip"}
	ev.TicketsSold = 2
	ev.TicketsIssued = 2
	ev.FundsCollected = big.NewInt(150)
	ev.FundsWithdrawn = big.NewInt(50)
	if err := events.Insert(ev); err != nil {
		t.Fatalf("Insert event: %v", err)
	}
	for n, owner := range []domain.AccountID{"alice", "bob"} {
		if err := tickets.Insert(newTicket("e1", uint64(n+1), owner)); err != nil {
			t.Fatalf("Insert ticket: %v", err)
		}
	}

	data, err := Capture(events, tickets).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	restoredEvents := NewEventStore()
	restoredTickets := NewTicketStore()
	if err := Restore(snap, restoredEvents, restoredTickets); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := restoredEvents.Get("e1")
	if err != nil {
		t.Fatalf("Get restored event: %v", err)
	}
	if got.TicketsSold != 2 {
		t.Fatalf("expected tickets_sold 2, got %d", got.TicketsSold)
	}
	if got.TicketsIssued != 2 {
		t.Fatalf("expected tickets_issued 2, got %d", got.TicketsIssued)
	}
	if got.FundsCollected.Cmp(big.NewInt(150)) != 0 || got.FundsWithdrawn.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("funds not restored: collected=%s withdrawn=%s", got.FundsCollected, got.FundsWithdrawn)
	}
	if got.MaxResaleMultiplier == nil || got.MaxResaleMultiplier.Cmp(big.NewRat(3, 2)) != 0 {
		t.Fatalf("multiplier not restored: %v", got.MaxResaleMultiplier)
	}
	if len(got.Whitelist) != 1 || got.Whitelist[0] != "vip" {
		t.Fatalf("whitelist not restored: %v", got.Whitelist)
	}

	tk, err := restoredTickets.Get(domain.TicketID{EventID: "e1", Number: 2})
	if err != nil {
		t.Fatalf("Get restored ticket: %v", err)
	}
	if tk.Owner != "bob" || len(tk.TransferHistory) != 1 {
		t.Fatalf("ticket not restored: %+v", tk)
	}

	// Counters picked up where they left off: the next reservation is number 3.
	res, err := restoredEvents.ReserveSale("e1")
	if err != nil {
		t.Fatalf("ReserveSale after restore: %v", err)
	}
	if res.Number != 3 {
		t.Fatalf("expected next number 3, got %d", res.Number)
	}
}

func TestSnapshotDropsTransferReservations(t *testing.T) {
	t.Parallel()

	events := NewEventStore()
	tickets := NewTicketStore()
	tk := newTicket("e1", 1, "alice")
	if err := tickets.Insert(tk); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tickets.ReserveTransfer(tk.ID, "alice"); err != nil {
		t.Fatalf("ReserveTransfer: %v", err)
	}

	snap := Capture(events, tickets)

	restoredEvents := NewEventStore()
	restoredTickets := NewTicketStore()
	if err := Restore(snap, restoredEvents, restoredTickets); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// The in-flight mark is transient; after restore the owner can transfer.
	if err := restoredTickets.ReserveTransfer(tk.ID, "alice"); err != nil {
		t.Fatalf("expected reservation cleared by restore, got %v", err)
	}
}

func TestRestoreRejectsMalformedTicketKey(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		Events: map[string]domain.Event{},
		Tickets: map[string]domain.Ticket{
			"no-number": {
				ID:            domain.TicketID{EventID: "e1", Number: 1},
				Owner:         "alice",
				OriginalPrice: big.NewInt(1),
				TransferHistory: []domain.TransferRecord{
					{At: time.Now(), Owner: "alice"},
				},
			},
		},
	}

	if err := Restore(snap, NewEventStore(), NewTicketStore()); err == nil {
		t.Fatal("expected error for malformed ticket key")
	}
}
