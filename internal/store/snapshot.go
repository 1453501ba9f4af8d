package store

import (
	"encoding/json"
	"fmt"

	"github.com/kirinyoku/tixmarket/internal/domain"
)

// Snapshot is the full contents of both tables, used for the save/restore
// contract around a version upgrade. It is a plain copy with no
// transformation; transfer reservations are transient and not part of it.
type Snapshot struct {
	Events  map[string]domain.Event  `json:"events"`
	Tickets map[string]domain.Ticket `json:"tickets"`
}

// Capture copies both tables into a Snapshot.
func Capture(events *EventStore, tickets *TicketStore) Snapshot {
	snap := Snapshot{
		Events:  make(map[string]domain.Event),
		Tickets: make(map[string]domain.Ticket),
	}

	events.mu.RLock()
	for id, ev := range events.events {
		snap.Events[id] = *copyEvent(ev)
	}
	events.mu.RUnlock()

	tickets.mu.RLock()
	for id, rec := range tickets.tickets {
		snap.Tickets[id.String()] = *copyTicket(&rec.ticket)
	}
	tickets.mu.RUnlock()

	return snap
}

// Restore replaces the contents of both tables with the snapshot's.
func Restore(snap Snapshot, events *EventStore, tickets *TicketStore) error {
	const op = "store.Restore"

	restoredTickets := make(map[domain.TicketID]*ticketRecord, len(snap.Tickets))
	for key, t := range snap.Tickets {
		id, err := domain.ParseTicketID(key)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		t := t
		restoredTickets[id] = &ticketRecord{ticket: *copyTicket(&t)}
	}

	restoredEvents := make(map[string]*domain.Event, len(snap.Events))
	for id, ev := range snap.Events {
		ev := ev
		restoredEvents[id] = copyEvent(&ev)
	}

	events.mu.Lock()
	events.events = restoredEvents
	events.mu.Unlock()

	tickets.mu.Lock()
	tickets.tickets = restoredTickets
	tickets.mu.Unlock()

	return nil
}

// Encode serializes the snapshot for durable storage.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot is the inverse of Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	const op = "store.DecodeSnapshot"

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}
