// Package query is the read-only facade over the event and ticket tables.
// Reads observe committed state only; reservation internals are never
// exposed here.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tixmarket/internal/domain"
	redisx "github.com/kirinyoku/tixmarket/internal/redis"
	redisrepo "github.com/kirinyoku/tixmarket/internal/repository/redis"
	"github.com/kirinyoku/tixmarket/internal/store"
)

type Config struct {
	EventSummaryTTL time.Duration
}

type Service struct {
	events  *store.EventStore
	tickets *store.TicketStore
	cache   *redisrepo.Cache
	cfg     Config
}

func New(events *store.EventStore, tickets *store.TicketStore, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	return &Service{
		events:  events,
		tickets: tickets,
		cache:   cache,
		cfg:     cfg,
	}
}

// GetEvent retrieves an event by its ID, through the summary cache when one
// is wired.
//
// Returns:
//   - *domain.Event: the retrieved event.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	if s.cache == nil {
		ev, err := s.events.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateErr(err))
		}
		return ev, nil
	}

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyEventSummary(id),
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.events.Get(id)
			if err != nil {
				return domain.Event{}, translateErr(err)
			}
			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &event, nil
}

// GetTicket retrieves a ticket by its ID.
//
// Returns:
//   - *domain.Ticket: the retrieved ticket.
//   - error: query.ErrTicketNotFound if the ticket is not found.
func (s *Service) GetTicket(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	const op = "service.query.GetTicket"

	t, err := s.tickets.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}

	return t, nil
}

// EventsByOrganizer lists every event created by the organizer.
func (s *Service) EventsByOrganizer(ctx context.Context, organizer domain.AccountID) ([]domain.Event, error) {
	return s.events.ListByOrganizer(organizer), nil
}

// TicketsByOwner lists every ticket currently held by owner.
func (s *Service) TicketsByOwner(ctx context.Context, owner domain.AccountID) ([]domain.Ticket, error) {
	return s.tickets.ListByOwner(owner), nil
}

// TicketMetadata is the read-only metadata accessor for NFT-aware tooling.
func (s *Service) TicketMetadata(ctx context.Context, id domain.TicketID) (*domain.TicketMetadata, error) {
	const op = "service.query.TicketMetadata"

	t, err := s.tickets.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}

	return &t.Metadata, nil
}

// TicketOwnerOf is the read-only owner accessor for NFT-aware tooling.
func (s *Service) TicketOwnerOf(ctx context.Context, id domain.TicketID) (domain.AccountID, error) {
	const op = "service.query.TicketOwnerOf"

	t, err := s.tickets.Get(id)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}

	return t.Owner, nil
}

// TicketTransferHistory is the read-only history accessor for NFT-aware
// tooling.
func (s *Service) TicketTransferHistory(ctx context.Context, id domain.TicketID) ([]domain.TransferRecord, error) {
	const op = "service.query.TicketTransferHistory"

	t, err := s.tickets.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}

	return t.TransferHistory, nil
}

func translateErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrEventNotFound
	}
	return err
}

func translateTicketErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTicketNotFound
	}
	return err
}
