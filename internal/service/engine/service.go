// Package engine implements the four state-mutating marketplace operations
// and the reservation protocol that keeps them safe across ledger calls.
//
// Every operation that checks a capacity or balance invariant and then pays
// through the ledger is split into three segments: check-and-reserve
// (synchronous, one store critical section), pay (awaits the ledger, may
// suspend), and commit-or-rollback (synchronous again). No invariant is
// checked and then relied upon across the payment await without first being
// turned into a held reservation — that is what closes the oversell and
// double-withdrawal races.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/kirinyoku/tixmarket/internal/clock"
	"github.com/kirinyoku/tixmarket/internal/domain"
	"github.com/kirinyoku/tixmarket/internal/entropy"
	"github.com/kirinyoku/tixmarket/internal/ledger"
	redisx "github.com/kirinyoku/tixmarket/internal/redis"
	redisrepo "github.com/kirinyoku/tixmarket/internal/repository/redis"
	"github.com/kirinyoku/tixmarket/internal/store"
)

type Service struct {
	events  *store.EventStore
	tickets *store.TicketStore
	ledger  ledger.Client
	entropy entropy.Source
	clock   clock.Clock

	// cache and pubsub are optional; the core runs without them.
	cache  *redisrepo.Cache
	pubsub *redisx.EventsPubSub
	logger *slog.Logger
}

func New(
	events *store.EventStore,
	tickets *store.TicketStore,
	ledgerClient ledger.Client,
	src entropy.Source,
	clk clock.Clock,
	cache *redisrepo.Cache,
	pubsub *redisx.EventsPubSub,
	logger *slog.Logger,
) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		events:  events,
		tickets: tickets,
		ledger:  ledgerClient,
		entropy: src,
		clock:   clk,
		cache:   cache,
		pubsub:  pubsub,
		logger:  logger,
	}
}

type CreateEventInput struct {
	Name                string
	Location            string
	Date                time.Time
	TicketPrice         *big.Int
	TotalTickets        uint64
	MaxResaleMultiplier *big.Rat
	Whitelist           []domain.AccountID
}

// CreateEvent registers a new event for caller and returns its identifier.
//
// The entropy draw suspends, but no shared state is reserved before or during
// it, so no reservation is needed here.
//
// Returns:
//   - string: the fresh event id.
//   - error: *engine.ValidationError for malformed input.
func (s *Service) CreateEvent(
	ctx context.Context,
	caller domain.AccountID,
	in CreateEventInput,
) (string, error) {
	const op = "service.engine.CreateEvent"

	if len(in.Name) == 0 || len(in.Name) > domain.MaxEventNameLength {
		return "", fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "name",
			Reason: fmt.Sprintf("must be 1-%d characters", domain.MaxEventNameLength),
		})
	}
	if !in.Date.After(s.clock.Now()) {
		return "", fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "date",
			Reason: "must be in the future",
		})
	}
	if in.TotalTickets < 1 {
		return "", fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "total_tickets",
			Reason: "must have at least 1 ticket",
		})
	}
	if in.TicketPrice == nil || in.TicketPrice.Sign() < 0 {
		return "", fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "ticket_price",
			Reason: "must be a non-negative amount",
		})
	}
	if in.MaxResaleMultiplier != nil && in.MaxResaleMultiplier.Sign() <= 0 {
		return "", fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "max_resale_multiplier",
			Reason: "must be positive",
		})
	}

	eventID, err := entropy.NewEventID(ctx, s.entropy)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	ev := domain.Event{
		ID:                  eventID,
		Name:                in.Name,
		Location:            in.Location,
		Date:                in.Date,
		Organizer:           caller,
		TicketPrice:         new(big.Int).Set(in.TicketPrice),
		MaxResaleMultiplier: in.MaxResaleMultiplier,
		TotalTickets:        in.TotalTickets,
		FundsCollected:      big.NewInt(0),
		FundsWithdrawn:      big.NewInt(0),
		Whitelist:           in.Whitelist,
	}

	if err := s.events.Insert(ev); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("event created", "event_id", eventID, "organizer", caller)

	return eventID, nil
}

// PurchaseTicket sells one ticket of the event to caller.
//
// The capacity unit is reserved before the payment is awaited: a concurrent
// purchase during the suspension sees the incremented sold counter and is
// rejected with sold-out, and a failed payment frees the slot again — the
// ticket is never both granted twice and never lost.
//
// Returns:
//   - domain.TicketID: the minted ticket, numbered from the event's monotonic
//     issue counter.
//   - error: engine.ErrEventNotFound, engine.ErrNotWhitelisted,
//     engine.ErrSoldOut, or *engine.PaymentError after rollback.
func (s *Service) PurchaseTicket(
	ctx context.Context,
	caller domain.AccountID,
	eventID string,
) (domain.TicketID, error) {
	const op = "service.engine.PurchaseTicket"

	ev, err := s.events.Get(eventID)
	if err != nil {
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	if !ev.Whitelisted(caller) {
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, ErrNotWhitelisted)
	}

	res, err := s.events.ReserveSale(eventID)
	if err != nil {
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	now := s.clock.Now()

	// Suspension point: the capacity reservation is already held.
	_, payErr := s.ledger.Transfer(ctx, ledger.TransferArgs{
		To:        string(res.Organizer),
		Amount:    res.Price,
		Memo:      []byte(eventID),
		CreatedAt: now,
	})
	if payErr != nil {
		if rbErr := s.events.RollbackSale(res); rbErr != nil {
			s.logger.Error("sale rollback failed", "event_id", eventID, "error", rbErr)
		}
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, &PaymentError{Err: payErr})
	}

	ticket := domain.Ticket{
		ID:    domain.TicketID{EventID: eventID, Number: res.Number},
		Owner: caller,
		Metadata: domain.TicketMetadata{
			EventID: eventID,
		},
		OriginalPrice: new(big.Int).Set(res.Price),
		TransferHistory: []domain.TransferRecord{
			{At: now, Owner: caller},
		},
	}

	if err := s.tickets.Insert(ticket); err != nil {
		if rbErr := s.events.RollbackSale(res); rbErr != nil {
			s.logger.Error("sale rollback failed", "event_id", eventID, "error", rbErr)
		}
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.events.CommitSale(res); err != nil {
		return domain.TicketID{}, fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)
	s.logger.Info("ticket purchased",
		"ticket_id", ticket.ID.String(), "buyer", caller, "event_id", eventID)

	return ticket.ID, nil
}

// TransferTicket moves the ticket to newOwner, optionally collecting a resale
// payment for caller. A nil salePrice is a gift transfer with no ledger call.
//
// Ownership is reserved (marked transfer-in-flight) before the payment is
// awaited, so a second transfer of the same ticket during the suspension
// fails with a conflict instead of producing two payments for one ticket.
//
// Returns:
//   - error: engine.ErrTicketNotFound, engine.ErrNotTicketOwner,
//     engine.ErrTransferInFlight, *engine.PriceCapError, or
//     *engine.PaymentError after the reservation is released.
func (s *Service) TransferTicket(
	ctx context.Context,
	caller domain.AccountID,
	ticketID domain.TicketID,
	newOwner domain.AccountID,
	salePrice *big.Int,
) error {
	const op = "service.engine.TransferTicket"

	t, err := s.tickets.Get(ticketID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}
	if t.Owner != caller {
		return fmt.Errorf("%s:%w", op, ErrNotTicketOwner)
	}

	ev, err := s.events.Get(t.Metadata.EventID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	if salePrice != nil {
		if salePrice.Sign() < 0 {
			return fmt.Errorf("%s:%w", op, &ValidationError{
				Field:  "sale_price",
				Reason: "must be a non-negative amount",
			})
		}
		if max := ev.MaxResalePrice(t.OriginalPrice); max != nil && salePrice.Cmp(max) > 0 {
			return fmt.Errorf("%s:%w", op, &PriceCapError{
				SalePrice: new(big.Int).Set(salePrice),
				MaxPrice:  max,
			})
		}
	}

	if err := s.tickets.ReserveTransfer(ticketID, caller); err != nil {
		return fmt.Errorf("%s:%w", op, translateTicketErr(err))
	}

	now := s.clock.Now()

	if salePrice != nil {
		// Suspension point: the transfer-in-flight mark is already held.
		_, payErr := s.ledger.Transfer(ctx, ledger.TransferArgs{
			To:        string(caller),
			Amount:    salePrice,
			Memo:      []byte("resale-" + ticketID.String()),
			CreatedAt: now,
		})
		if payErr != nil {
			if rbErr := s.tickets.ReleaseTransfer(ticketID); rbErr != nil {
				s.logger.Error("transfer release failed",
					"ticket_id", ticketID.String(), "error", rbErr)
			}
			return fmt.Errorf("%s:%w", op, &PaymentError{Err: payErr})
		}
	}

	if err := s.tickets.SetOwner(ticketID, newOwner, now); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, ev.ID)
	s.logger.Info("ticket transferred",
		"ticket_id", ticketID.String(), "from", caller, "to", newOwner)

	return nil
}

// WithdrawFunds pays out amount of the event's collected funds to its
// organizer.
//
// The balance is debited at reserve time, so a concurrent withdrawal sees the
// already-reduced balance; a failed payment re-credits it.
//
// Returns:
//   - error: engine.ErrEventNotFound, engine.ErrNotOrganizer,
//     engine.ErrInsufficientFunds (no ledger call attempted), or
//     *engine.PaymentError after rollback.
func (s *Service) WithdrawFunds(
	ctx context.Context,
	caller domain.AccountID,
	eventID string,
	amount *big.Int,
) error {
	const op = "service.engine.WithdrawFunds"

	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%s:%w", op, &ValidationError{
			Field:  "amount",
			Reason: "must be a non-negative amount",
		})
	}

	ev, err := s.events.Get(eventID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}
	if ev.Organizer != caller {
		return fmt.Errorf("%s:%w", op, ErrNotOrganizer)
	}

	res, err := s.events.ReserveWithdrawal(eventID, amount)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	// Suspension point: the balance is already debited.
	_, payErr := s.ledger.Transfer(ctx, ledger.TransferArgs{
		To:        string(ev.Organizer),
		Amount:    amount,
		Memo:      []byte("withdraw-" + eventID),
		CreatedAt: s.clock.Now(),
	})
	if payErr != nil {
		if rbErr := s.events.RollbackWithdrawal(res); rbErr != nil {
			s.logger.Error("withdrawal rollback failed", "event_id", eventID, "error", rbErr)
		}
		return fmt.Errorf("%s:%w", op, &PaymentError{Err: payErr})
	}

	if err := s.events.CommitWithdrawal(res); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)
	s.logger.Info("funds withdrawn", "event_id", eventID, "organizer", caller, "amount", amount)

	return nil
}

// afterCommit runs the post-commit side effects. Both collaborators are
// best-effort: a failed invalidation or publish never affects the committed
// operation.
func (s *Service) afterCommit(ctx context.Context, eventID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrEventNotFound
	case errors.Is(err, store.ErrSoldOut):
		return ErrSoldOut
	case errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientFunds
	default:
		return err
	}
}

func translateTicketErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrTicketNotFound
	case errors.Is(err, store.ErrNotOwner):
		return ErrNotTicketOwner
	case errors.Is(err, store.ErrTransferInFlight):
		return ErrTransferInFlight
	default:
		return err
	}
}
