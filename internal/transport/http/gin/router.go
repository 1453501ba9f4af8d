package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tixmarket/internal/domain"
	redisrepo "github.com/kirinyoku/tixmarket/internal/repository/redis"
	"github.com/kirinyoku/tixmarket/internal/service"
	"github.com/kirinyoku/tixmarket/internal/service/engine"
	"github.com/kirinyoku/tixmarket/internal/service/query"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	jwtSecret []byte,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Read-only API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events", handleListEventsByOrganizer(svcs))
	r.GET("/tickets/:id", handleGetTicket(svcs))
	r.GET("/tickets", handleListTicketsByOwner(svcs))
	r.GET("/tickets/:id/metadata", handleTicketMetadata(svcs))
	r.GET("/tickets/:id/owner", handleTicketOwner(svcs))
	r.GET("/tickets/:id/history", handleTicketHistory(svcs))

	// State-mutating API, caller resolved from the platform token.
	authed := r.Group("/", IdentityMiddleware(jwtSecret))
	{
		authed.POST("/events", handleCreateEvent(svcs))
		authed.POST("/events/:id/tickets", handlePurchaseTicket(svcs, idem, limiter))
		authed.POST("/tickets/:id/transfer", handleTransferTicket(svcs))
		authed.POST("/events/:id/withdrawals", handleWithdrawFunds(svcs))
	}

	return r
}

// --- Handlers ---

// @Summary  Get event
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svcs.Query.GetEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=15")
	}
}

// @Summary  List events by organizer
func handleListEventsByOrganizer(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		organizer := c.Query("organizer")
		if organizer == "" {
			badRequest(c, "missing organizer")
			return
		}
		events, err := svcs.Query.EventsByOrganizer(
			c.Request.Context(),
			domain.AccountID(organizer),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=15")
	}
}

// @Summary  Get ticket
func handleGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseTicketIDParam(c)
		if !ok {
			return
		}
		t, err := svcs.Query.GetTicket(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  List tickets by owner
func handleListTicketsByOwner(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Query("owner")
		if owner == "" {
			badRequest(c, "missing owner")
			return
		}
		tickets, err := svcs.Query.TicketsByOwner(
			c.Request.Context(),
			domain.AccountID(owner),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)
	}
}

// @Summary  Ticket metadata accessor
func handleTicketMetadata(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseTicketIDParam(c)
		if !ok {
			return
		}
		md, err := svcs.Query.TicketMetadata(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, md)
	}
}

// @Summary  Ticket owner accessor
func handleTicketOwner(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseTicketIDParam(c)
		if !ok {
			return
		}
		owner, err := svcs.Query.TicketOwnerOf(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TicketOwnerResponse{Owner: string(owner)})
	}
}

// @Summary  Ticket transfer history accessor
func handleTicketHistory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseTicketIDParam(c)
		if !ok {
			return
		}
		history, err := svcs.Query.TicketTransferHistory(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

// @Summary  Create event
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseRFC3339(req.Date)
		if err != nil {
			badRequest(c, "invalid date (RFC3339)")
			return
		}
		price, err := parseAmount(req.TicketPrice)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		in := engine.CreateEventInput{
			Name:         req.Name,
			Location:     req.Location,
			Date:         date,
			TicketPrice:  price,
			TotalTickets: req.TotalTickets,
			Whitelist:    toWhitelist(req.Whitelist),
		}
		if req.MaxResaleMultiplier != nil {
			mult, err := parseMultiplier(*req.MaxResaleMultiplier)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			in.MaxResaleMultiplier = mult
		}

		id, err := svcs.Engine.CreateEvent(c.Request.Context(), Caller(c), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Purchase ticket (idempotent)
func handlePurchaseTicket(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := c.Param("id")
		caller := Caller(c)

		if limiter != nil {
			ok, _, retry, err := limiter.Allow(c.Request.Context(), string(caller))
			if err == nil && !ok {
				c.Header("Retry-After", retry.Round(time.Second).String())
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: "rate limited"},
				)
				return
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemPurchase(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		ticketID, err := svcs.Engine.PurchaseTicket(c.Request.Context(), caller, eventID)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := PurchaseTicketResponse{TicketID: ticketID.String()}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Transfer ticket (resale or gift)
func handleTransferTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseTicketIDParam(c)
		if !ok {
			return
		}
		var req TransferTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		var salePrice *big.Int
		if req.SalePrice != nil {
			p, err := parseAmount(*req.SalePrice)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			salePrice = p
		}

		err := svcs.Engine.TransferTicket(
			c.Request.Context(),
			Caller(c),
			id,
			domain.AccountID(req.NewOwner),
			salePrice,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Withdraw collected funds
func handleWithdrawFunds(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WithdrawFundsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		err = svcs.Engine.WithdrawFunds(
			c.Request.Context(),
			Caller(c),
			c.Param("id"),
			amount,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseTicketIDParam(c *gin.Context) (domain.TicketID, bool) {
	id, err := domain.ParseTicketID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid ticket id")
		return domain.TicketID{}, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var validationErr *engine.ValidationError
	var priceCapErr *engine.PriceCapError
	var paymentErr *engine.PaymentError

	switch {
	// engine service
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Error()})
		return
	case errors.As(err, &priceCapErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: priceCapErr.Error()})
		return
	case errors.As(err, &paymentErr):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: paymentErr.Error()})
		return
	case errors.Is(err, engine.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, engine.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
		return
	case errors.Is(err, engine.ErrSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "sold out"})
		return
	case errors.Is(err, engine.ErrTransferInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "transfer already in progress"})
		return
	case errors.Is(err, engine.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient funds collected"})
		return
	case errors.Is(err, engine.ErrNotWhitelisted):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not on whitelist"})
		return
	case errors.Is(err, engine.ErrNotOrganizer):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only organizer can withdraw"})
		return
	case errors.Is(err, engine.ErrNotTicketOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not ticket owner"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, query.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
