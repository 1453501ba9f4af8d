package service

import (
	"log/slog"

	"github.com/kirinyoku/tixmarket/internal/clock"
	"github.com/kirinyoku/tixmarket/internal/entropy"
	"github.com/kirinyoku/tixmarket/internal/ledger"
	redisx "github.com/kirinyoku/tixmarket/internal/redis"
	redisrepo "github.com/kirinyoku/tixmarket/internal/repository/redis"
	"github.com/kirinyoku/tixmarket/internal/service/engine"
	"github.com/kirinyoku/tixmarket/internal/service/query"
	"github.com/kirinyoku/tixmarket/internal/store"
)

type Services struct {
	Engine *engine.Service
	Query  *query.Service
}

type Config struct {
	Query query.Config
}

func NewServices(
	events *store.EventStore,
	tickets *store.TicketStore,
	ledgerClient ledger.Client,
	src entropy.Source,
	clk clock.Clock,
	cache *redisrepo.Cache,
	pubsub *redisx.EventsPubSub,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Engine: engine.New(events, tickets, ledgerClient, src, clk, cache, pubsub, logger),
		Query:  query.New(events, tickets, cache, cfg.Query),
	}
}
