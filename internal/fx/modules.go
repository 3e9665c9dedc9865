package fx

import (
	"inhouse-queue/internal/config"
	"inhouse-queue/internal/database"
	"inhouse-queue/internal/logger"
	"inhouse-queue/internal/repository"
	"inhouse-queue/internal/server"
	"inhouse-queue/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewPoolRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewRatingHistoryRepository),
	// svc
	fx.Provide(service.NewQueueService),
	fx.Provide(service.NewLedgerService),
	fx.Provide(service.NewStatsService),
	// server
	fx.Provide(server.NewQueueServer),
)
