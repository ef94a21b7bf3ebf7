package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/events"
	"github.com/yourorg/backtest-service/internal/marketdata"
	"github.com/yourorg/backtest-service/internal/metrics"
	"github.com/yourorg/backtest-service/internal/repository"
	"github.com/yourorg/backtest-service/internal/service"
	"github.com/yourorg/backtest-service/internal/storage"
)

// App holds the wired collaborators shared by the server and the CLI
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Collector
	Service *service.BacktestService

	DB    *sqlx.DB
	Bars  marketdata.Source
	Cache *marketdata.CachedSource

	redis    *redis.Client
	producer *events.Producer
}

// New connects every configured backend and builds the backtest service
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewCollector()}

	deps := service.Dependencies{Metrics: a.Metrics}

	if cfg.Database.Enabled {
		db, err := repository.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.DB = db
		if cfg.Database.AutoMigrate {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				a.closeBackends()
				return nil, fmt.Errorf("migrating schema: %w", err)
			}
		}
		deps.Store = repository.NewBacktestRepository(db, logger)
	}

	bars, err := marketdata.NewSource(cfg.MarketData, a.DB, logger)
	if err != nil {
		a.closeBackends()
		return nil, err
	}
	a.Bars = bars

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, bar cache will miss until it recovers", zap.Error(err))
		}
		a.Cache = marketdata.NewCachedSource(bars, a.redis, cfg.Redis.TTL, a.Metrics, logger)
		a.Bars = a.Cache
	}
	deps.Bars = a.Bars

	archive, err := storage.NewArchive(cfg.Storage)
	if err != nil {
		a.closeBackends()
		return nil, fmt.Errorf("creating result archive: %w", err)
	}
	deps.Archive = archive

	if cfg.Kafka.Enabled {
		a.producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topics["executionevents"], logger)
		deps.Events = a.producer
	} else {
		deps.Events = events.NewLogPublisher(logger)
	}

	a.Service = service.NewBacktestService(deps, service.Options{
		Workers:              cfg.Engine.Workers,
		OptimizerParallelism: cfg.Engine.OptimizerParallelism,
		MaxCombinations:      cfg.Engine.MaxCombinations,
		ExecutionTimeout:     cfg.Engine.ExecutionTimeout,
		ResultRetention:      cfg.Engine.ResultRetention,
	}, logger)

	if err := a.Service.Recover(ctx); err != nil {
		logger.Warn("Startup recovery incomplete", zap.Error(err))
	}
	return a, nil
}

// Close stops the service and releases backends in reverse order of creation
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Service != nil {
		err = a.Service.Close(ctx)
	}
	a.closeBackends()
	return err
}

func (a *App) closeBackends() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.Logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
