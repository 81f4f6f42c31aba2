// Package app wires the stores, breakers, event producer and engines that the
// souvenir binaries share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/utafrali/SouvenirShop/internal/config"
	"github.com/utafrali/SouvenirShop/internal/event"
	handler "github.com/utafrali/SouvenirShop/internal/handler/http"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/internal/repository/guarded"
	mongorepo "github.com/utafrali/SouvenirShop/internal/repository/mongo"
	"github.com/utafrali/SouvenirShop/internal/repository/postgres"
	"github.com/utafrali/SouvenirShop/internal/repository/postgres/migrations"
	redisrepo "github.com/utafrali/SouvenirShop/internal/repository/redis"
	"github.com/utafrali/SouvenirShop/internal/service"
	"github.com/utafrali/SouvenirShop/pkg/breaker"
	"github.com/utafrali/SouvenirShop/pkg/database"
	"github.com/utafrali/SouvenirShop/pkg/health"
	pkgkafka "github.com/utafrali/SouvenirShop/pkg/kafka"
	"github.com/utafrali/SouvenirShop/pkg/tracing"
)

// MongoDB collection names.
const (
	CollectionSouvenirs = "souvenirs"
	CollectionCarts     = "carts"
)

// App holds the connected stores and the engines built on top of them.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	serviceName string

	pool           *pgxpool.Pool
	mongo          *mongo.Client
	redis          *redis.Client
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error

	Health    *health.Handler
	Souvenirs repository.SouvenirRepository
	Carts     repository.CartRepository
	Publisher service.EventPublisher

	Query       *service.QueryService
	Rating      *service.RatingService
	Pricing     *service.PricingService
	Maintenance *service.MaintenanceService
	Seed        *service.SeedService
}

// New connects every store the configuration selects, prepares their schema
// and indexes, and builds the engines. On error everything opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, serviceName string) (_ *App, err error) {
	a := &App{
		cfg:         cfg,
		logger:      logger,
		serviceName: serviceName,
		Health:      health.NewHandler(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.tracerShutdown, err = tracing.InitTracer(initCtx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	if cfg.UsesMongo() {
		if err := a.connectMongo(initCtx); err != nil {
			return nil, err
		}
	}

	souvenirs, err := a.openCatalog(initCtx)
	if err != nil {
		return nil, err
	}
	carts, err := a.openCarts(initCtx)
	if err != nil {
		return nil, err
	}

	if cfg.BreakerEnabled {
		souvenirs = guarded.NewSouvenirRepository(souvenirs, a.newBreaker("catalog-store"))
		carts = guarded.NewCartRepository(carts, a.newBreaker("cart-store"))
	}
	a.Souvenirs = souvenirs
	a.Carts = carts

	a.Publisher = a.openPublisher(initCtx)

	a.Query = service.NewQueryService(souvenirs, logger)
	a.Rating = service.NewRatingService(souvenirs, a.Publisher, logger)
	a.Pricing = service.NewPricingService(souvenirs, carts, logger)
	a.Maintenance = service.NewMaintenanceService(souvenirs, carts, a.Publisher, logger)
	a.Seed = service.NewSeedService(souvenirs, carts, logger)

	return a, nil
}

func (a *App) newBreaker(name string) *breaker.Breaker {
	b := breaker.New(a.cfg.Breaker(name), a.logger)
	a.Health.RegisterNonCritical("breaker:"+name, b.HealthCheck)
	return b
}

func (a *App) connectMongo(ctx context.Context) error {
	client, err := database.NewMongoClient(ctx, a.cfg.Mongo(), a.logger)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	a.mongo = client
	a.logger.Info("connected to MongoDB", slog.String("database", a.cfg.MongoDatabase))

	a.Health.RegisterCritical("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	return nil
}

func (a *App) mongoCollection(name string) *mongo.Collection {
	return a.mongo.Database(a.cfg.MongoDatabase).Collection(name)
}

func (a *App) openCatalog(ctx context.Context) (repository.SouvenirRepository, error) {
	if a.cfg.CatalogStore == config.StoreMongo {
		repo := mongorepo.NewSouvenirRepository(a.mongoCollection(CollectionSouvenirs))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure souvenir indexes: %w", err)
		}
		return repo, nil
	}

	pgCfg := a.cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	if err := database.RegisterPoolMetrics(pool, a.serviceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	a.Health.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewSouvenirRepository(pool), nil
}

func (a *App) openCarts(ctx context.Context) (repository.CartRepository, error) {
	if a.cfg.CartStore == config.StoreMongo {
		repo := mongorepo.NewCartRepository(a.mongoCollection(CollectionCarts))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure cart indexes: %w", err)
		}
		return repo, nil
	}

	client, err := database.NewRedisClient(ctx, a.cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.logger.Info("connected to Redis", slog.String("addr", a.cfg.RedisAddr))

	a.Health.RegisterCritical("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return redisrepo.NewCartRepository(client, a.cfg.CartTTLDuration()), nil
}

// openPublisher returns the Kafka event producer, or a publisher that drops
// events when Kafka is disabled. An unreachable broker is not fatal: events
// are best-effort.
func (a *App) openPublisher(ctx context.Context) service.EventPublisher {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("kafka disabled, domain events are dropped")
		return event.NoopPublisher{}
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	if err := pingKafkaWithRetry(ctx, a.producer, a.logger); err != nil {
		a.logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))
	}

	producer := a.producer
	a.Health.RegisterNonCritical("kafka", producer.Ping)
	return event.NewProducer(producer, a.logger)
}

// RedisClient returns the Redis client, or nil when carts are not stored in
// Redis.
func (a *App) RedisClient() *redis.Client {
	return a.redis
}

// OpsServer returns the HTTP server for health and metrics endpoints.
func (a *App) OpsServer() *http.Server {
	router := handler.NewRouter(a.serviceName, a.Health, a.logger)
	return handler.NewServer(fmt.Sprintf(":%d", a.cfg.HTTPPort), router)
}

// Close releases every connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Error("mongodb disconnect error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
