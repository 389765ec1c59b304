// Package app wires configuration into the running service: store, optional redis locks,
// graph projection and kafka, the domain services and the HTTP router.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/internal/repositories/memory"
	"github.com/Ramsey-B/fern/internal/seed"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linking"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/nodes"
	"github.com/Ramsey-B/fern/pkg/proposals"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// App owns every long-lived component. Service fields are populated by Start.
type App struct {
	Config *config.Config
	Logger ectologger.Logger
	Health *health.Checker

	Store        *repositories.Store
	Audit        *audit.Log
	Executor     *merging.Executor
	Workflow     *proposals.Workflow
	Queue        *reconciliation.Queue
	Orchestrator *ingestion.Orchestrator
	Nodes        *nodes.Service
	Seeder       *seed.Seeder

	db       database.DB
	locker   *redis.Locker
	sinks    []events.Sink
	startup  *startup.Startup
	consumer *kafka.Consumer
}

// Options narrow what Start brings up. Only serve consumes kafka.
type Options struct {
	Consume bool
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		Health:  health.NewChecker(cfg.Version),
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
}

// Start brings up the configured dependencies in order and builds the services.
func (a *App) Start(ctx context.Context, opts Options) error {
	if err := a.MatchConfig().Validate(); err != nil {
		a.Logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"auto_threshold":      a.Config.MatchAutoThreshold,
			"candidate_threshold": a.Config.MatchCandidateThreshold,
		}).Error("Invalid matching configuration")
		return errors.Wrap(err, "invalid matching configuration")
	}

	a.startup.AddDependency(a.tracingDependency())
	a.startup.AddDependency(a.storeDependency())
	a.startup.AddDependency(a.redisDependency())
	a.startup.AddDependency(a.graphDependency())
	a.startup.AddDependency(a.producerDependency())
	a.startup.AddDependency(startup.Func{
		Name:     "services",
		Requires: []string{"tracing", "store", "redis", "graph", "kafka-producer"},
		OnStart: func(context.Context) error {
			a.buildServices()
			return nil
		},
	})
	if opts.Consume {
		a.startup.AddDependency(a.consumerDependency())
	}

	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.Health.SetReady(true)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}

func (a *App) tracingDependency() startup.Dependency {
	var shutdown func(context.Context) error
	return startup.Func{
		Name: "tracing",
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Setup(ctx, tracing.ProviderConfig{
				ServiceName:   a.Config.AppName,
				Enabled:       a.Config.OTLPEnabled,
				Endpoint:      a.Config.OTLPEndpoint,
				Protocol:      a.Config.OTLPProtocol,
				Insecure:      a.Config.OTLPInsecure,
				SampleRatio:   a.Config.OTLPSampleRatio,
				ExportTimeout: 10 * time.Second,
			}, a.Logger)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	}
}

func (a *App) storeDependency() startup.Dependency {
	return startup.Func{
		Name: "store",
		OnStart: func(ctx context.Context) error {
			if !a.Config.UsePostgres() {
				a.Logger.Warn("Using the in-memory store; data is lost on exit")
				a.Store = memory.NewStore()
				return nil
			}

			db, err := database.Connect(ctx, a.DatabaseConfig(), a.Logger)
			if err != nil {
				return err
			}
			if a.Config.DatabaseMigrateOnStart {
				if err := a.Migrate(db); err != nil {
					_ = db.Close()
					return err
				}
			}
			a.db = db
			a.Store = repositories.NewPostgresStore(db, a.Logger)
			a.Health.Register("postgres", db.PingContext)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
}

func (a *App) redisDependency() startup.Dependency {
	var client *redis.Client
	return startup.Func{
		Name: "redis",
		OnStart: func(ctx context.Context) error {
			if a.Config.RedisHost == "" {
				return nil
			}
			var err error
			client, err = redis.NewClient(ctx, redis.Config{
				Host:     a.Config.RedisHost,
				Port:     a.Config.RedisPort,
				Password: a.Config.RedisPassword,
				DB:       a.Config.RedisDB,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.locker = redis.NewLocker(client, a.Config.RedisLockPrefix)
			a.Health.Register("redis", client.Ping)
			return nil
		},
		OnStop: func(context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close()
		},
	}
}

func (a *App) graphDependency() startup.Dependency {
	var client *graph.Client
	return startup.Func{
		Name:     "graph",
		Requires: []string{"store"},
		OnStart: func(ctx context.Context) error {
			if a.Config.GraphHost == "" {
				return nil
			}
			var err error
			client, err = graph.NewClient(graph.Config{
				Host:     a.Config.GraphHost,
				Port:     a.Config.GraphPort,
				Username: a.Config.GraphUsername,
				Password: a.Config.GraphPassword,
			}, a.Logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				_ = client.Close(ctx)
				return err
			}
			a.sinks = append(a.sinks, graph.NewProjector(client, a.Store.Edges, a.Logger))
			a.Health.Register("graph", client.VerifyConnectivity)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close(ctx)
		},
	}
}

func (a *App) producerDependency() startup.Dependency {
	var producer *kafka.Producer
	return startup.Func{
		Name: "kafka-producer",
		OnStart: func(context.Context) error {
			brokers := a.Config.KafkaBrokerList()
			if len(brokers) == 0 {
				return nil
			}
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      brokers,
				Topic:        a.Config.KafkaEventTopic,
				BatchSize:    a.Config.KafkaBatchSize,
				BatchTimeout: a.Config.KafkaBatchTimeout,
				RequiredAcks: a.Config.KafkaRequiredAcks,
				Compression:  a.Config.KafkaCompression,
			}, a.Logger)
			a.sinks = append(a.sinks, events.NewEmitter(producer))
			return nil
		},
		OnStop: func(context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	}
}

func (a *App) consumerDependency() startup.Dependency {
	return startup.Func{
		Name:     "kafka-consumer",
		Requires: []string{"services"},
		OnStart: func(ctx context.Context) error {
			brokers := a.Config.KafkaBrokerList()
			if len(brokers) == 0 {
				return nil
			}
			a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       brokers,
				Topic:         a.Config.KafkaInvoiceTopic,
				ConsumerGroup: a.Config.KafkaConsumerGroup,
			}, a.Logger, a.Orchestrator.MessageHandler())
			// the consumer outlives the startup context
			return a.consumer.Start(context.WithoutCancel(ctx))
		},
		OnStop: func(context.Context) error {
			if a.consumer == nil {
				return nil
			}
			return a.consumer.Stop()
		},
	}
}

// buildServices wires the domain services over the store and the event sinks.
func (a *App) buildServices() {
	sink := events.Multi(a.sinks...)
	var locker proposals.Locker
	if a.locker != nil {
		locker = a.locker
	}

	a.Audit = audit.NewLog(a.Store.Audit, a.Logger)
	linker := linking.NewLinker(a.Store, a.Audit, a.Logger)
	matcher := matching.NewMatcher(a.Store.Nodes, a.MatchConfig(), a.Logger)

	a.Executor = merging.NewExecutor(a.Store, a.Audit, sink, a.Logger)
	a.Workflow = proposals.NewWorkflow(a.Store, a.Executor, a.Audit, sink, locker, a.Logger)
	a.Queue = reconciliation.NewQueue(a.Store, linker, a.Audit, sink, a.Logger)
	a.Orchestrator = ingestion.NewOrchestrator(a.Store, matcher, a.Queue, linker, a.Audit, sink, a.Logger)
	a.Nodes = nodes.NewService(a.Store, a.Audit)
	a.Seeder = seed.NewSeeder(a.Store, a.Audit, sink, a.Logger)
}

// MatchConfig is the tier configuration read from MATCH_AUTO_THRESHOLD and MATCH_CANDIDATE_THRESHOLD.
func (a *App) MatchConfig() matching.Config {
	return matching.Config{
		AutoThreshold:      a.Config.MatchAutoThreshold,
		CandidateThreshold: a.Config.MatchCandidateThreshold,
	}
}

func (a *App) DatabaseConfig() database.Config {
	return database.Config{
		Driver:          a.Config.DatabaseDriver,
		Host:            a.Config.DatabaseHost,
		Port:            a.Config.DatabasePort,
		User:            a.Config.DatabaseUserName,
		Password:        a.Config.DatabasePassword,
		Name:            a.Config.DatabaseName,
		SSLMode:         a.Config.DatabaseSSLMode,
		MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
		MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
	}
}

// Migrate applies the migrations in DB_MIGRATION_FOLDER_PATH.
func (a *App) Migrate(db database.DB) error {
	return database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: a.Config.DatabaseMigrationFolderPath,
		Version:             uint(a.Config.DatabaseMigrationVersion),
		Force:               a.Config.DatabaseMigrationForce,
		AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
	}).MigratePostgres(db, a.Config.DatabaseName)
}

// Router builds the echo server. Call it after Start.
func (a *App) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.Config.AllowOrigins,
		AllowMethods: a.Config.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.Config.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.Logger))

	a.Health.Routes(e.Group("/health"))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	handlers.NewIngestionHandler(a.Orchestrator, a.Logger).Register(api)
	handlers.NewReconciliationHandler(a.Queue, a.Logger).Register(api.Group("/reconciliation"))
	handlers.NewGraphHandler(a.Executor, a.Workflow, a.Nodes, a.Logger).Register(api.Group("/graph"))

	return e
}

// Server wraps the router with the configured timeouts.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Port),
		Handler:           a.Router(),
		ReadTimeout:       time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.Config.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.Config.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.Config.MaxHeaderBytes,
	}
}
