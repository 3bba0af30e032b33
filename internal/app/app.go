// Package app wires configuration, the database, schema build and request
// execution into the runtime the CLI drives.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/config"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/gqlrequest"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/mutation"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/pgtypes"
	"pg-graphql/internal/schema"
)

// App owns the runtime resources of one CLI invocation.
type App struct {
	cfg       *config.Config
	logger    *logging.Logger
	providers *observability.Providers

	db             *sql.DB
	graphqlMetrics *observability.GraphQLMetrics
	buildMetrics   *observability.BuildMetrics

	schema      *schema.Schema
	sdl         string
	fingerprint string
	runner      *gqlrequest.Runner

	cleanup      cleanupStack
	initialized  bool
	shutdownOnce sync.Once
}

// New creates an App. providers may be nil when no telemetry is enabled.
func New(cfg *config.Config, logger *logging.Logger, providers *observability.Providers) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger, providers: providers}, nil
}

// Init connects to the database, loads the catalog and builds the schema.
func (a *App) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}

	success := false
	defer func() {
		if !success {
			a.cleanup.run(context.Background(), a.logger)
			a.cleanup = cleanupStack{}
		}
	}()

	if err := a.initMetrics(); err != nil {
		return err
	}

	a.logger.Info("connecting to Postgres",
		slog.String("target", a.cfg.Database.Target()),
		slog.Any("schemas", a.cfg.Database.Schemas),
	)
	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})
	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	a.db = db

	cat, err := catalog.Load(ctx, db, a.cfg.Database.Schemas)
	if err != nil {
		return err
	}
	if err := a.BuildSchema(ctx, cat); err != nil {
		return err
	}

	a.attachRunner(db)
	a.initialized = true
	success = true
	return nil
}

func (a *App) initMetrics() error {
	if !a.cfg.Observability.MetricsEnabled {
		return nil
	}
	var err error
	if a.graphqlMetrics, err = observability.InitGraphQLMetrics(); err != nil {
		return fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	if a.buildMetrics, err = observability.InitBuildMetrics(); err != nil {
		return fmt.Errorf("failed to initialize schema build metrics: %w", err)
	}
	return nil
}

// BuildSchema builds the GraphQL schema for cat and records the build.
func (a *App) BuildSchema(ctx context.Context, cat *catalog.Catalog) (err error) {
	start := time.Now()
	var stats observability.BuildStats
	defer func() {
		if a.buildMetrics != nil {
			a.buildMetrics.RecordBuild(ctx, time.Since(start), err, stats)
		}
	}()

	namer := naming.New(a.cfg.Naming, a.logger.Logger)
	reg, err := pgtypes.New(cat, namer, a.cfg.Types.RegistryOptions(), a.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create type registry: %w", err)
	}

	opts := a.cfg.SchemaOptions()
	opts.Logger = a.logger.Logger
	if m := a.graphqlMetrics; m != nil {
		opts.OnMutationTransition = func(field string, from, to mutation.State) {
			m.RecordMutationTransition(context.Background(), field, string(from), string(to))
		}
	}
	built, err := schema.New(reg, opts).Build()
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	a.schema = built
	a.sdl = schema.PrintSchema(built.GraphQL)
	a.fingerprint = gqlrequest.SchemaFingerprint(a.sdl)
	stats = buildStats(cat, built.GraphQL)

	a.logger.Info("schema built",
		slog.Int("tables", stats.Tables),
		slog.Int("types", stats.Types),
		slog.String("fingerprint", a.fingerprint[:12]),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func buildStats(cat *catalog.Catalog, s graphql.Schema) observability.BuildStats {
	stats := observability.BuildStats{Types: len(s.TypeMap())}
	for _, class := range cat.Classes() {
		if class.IsTableLike() {
			stats.Tables++
		}
	}
	return stats
}

func (a *App) attachRunner(db *sql.DB) {
	a.runner = gqlrequest.NewRunner(
		dbexec.NewStandardExecutor(db, a.cfg.Database.TransactionSettings()),
		a.schema.GraphQL,
		a.runnerOptions(),
	)
}

func (a *App) runnerOptions() gqlrequest.RunnerOptions {
	opts := gqlrequest.RunnerOptions{
		SpanAttributes: observability.GraphQLSpanAttributes,
		LogFields:      observability.GraphQLLogFields,
		Fingerprint:    a.fingerprint,
		Logger:         a.logger,
	}
	if a.graphqlMetrics != nil {
		opts.Metrics = a.graphqlMetrics
	}
	return opts
}

// SDL returns the printed schema.
func (a *App) SDL() string { return a.sdl }

// Fingerprint returns the schema fingerprint.
func (a *App) Fingerprint() string { return a.fingerprint }

// Schema returns the built schema, or nil before a build.
func (a *App) Schema() *schema.Schema { return a.schema }

// Execute runs one request in its own transaction.
func (a *App) Execute(ctx context.Context, env gqlrequest.Envelope) (*graphql.Result, error) {
	if a.runner == nil {
		return nil, errors.New("app is not initialized")
	}
	return a.runner.Run(ctx, env), nil
}

// WriteMetrics writes collected metrics in the Prometheus text format.
func (a *App) WriteMetrics(w io.Writer) error {
	if a.providers == nil || a.providers.Meter == nil {
		return errors.New("metrics are not enabled")
	}
	return a.providers.Meter.WriteText(w)
}

// Shutdown releases the database and telemetry providers. It is safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		a.cleanup.run(ctx, a.logger)
		err = a.providers.Shutdown(ctx, a.logger.Logger)
	})
	return err
}
