package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"pg-graphql/internal/config"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/observability"
)

// retryInterval is the pause between startup pings.
const retryInterval = 500 * time.Millisecond

// InitTelemetry creates the logger and the providers cfg enables. The logger
// is rebuilt with the OTLP bridge once the log provider exists.
func InitTelemetry(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.Providers, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
		Scope:  cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	providerCfg := cfg.Observability.ProviderConfig()
	if !providerCfg.MetricsEnabled && !providerCfg.TracingEnabled && !providerCfg.LoggingEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry",
		slog.String("service_name", providerCfg.ServiceName),
		slog.String("service_version", providerCfg.ServiceVersion),
		slog.Bool("metrics", providerCfg.MetricsEnabled),
		slog.Bool("tracing", providerCfg.TracingEnabled),
		slog.Bool("log_exports", providerCfg.LoggingEnabled),
		slog.String("otlp_endpoint", providerCfg.OTLP.Endpoint),
		slog.String("otlp_protocol", providerCfg.OTLP.Protocol),
	)
	providers, err := observability.Init(ctx, providerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	if lp := providers.LogProvider(); lp != nil {
		loggerCfg.LoggerProvider = lp
		logger = logging.NewLogger(loggerCfg)
		slog.SetDefault(logger.Logger)
	}
	return logger, providers, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn := cfg.Database.DSN()
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("pgx", dsn)
		return db, nil, err
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	db, err := otelsql.Open("pgx", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	logger.Debug("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg.Database.ConnectTimeout, logger, db); err != nil {
		return err
	}
	logger.Info("connected to database",
		slog.String("target", cfg.Database.Target()),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers or timeout elapses. A zero
// timeout pings once.
func waitForDatabase(ctx context.Context, timeout time.Duration, logger *logging.Logger, db *sql.DB) error {
	if timeout <= 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}
		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", retryInterval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
