// Package pgcontainer starts disposable Postgres servers for integration tests.
package pgcontainer

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var suppressedLogger = log.New(io.Discard, "", 0)

// Container is a running Postgres server and an open pool to it.
type Container struct {
	DSN string
	DB  *sql.DB
}

// version reads PGGQL_TEST_POSTGRES_VERSION, defaulting to 17.
func version() string {
	if v := os.Getenv("PGGQL_TEST_POSTGRES_VERSION"); v != "" {
		return v
	}
	return "17"
}

// Start runs a Postgres container for the lifetime of t and executes setup
// statements against it. The container is terminated on cleanup.
func Start(ctx context.Context, t *testing.T, setup ...string) *Container {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pg, err := postgres.Run(ctx,
		"postgres:"+version()+"-alpine",
		postgres.WithDatabase("pggraphql"),
		postgres.WithUsername("pggraphql"),
		postgres.WithPassword("pggraphql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		testcontainers.WithLogger(suppressedLogger),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup statement failed: %v\n%s", err, stmt)
		}
	}
	return &Container{DSN: dsn, DB: db}
}
