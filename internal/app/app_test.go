package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/config"
	"pg-graphql/internal/gqlrequest"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/testutil/catalogfixture"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Schemas: []string{"app"}},
		Types:    config.TypesConfig{ExtendedTypes: true},
		GraphQL:  config.GraphQLConfig{DefaultPageSize: 100, MaxPageSize: 1000},
	}
}

func testApp(t *testing.T, cfg *config.Config) (*App, *bytes.Buffer) {
	t.Helper()
	logs := &bytes.Buffer{}
	a, err := New(cfg, logging.NewLogger(logging.Config{Output: logs}), nil)
	require.NoError(t, err)
	return a, logs
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, logging.NewLogger(logging.Config{}), nil)
	require.Error(t, err)
	_, err = New(testConfig(), nil, nil)
	require.Error(t, err)
}

func TestBuildSchema(t *testing.T) {
	a, logs := testApp(t, testConfig())
	require.NoError(t, a.BuildSchema(context.Background(), catalogfixture.Catalog()))

	assert.Contains(t, a.SDL(), "type User implements Node {")
	assert.Len(t, a.Fingerprint(), 64)
	assert.NotNil(t, a.Schema().GraphQL.MutationType())
	assert.Contains(t, logs.String(), "schema built")

	b, _ := testApp(t, testConfig())
	require.NoError(t, b.BuildSchema(context.Background(), catalogfixture.Catalog()))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestBuildSchemaHonoursConfig(t *testing.T) {
	cfg := testConfig()
	cfg.GraphQL.DisableMutations = true
	cfg.SchemaFilters.DenyTables = []string{"posts"}

	a, _ := testApp(t, cfg)
	require.NoError(t, a.BuildSchema(context.Background(), catalogfixture.Catalog()))
	assert.Nil(t, a.Schema().GraphQL.MutationType())
	assert.NotContains(t, a.SDL(), "type Post ")

	full, _ := testApp(t, testConfig())
	require.NoError(t, full.BuildSchema(context.Background(), catalogfixture.Catalog()))
	assert.NotEqual(t, full.Fingerprint(), a.Fingerprint())
}

func TestBuildStats(t *testing.T) {
	a, _ := testApp(t, testConfig())
	cat := catalogfixture.Catalog()
	require.NoError(t, a.BuildSchema(context.Background(), cat))

	stats := buildStats(cat, a.Schema().GraphQL)
	assert.Equal(t, 2, stats.Tables)
	assert.Greater(t, stats.Types, 10)
}

func TestExecuteBeforeInit(t *testing.T) {
	a, _ := testApp(t, testConfig())
	_, err := a.Execute(context.Background(), gqlrequest.NewEnvelope("{ __typename }", "", nil))
	require.Error(t, err)
}

func TestExecuteAppliesTransactionSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Role = "app_user"
	a, _ := testApp(t, cfg)
	require.NoError(t, a.BuildSchema(context.Background(), catalogfixture.Catalog()))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	a.attachRunner(db)

	mock.ExpectBegin()
	mock.ExpectExec(`select set_config\('role', \$1, true\)`).
		WithArgs("app_user").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^select json_build_object\('rows'`).
		WillReturnRows(sqlmock.NewRows([]string{"__data"}).AddRow(`{"rows": [], "totalCount": 3}`))
	mock.ExpectCommit()

	res, err := a.Execute(context.Background(), gqlrequest.NewEnvelope(`{ allUsers { totalCount } }`, "", nil))
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]interface{}{"allUsers": map[string]interface{}{"totalCount": 3}}, res.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteMetricsWithoutProvider(t *testing.T) {
	a, _ := testApp(t, testConfig())
	require.Error(t, a.WriteMetrics(&bytes.Buffer{}))
}

func TestWaitForDatabase(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Output: &bytes.Buffer{}})

	t.Run("single attempt without timeout", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("refused"))

		err = waitForDatabase(context.Background(), 0, logger, db)
		require.EqualError(t, err, "refused")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries until ready", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("starting up"))
		mock.ExpectPing()

		require.NoError(t, waitForDatabase(context.Background(), 5*time.Second, logger, db))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		for i := 0; i < 5; i++ {
			mock.ExpectPing().WillReturnError(errors.New("refused"))
		}

		err = waitForDatabase(context.Background(), time.Millisecond, logger, db)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "database not available after"))
	})
}

func TestCleanupStackRunsInReverse(t *testing.T) {
	var order []string
	s := cleanupStack{}
	s.push("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.push("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })

	logs := &bytes.Buffer{}
	s.run(context.Background(), logging.NewLogger(logging.Config{Output: logs}))
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Contains(t, logs.String(), "cleanup error")

	s.run(context.Background(), nil)
	assert.Len(t, order, 2)
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, _ := testApp(t, testConfig())
	calls := 0
	a.cleanup.push("db", func(context.Context) error { calls++; return nil })

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}
