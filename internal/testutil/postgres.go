// Package testutil provides test helpers: a disposable PostgreSQL container
// with the bridge schemas applied, and a line protocol client.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/chatbridge/internal/config"
	"github.com/cory-johannsen/chatbridge/internal/storage/postgres"
)

// Migration sets under the repository's migrations directory.
const (
	AuthMigrations       = "auth"
	CharacterMigrations  = "characters"
	postgresImage        = "postgres:16-alpine"
	containerStartupWait = 60 * time.Second
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL container and returns a connected Pool.
// The test is skipped under -short or when no container provider is available.
//
// Postcondition: Returns a running container with a connected pool, or skips
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(containerStartupWait),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres container started [%s]", time.Since(start))
	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}
}

// MigrationsDir returns the absolute path of a migration set.
func MigrationsDir(set string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations", set)
}

// ApplyMigrations runs every up migration of the given sets against the
// container. Each set keeps its own version table so the auth and characters
// schemas can share one test database.
//
// Precondition: Pool must be connected.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T, sets ...string) {
	t.Helper()
	start := time.Now()
	for _, set := range sets {
		dsn := pc.Config.DSN() + "&x-migrations-table=schema_migrations_" + set
		m, err := migrate.New("file://"+MigrationsDir(set), dsn)
		if err != nil {
			t.Fatalf("creating migrator for %s: %v", set, err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			t.Fatalf("applying %s migrations: %v", set, err)
		}
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			t.Fatalf("closing migrator for %s: %v %v", set, srcErr, dbErr)
		}
	}
	t.Logf("migrations %v applied [%s]", sets, time.Since(start))
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}
