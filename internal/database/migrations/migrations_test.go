package migrations_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/models"
)

// Spins up a real Postgres via testcontainers. Gated behind an env var so
// the suite stays runnable without Docker.
func setupPostgres(t *testing.T) *bun.DB {
	if os.Getenv("POSTGRES_INTEGRATION_TESTS") == "" {
		t.Skip("set POSTGRES_INTEGRATION_TESTS=1 to run migration tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkin",
				"POSTGRES_PASSWORD": "checkin",
				"POSTGRES_DB":       "checkin",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	sqldb, err := sql.Open("postgres", "postgres://checkin:checkin@"+endpoint+"/checkin?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, sqldb.PingContext(ctx))

	return bun.NewDB(sqldb, pgdialect.New())
}

func countParticipants(t *testing.T, db *bun.DB) int {
	n, err := db.NewSelect().Model((*models.Participant)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSchemaOnlyRunLeavesNoSeedData(t *testing.T) {
	db := setupPostgres(t)

	runner := migrations.NewRunner(db, migrations.MigrateOptions{
		MigrationsDir: "../../../migrations",
		AutoMigrate:   true,
		SeedData:      false,
	})
	require.NoError(t, runner.RunMigrations())

	// The schema is in place but no demo credentials were inserted.
	assert.Equal(t, 0, countParticipants(t, db))

	// A second schema-only run is a no-op, not a seed.
	require.NoError(t, runner.RunMigrations())
	assert.Equal(t, 0, countParticipants(t, db))
}

func TestSeedRunAppliesDemoData(t *testing.T) {
	db := setupPostgres(t)

	runner := migrations.NewRunner(db, migrations.MigrateOptions{
		MigrationsDir: "../../../migrations",
		AutoMigrate:   true,
		SeedData:      true,
	})
	require.NoError(t, runner.RunMigrations())

	assert.Equal(t, 3, countParticipants(t, db))

	// Flipping back to schema-only must not roll the seed data away.
	runner = migrations.NewRunner(db, migrations.MigrateOptions{
		MigrationsDir: "../../../migrations",
		AutoMigrate:   true,
		SeedData:      false,
	})
	require.NoError(t, runner.RunMigrations())
	assert.Equal(t, 3, countParticipants(t, db))
}
