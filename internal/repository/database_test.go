package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests for database operations.
// Run with: TEST_DATABASE_URL=postgres://... go test ./internal/repository/...

func setupTestDB(t *testing.T) (*Database, context.Context) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, db.CacheEntries.EnsureSchema(ctx))

	return db, ctx
}

func teardownTestDB(t *testing.T, db *Database) {
	db.Close()
}

func TestDatabaseConnection(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	// Test health check
	err := db.Health(ctx)
	assert.NoError(t, err, "Database health check should pass")

	// Test stats
	stats := db.PoolStats()
	assert.NotNil(t, stats, "Should return connection pool stats")
	assert.GreaterOrEqual(t, stats["max_conns"].(int32), int32(1), "Should have at least 1 max connection")
}

func TestDatabasePing(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.Pool.Ping(ctx)
	assert.NoError(t, err, "Should successfully ping database")
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "u", Password: "p", Database: "mlb_daily", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/mlb_daily?sslmode=disable", cfg.DSN())
}
