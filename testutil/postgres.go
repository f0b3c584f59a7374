package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SetupTestDB opens TEST_PG_DSN and checks it answers. It skips the test when
// the variable is unset. Callers apply their own schema.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.PingContext(context.Background()); err != nil {
		database.Close()
		t.Fatalf("failed to reach database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
