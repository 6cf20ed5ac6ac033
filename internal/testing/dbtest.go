package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"place-registry/pkg/database"
)

// DBTest provides a real DB connection for integration tests.
// It uses DATABASE_URL_TEST if set, otherwise DATABASE_URL. Tests are skipped if missing.
type DBTest struct {
	T   *testing.T
	DB  *database.DB
	SQL *sql.DB
}

func NewDBTest(t *testing.T) *DBTest {
	t.Helper()
	url := os.Getenv("DATABASE_URL_TEST")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("DATABASE_URL_TEST or DATABASE_URL not set; skipping integration tests")
	}
	db, err := database.New(url)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	d := &DBTest{T: t, DB: db, SQL: db.Conn()}
	d.Truncate()
	t.Cleanup(d.Close)
	return d
}

func (d *DBTest) Close() {
	_ = d.DB.Close()
}

// Truncate wipes the place and user tables, children first.
func (d *DBTest) Truncate() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, table := range []string{"user_places", "places", "users"} {
		if _, err := d.SQL.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			d.T.Fatalf("truncate %s: %v", table, err)
		}
	}
}
