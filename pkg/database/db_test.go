package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	errs "place-registry/pkg/errors"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN("places:pw@tcp(localhost:3306)/places")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"parseTime=true", "transaction_isolation"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %s", dsn, want)
		}
	}
	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnsureSchema(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db := Wrap(conn, 0, 0)
	defer db.Close()

	for _, table := range []string{"users", "places", "user_places"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table + " ").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureSchemaFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db := Wrap(conn, time.Second, time.Second)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("denied"))
	err = db.EnsureSchema(context.Background())
	if !errs.Is(err, errs.ErrDB) {
		t.Fatalf("want DBError, got %v", err)
	}
}
