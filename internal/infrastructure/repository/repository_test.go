package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"place-registry/internal/models"
	"place-registry/pkg/database"
	errs "place-registry/pkg/errors"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return database.Wrap(conn, time.Second, time.Second), mock
}

var placeCols = []string{"id", "title", "description", "address", "lat", "lng", "image", "creator_id", "created_at", "updated_at"}

func TestFindPlaceByID(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		wantKind error
	}{
		{
			name: "found",
			rows: sqlmock.NewRows(placeCols).AddRow("p1", "Empire State", "Tall building", "20 W 34th St", 40.7484, -73.9857, "img", "u1", now, now),
		},
		{
			name:     "missing",
			rows:     sqlmock.NewRows(placeCols),
			wantKind: errs.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectQuery(`SELECT .+ FROM places WHERE id = \?`).WithArgs("p1").WillReturnRows(tt.rows)

			p, err := NewSQLPlaceRepository(db).FindByID(context.Background(), "p1")
			if tt.wantKind != nil {
				if !errs.Is(err, tt.wantKind) {
					t.Fatalf("want %v, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.CreatorID != "u1" || p.Location.Lat != 40.7484 {
				t.Fatalf("unexpected place: %+v", p)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestFindPlaceWithOwnerLoadsCollection(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM places p JOIN users u ON u.id = p.creator_id WHERE p.id = \?`).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, placeCols...), "uid", "name", "email", "uimage", "ucreated")).
			AddRow("p1", "t", "description", "addr", 1.0, 2.0, "img", "u1", now, now, "u1", "Max", "max@test.com", "avatar", now))
	mock.ExpectQuery(`SELECT place_id FROM user_places WHERE user_id = \? ORDER BY position`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"place_id"}).AddRow("p0").AddRow("p1"))
	mock.ExpectRollback()

	got, err := NewSQLPlaceRepository(db).FindWithOwner(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Owner.ID != "u1" || !got.Owner.OwnsPlace("p1") || len(got.Owner.Places) != 2 {
		t.Fatalf("unexpected owner: %+v", got.Owner)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePlaceMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE places SET title = \?, description = \?, updated_at = \? WHERE id = \?`).
		WithArgs("New", "New description", sqlmock.AnyArg(), "p9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewSQLPlaceRepository(db).Update(context.Background(), &models.Place{ID: "p9", Title: "New", Description: "New description"})
	if !errs.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestUpdatePlaceKeepsCallerTimestamp(t *testing.T) {
	db, mock := newMockDB(t)
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE places SET title = \?, description = \?, updated_at = \? WHERE id = \?`).
		WithArgs("New", "New description", stamp, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Place{ID: "p1", Title: "New", Description: "New description", UpdatedAt: stamp}
	if err := NewSQLPlaceRepository(db).Update(context.Background(), p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !p.UpdatedAt.Equal(stamp) {
		t.Fatalf("updated_at rewritten to %v", p.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateWritesBothSidesInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \? FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "image", "created_at"}).
			AddRow("u1", "Max", "max@test.com", "hash", "", now))
	mock.ExpectQuery(`SELECT place_id FROM user_places`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"place_id"}).AddRow("p0"))
	mock.ExpectExec(`INSERT INTO places`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM user_places WHERE user_id = \?`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_places \(user_id, place_id, position\) VALUES \(\?, \?, \?\), \(\?, \?, \?\)`).
		WithArgs("u1", "p0", 0, "u1", "p1", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	places, users := NewSQLPlaceRepository(db), NewSQLUserRepository(db)
	scope, err := NewSQLScopeFactory(db).Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer scope.Rollback()

	u, err := users.FindByIDForUpdate(ctx, scope, "u1")
	if err != nil {
		t.Fatalf("lock user: %v", err)
	}
	p := &models.Place{ID: "p1", Title: "t", CreatorID: u.ID, CreatedAt: now, UpdatedAt: now}
	if err := places.SaveTx(ctx, scope, p); err != nil {
		t.Fatalf("save place: %v", err)
	}
	u.AddPlace(p.ID)
	if err := users.SaveTx(ctx, scope, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := scope.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteRollsBackWhenCollectionRewriteFails(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rewriteErr := errors.New("lock wait timeout")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \? FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "image", "created_at"}).
			AddRow("u1", "Max", "max@test.com", "hash", "", now))
	mock.ExpectQuery(`SELECT place_id FROM user_places`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"place_id"}).AddRow("p0").AddRow("p1"))
	mock.ExpectExec(`DELETE FROM places WHERE id = \?`).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_places WHERE user_id = \?`).WithArgs("u1").WillReturnError(rewriteErr)
	mock.ExpectRollback()

	ctx := context.Background()
	places, users := NewSQLPlaceRepository(db), NewSQLUserRepository(db)
	scope, err := NewSQLScopeFactory(db).Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u, err := users.FindByIDForUpdate(ctx, scope, "u1")
	if err != nil {
		t.Fatalf("lock user: %v", err)
	}
	if err := places.DeleteTx(ctx, scope, "p1"); err != nil {
		t.Fatalf("delete place: %v", err)
	}
	u.RemovePlace("p1")
	if err := users.SaveTx(ctx, scope, u); !errors.Is(err, rewriteErr) {
		t.Fatalf("want rewrite failure, got %v", err)
	}
	if err := scope.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeletePlaceTxZeroRowsIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM places WHERE id = \?`).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	scope, err := NewSQLScopeFactory(db).Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := NewSQLPlaceRepository(db).DeleteTx(ctx, scope, "p1"); !errs.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if err := scope.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestScopeRollbackAfterCommitIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	scope, err := NewSQLScopeFactory(db).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := scope.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := scope.Rollback(); err != nil {
		t.Fatalf("rollback after commit: %v", err)
	}
	if err := scope.Commit(); err == nil {
		t.Fatal("second commit should fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeletePlaceTxRequiresScope(t *testing.T) {
	db, _ := newMockDB(t)
	if err := NewSQLPlaceRepository(db).DeleteTx(context.Background(), nil, "p1"); err == nil {
		t.Fatal("expected error without scope")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("u1", "Max", "max@test.com", "hash", "", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := NewSQLUserRepository(db).Create(context.Background(), &models.User{ID: "u1", Name: "Max", Email: "max@test.com", PasswordHash: "hash"})
	if !errs.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestListUsersAttachesCollections(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "image", "created_at"}).
			AddRow("u1", "Max", "max@test.com", "h", "", now).
			AddRow("u2", "Ann", "ann@test.com", "h", "", now))
	mock.ExpectQuery(`SELECT user_id, place_id FROM user_places`).WillReturnRows(
		sqlmock.NewRows([]string{"user_id", "place_id"}).AddRow("u1", "p1").AddRow("u1", "p2"))

	users, err := NewSQLUserRepository(db).List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || len(users[0].Places) != 2 || len(users[1].Places) != 0 {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestReadErrorsAreDBErrors(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM places WHERE creator_id = \?`).WithArgs("u1").WillReturnError(driver.ErrBadConn)

	_, err := NewSQLPlaceRepository(db).FindByOwner(context.Background(), "u1")
	if !errs.Is(err, errs.ErrDB) || !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("want wrapped db error, got %v", err)
	}
}
