package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	"place-registry/pkg/database"
	errs "place-registry/pkg/errors"
)

const userColumns = `id, name, email, password_hash, image, created_at`

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// SQLUserRepository stores users and their owned-place collections in MySQL.
type SQLUserRepository struct {
	db *database.DB
}

func NewSQLUserRepository(db *database.DB) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

var _ domain.UserRepository = (*SQLUserRepository)(nil)

func scanUser(row rowScanner, u *models.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Image, &u.CreatedAt)
}

func (r *SQLUserRepository) findOne(ctx context.Context, op, where, arg string) (*models.User, error) {
	ctx, cancel := r.db.WithReadTimeout(ctx)
	defer cancel()

	var u models.User
	err := scanUser(r.db.Conn().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = ?`, arg), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound(op, "user", arg)
	}
	if err != nil {
		return nil, errs.NewDB(op, "failed to query user", err)
	}
	if u.Places, err = loadPlaceIDs(ctx, r.db.Conn(), u.ID); err != nil {
		return nil, errs.NewDB(op, "failed to load user places", err)
	}
	return &u, nil
}

func (r *SQLUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "repository.FindUserByID", "id", id)
}

func (r *SQLUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "repository.FindUserByEmail", "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *SQLUserRepository) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := r.db.WithReadTimeout(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errs.NewDB("repository.ListUsers", "failed to query users", err)
	}
	users := make([]models.User, 0)
	index := make(map[string]int)
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			rows.Close()
			return nil, errs.NewDB("repository.ListUsers", "failed to scan user row", err)
		}
		u.Places = []string{}
		index[u.ID] = len(users)
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("repository.ListUsers", "row iteration error", err)
	}

	links, err := r.db.Conn().QueryContext(ctx, `SELECT user_id, place_id FROM user_places ORDER BY user_id, position ASC`)
	if err != nil {
		return nil, errs.NewDB("repository.ListUsers", "failed to query user places", err)
	}
	defer links.Close()
	for links.Next() {
		var uid, pid string
		if err := links.Scan(&uid, &pid); err != nil {
			return nil, errs.NewDB("repository.ListUsers", "failed to scan user place row", err)
		}
		if i, ok := index[uid]; ok {
			users[i].Places = append(users[i].Places, pid)
		}
	}
	if err := links.Err(); err != nil {
		return nil, errs.NewDB("repository.ListUsers", "row iteration error", err)
	}
	return users, nil
}

func (r *SQLUserRepository) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	_, err := r.db.Conn().ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Image, u.CreatedAt)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return errs.NewValidation("repository.CreateUser", "user exists already, please login instead", err)
		}
		return errs.NewDB("repository.CreateUser", "failed to create user", err)
	}
	return nil
}

func (r *SQLUserRepository) FindByIDForUpdate(ctx context.Context, scope domain.Scope, id string) (*models.User, error) {
	tx, err := txOf(scope)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	var u models.User
	err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? FOR UPDATE`, id), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("repository.FindUserForUpdate", "user", id)
	}
	if err != nil {
		return nil, errs.NewDB("repository.FindUserForUpdate", "failed to lock user", err)
	}
	if u.Places, err = loadPlaceIDs(ctx, tx, u.ID); err != nil {
		return nil, errs.NewDB("repository.FindUserForUpdate", "failed to load user places", err)
	}
	return &u, nil
}

// SaveTx rewrites the user's owned-place collection inside scope.
func (r *SQLUserRepository) SaveTx(ctx context.Context, scope domain.Scope, u *models.User) error {
	tx, err := txOf(scope)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_places WHERE user_id = ?`, u.ID); err != nil {
		return errs.NewDB("repository.SaveUserTx", "failed to clear user places", err)
	}
	if len(u.Places) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO user_places (user_id, place_id, position) VALUES `)
	args := make([]any, 0, len(u.Places)*3)
	for i, pid := range u.Places {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, u.ID, pid, i)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return errs.NewDB("repository.SaveUserTx", "failed to write user places", err)
	}
	return nil
}
