package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	"place-registry/pkg/database"
	errs "place-registry/pkg/errors"
)

const placeColumns = `id, title, description, address, lat, lng, image, creator_id, created_at, updated_at`

// SQLPlaceRepository stores places in MySQL.
type SQLPlaceRepository struct {
	db *database.DB
}

func NewSQLPlaceRepository(db *database.DB) *SQLPlaceRepository {
	return &SQLPlaceRepository{db: db}
}

var _ domain.PlaceRepository = (*SQLPlaceRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(row rowScanner, p *models.Place) error {
	return row.Scan(&p.ID, &p.Title, &p.Description, &p.Address, &p.Location.Lat, &p.Location.Lng,
		&p.Image, &p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *SQLPlaceRepository) FindByID(ctx context.Context, id string) (*models.Place, error) {
	ctx, cancel := r.db.WithReadTimeout(ctx)
	defer cancel()

	var p models.Place
	err := scanPlace(r.db.Conn().QueryRowContext(ctx, `SELECT `+placeColumns+` FROM places WHERE id = ?`, id), &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("repository.FindPlaceByID", "place", id)
	}
	if err != nil {
		return nil, errs.NewDB("repository.FindPlaceByID", "failed to query place", err)
	}
	return &p, nil
}

func (r *SQLPlaceRepository) FindByOwner(ctx context.Context, ownerID string) ([]models.Place, error) {
	ctx, cancel := r.db.WithReadTimeout(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE creator_id = ? ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, errs.NewDB("repository.FindPlacesByOwner", "failed to query places", err)
	}
	defer rows.Close()

	places := make([]models.Place, 0)
	for rows.Next() {
		var p models.Place
		if err := scanPlace(rows, &p); err != nil {
			return nil, errs.NewDB("repository.FindPlacesByOwner", "failed to scan place row", err)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("repository.FindPlacesByOwner", "row iteration error", err)
	}
	return places, nil
}

// FindWithOwner reads the place, its creator and the creator's collection
// from one read-only snapshot.
func (r *SQLPlaceRepository) FindWithOwner(ctx context.Context, id string) (*models.PlaceWithOwner, error) {
	ctx, cancel := r.db.WithReadTimeout(ctx)
	defer cancel()

	tx, err := r.db.Conn().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errs.NewDB("repository.FindPlaceWithOwner", "failed to open snapshot", err)
	}
	defer tx.Rollback()

	var out models.PlaceWithOwner
	p, u := &out.Place, &out.Owner
	err = tx.QueryRowContext(ctx, `SELECT p.id, p.title, p.description, p.address, p.lat, p.lng, p.image,
		p.creator_id, p.created_at, p.updated_at, u.id, u.name, u.email, u.image, u.created_at
		FROM places p JOIN users u ON u.id = p.creator_id WHERE p.id = ?`, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.Address, &p.Location.Lat, &p.Location.Lng, &p.Image,
		&p.CreatorID, &p.CreatedAt, &p.UpdatedAt, &u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("repository.FindPlaceWithOwner", "place", id)
	}
	if err != nil {
		return nil, errs.NewDB("repository.FindPlaceWithOwner", "failed to query place", err)
	}

	if u.Places, err = loadPlaceIDs(ctx, tx, u.ID); err != nil {
		return nil, errs.NewDB("repository.FindPlaceWithOwner", "failed to load owner places", err)
	}
	return &out, nil
}

func (r *SQLPlaceRepository) Update(ctx context.Context, p *models.Place) error {
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.Conn().ExecContext(ctx,
		`UPDATE places SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Description, p.UpdatedAt, p.ID)
	if err != nil {
		return errs.NewDB("repository.UpdatePlace", "failed to update place", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NewNotFound("repository.UpdatePlace", "place", p.ID)
	}
	return nil
}

// SaveTx inserts the place, or rewrites its mutable fields if it already exists.
func (r *SQLPlaceRepository) SaveTx(ctx context.Context, scope domain.Scope, p *models.Place) error {
	tx, err := txOf(scope)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	_, err = tx.ExecContext(ctx, `INSERT INTO places (`+placeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE title = VALUES(title), description = VALUES(description), updated_at = VALUES(updated_at)`,
		p.ID, p.Title, p.Description, p.Address, p.Location.Lat, p.Location.Lng,
		p.Image, p.CreatorID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errs.NewDB("repository.SavePlaceTx", "failed to save place", err)
	}
	return nil
}

func (r *SQLPlaceRepository) DeleteTx(ctx context.Context, scope domain.Scope, id string) error {
	tx, err := txOf(scope)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithWriteTimeout(ctx)
	defer cancel()

	res, err := tx.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return errs.NewDB("repository.DeletePlaceTx", "failed to delete place", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NewNotFound("repository.DeletePlaceTx", "place", id)
	}
	return nil
}

func loadPlaceIDs(ctx context.Context, q queryer, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT place_id FROM user_places WHERE user_id = ? ORDER BY position ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
