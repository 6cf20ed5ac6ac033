package database

import (
	"context"

	errs "place-registry/pkg/errors"
)

// Schema statements, applied in order. user_places holds each user's ordered
// collection of owned place ids. place_id carries no foreign key: the row is
// written and removed in the same transaction as the places row it names.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		image VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS places (
		id CHAR(36) NOT NULL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		address VARCHAR(512) NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		image VARCHAR(512) NOT NULL,
		creator_id CHAR(36) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_places_creator (creator_id),
		CONSTRAINT fk_places_creator FOREIGN KEY (creator_id) REFERENCES users (id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS user_places (
		user_id CHAR(36) NOT NULL,
		place_id CHAR(36) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (user_id, place_id),
		KEY idx_user_places_place (place_id),
		CONSTRAINT fk_user_places_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB`,
}

// EnsureSchema creates the tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ctx, cancel := db.WithWriteTimeout(ctx)
	defer cancel()
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return errs.NewDB("database.EnsureSchema", "failed to apply schema", err)
		}
	}
	return nil
}
