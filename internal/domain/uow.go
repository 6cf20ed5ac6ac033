package domain

import (
	"context"
	"database/sql"
)

// Scope is one transactional unit of work spanning the place and user
// collections. It is created per logical operation and passed explicitly to
// every repository write; there is no ambient or process-wide session.
//
// Typical usage:
//
//	scope, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer scope.Rollback()
//	if err := places.SaveTx(ctx, scope, p); err != nil { ... }
//	if err := users.SaveTx(ctx, scope, u); err != nil { ... }
//	if err := scope.Commit(); err != nil { ... }
//
// Rollback after a successful Commit is a no-op.
type Scope interface {
	Commit() error
	Rollback() error
	// Tx exposes the SQL transaction to SQL-backed repositories. In-memory
	// implementations return nil.
	Tx() *sql.Tx
}

// ScopeFactory starts new scopes. A returned Scope is already begun.
type ScopeFactory interface {
	Begin(ctx context.Context) (Scope, error)
}
