package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"place-registry/internal/domain"
	"place-registry/pkg/database"
)

// SQLScopeFactory starts SQL-backed transactional scopes.
type SQLScopeFactory struct {
	db *database.DB
}

func NewSQLScopeFactory(db *database.DB) *SQLScopeFactory {
	return &SQLScopeFactory{db: db}
}

var _ domain.ScopeFactory = (*SQLScopeFactory)(nil)

func (f *SQLScopeFactory) Begin(ctx context.Context) (domain.Scope, error) {
	tx, err := f.db.Conn().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("scope: begin tx: %w", err)
	}
	return &sqlScope{tx: tx}, nil
}

// sqlScope wraps a single *sql.Tx.
type sqlScope struct {
	mu sync.Mutex
	tx *sql.Tx
	// guard against double commit/rollback
	closed bool
}

var _ domain.Scope = (*sqlScope)(nil)

func (s *sqlScope) Tx() *sql.Tx { return s.tx }

func (s *sqlScope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scope: already closed")
	}
	s.closed = true
	return s.tx.Commit()
}

func (s *sqlScope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tx.Rollback()
}

// txOf extracts the SQL transaction from scope.
func txOf(scope domain.Scope) (*sql.Tx, error) {
	if scope == nil || scope.Tx() == nil {
		return nil, fmt.Errorf("scope: no active SQL transaction")
	}
	return scope.Tx(), nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
