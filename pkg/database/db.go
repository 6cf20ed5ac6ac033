package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"

	"place-registry/pkg/config"
	errs "place-registry/pkg/errors"
)

const (
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second
)

type DB struct {
	conn         *sql.DB
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// normalizeDSN forces the driver options the repositories rely on.
func normalizeDSN(databaseURL string) (string, error) {
	dsn, err := mysql.ParseDSN(databaseURL)
	if err != nil {
		return "", err
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if dsn.Params == nil {
		dsn.Params = map[string]string{}
	}
	if _, ok := dsn.Params["transaction_isolation"]; !ok {
		dsn.Params["transaction_isolation"] = "'REPEATABLE-READ'"
	}
	return dsn.FormatDSN(), nil
}

// New opens a pool with default settings.
func New(databaseURL string) (*DB, error) {
	return open(databaseURL, 25, 10, 10*time.Minute, DBReadTimeoutDefault, DBWriteTimeoutDefault)
}

// NewWithConfig creates a database connection with custom configuration settings
func NewWithConfig(cfg *config.Config) (*DB, error) {
	return open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBReadTimeout, cfg.DBWriteTimeout)
}

func open(databaseURL string, maxOpen, maxIdle int, lifetime, rt, wt time.Duration) (*DB, error) {
	dsn, err := normalizeDSN(databaseURL)
	if err != nil {
		return nil, errs.NewDB("database.New", "invalid DSN", err)
	}
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.NewDB("database.New", "failed to open connection", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.New", "failed to ping database", err)
	}

	return Wrap(conn, rt, wt), nil
}

// Wrap adapts an existing *sql.DB, used by tests with sqlmock.
func Wrap(conn *sql.DB, rt, wt time.Duration) *DB {
	if rt <= 0 {
		rt = DBReadTimeoutDefault
	}
	if wt <= 0 {
		wt = DBWriteTimeoutDefault
	}
	return &DB{conn: conn, readTimeout: rt, writeTimeout: wt}
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Ping(ctx context.Context) error { return db.conn.PingContext(ctx) }

// WithReadTimeout creates a context with standard read timeout.
func (db *DB) WithReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// WithWriteTimeout creates a context with standard write timeout.
func (db *DB) WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}
