package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrDuplicateAccount = errors.New("cloud account already registered")
	ErrAccountNotFound  = errors.New("cloud account not found")
	ErrScanNotActive    = errors.New("scan record not in an updatable status")
)

// Store wraps the shared connection pool. Everything that touches
// tenant-owned rows goes through WithTenant or WithTenantTx, which bind the
// row-level security context for the lifetime of one borrowed connection.
// The Store is constructed once and injected; there is no package-level
// instance.
type Store struct {
	db *sqlx.DB
}

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Session is the statement surface handed to WithTenant and WithTenantTx
// callbacks. Both *sqlx.Conn and *sqlx.Tx satisfy it; the borrowed
// connection itself never escapes the callback.
type Session interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

const (
	bindTenantStmt  = `SELECT set_config('app.current_tenant', $1, false)`
	resetTenantStmt = `SELECT set_config('app.current_tenant', '', false)`
)

// WithTenant runs fn on one pooled connection with the tenant context
// bound. Binding is the first statement after the connection is acquired;
// the reset is the last before it returns to the pool, on every exit path.
// Pooled connections are reused by other tenants, so a skipped reset is a
// cross-tenant leak.
func (s *Store) WithTenant(ctx context.Context, tenantID string, fn func(Session) error) (err error) {
	conn, err := s.acquire(ctx, tenantID)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer func() {
		if rerr := s.release(ctx, conn); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(conn)
}

// WithTenantTx is WithTenant with fn wrapped in a transaction. An error
// from fn rolls the transaction back before the tenant context is reset
// and the connection released.
func (s *Store) WithTenantTx(ctx context.Context, tenantID string, fn func(Session) error) (err error) {
	conn, err := s.acquire(ctx, tenantID)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer func() {
		if rerr := s.release(ctx, conn); rerr != nil && err == nil {
			err = rerr
		}
	}()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, tenantID string) (*sqlx.Conn, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is empty")
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, bindTenantStmt, tenantID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding tenant context: %w", err)
	}
	return conn, nil
}

// release clears the tenant binding. It runs on a context detached from the
// caller's so cancellation cannot skip the cleanup, and a connection whose
// reset fails is poisoned so the pool discards it instead of handing the
// stale binding to the next borrower.
func (s *Store) release(ctx context.Context, conn *sqlx.Conn) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(rctx, resetTenantStmt); err != nil {
		_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		return fmt.Errorf("resetting tenant context: %w", err)
	}
	return nil
}
