// Package db provides PostgreSQL-backed repository implementations for the
// CPR Trainer payment service. All repositories accept a DBTX interface that
// is satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cprtrainer/internal/config"
	"cprtrainer/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool tuned from the database configuration
// and verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigMissing, "invalid database URL", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create database pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ping database", err)
	}

	return pool, nil
}

// Registry bundles the repositories behind types.RepositoryRegistry and
// provides transactional execution via RunInTx.
type Registry struct {
	teams    *TeamRepository
	users    *UserRepository
	payments *PaymentRepository
	pool     *pgxpool.Pool
}

// NewRegistry creates a Registry whose repositories query the given pool.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{
		teams:    NewTeamRepository(pool),
		users:    NewUserRepository(pool),
		payments: NewPaymentRepository(pool),
		pool:     pool,
	}
}

// Teams returns the team repository.
func (r *Registry) Teams() types.TeamRepository { return r.teams }

// Users returns the user repository.
func (r *Registry) Users() types.UserRepository { return r.users }

// Payments returns the payment repository.
func (r *Registry) Payments() types.PaymentRepository { return r.payments }

// Close releases the underlying connection pool. Satisfies the optional
// Close() error assertion used by Server.Shutdown.
func (r *Registry) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// RunInTx executes fn inside a single database transaction. The registry
// passed to fn is backed by the transaction, so every repository call within
// fn commits or rolls back atomically. The transaction is rolled back if fn
// returns an error or panics.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.RepositoryRegistry) error) error {
	if r.pool == nil {
		return types.NewAppError(types.ErrCodeInternalDB, "no connection pool for transaction", nil)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRegistry := &txRegistry{
		teams:    NewTeamRepository(tx),
		users:    NewUserRepository(tx),
		payments: NewPaymentRepository(tx),
	}

	if err := fn(ctx, txRegistry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// txRegistry implements types.RepositoryRegistry over a single transaction.
type txRegistry struct {
	teams    *TeamRepository
	users    *UserRepository
	payments *PaymentRepository
}

func (r *txRegistry) Teams() types.TeamRepository       { return r.teams }
func (r *txRegistry) Users() types.UserRepository       { return r.users }
func (r *txRegistry) Payments() types.PaymentRepository { return r.payments }

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505). Used by repositories to detect duplicate
// key conflicts and return appropriate application-level errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// nilIfEmptyString returns nil if the string is empty, otherwise returns a
// pointer to the string. Used for nullable VARCHAR columns.
func nilIfEmptyString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime returns nil if the time is zero, otherwise returns a pointer
// to the time. Used to let the DB default (NOW()) apply when no time is set.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
