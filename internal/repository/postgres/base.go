package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
)

const uniqueViolation = "23505"

type txKey struct{}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// conn returns the transaction carried by ctx, or the pool.
func (r *BaseRepository) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// WithTx executes fn within a transaction. The transaction travels in the
// context passed to fn; a context that already carries one is reused so
// nested calls join the outer transaction.
func (r *BaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Transactor exposes WithTx to the service layer.
type Transactor struct {
	BaseRepository
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{NewBaseRepository(db)}
}

// notFound maps sql.ErrNoRows to a not found AppError and wraps anything else.
func notFound(err error, entity, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(entity, nil)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// translateWriteErr turns unique violations into bad request errors.
func translateWriteErr(err error, duplicateMsg, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.BadRequest(duplicateMsg, nil)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// requireRow returns a not found error when an update touched no rows.
func requireRow(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(entity, nil)
	}
	return nil
}
