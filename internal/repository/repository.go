package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	custom_error "substock/pkg/errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

type Repository struct {
	DB            *sql.DB
	GoquDBWrapper *goqu.Database
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		DB:            db,
		GoquDBWrapper: goqu.New("postgres", db),
	}
}

// Queryer is the part of the goqu API shared by *goqu.Database and *goqu.TxDatabase.
type Queryer interface {
	From(from ...interface{}) *goqu.SelectDataset
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
}

// Q runs on tx when one is open and on the pool otherwise.
func (r *Repository) Q(tx *goqu.TxDatabase) Queryer {
	if tx != nil {
		return tx
	}
	return r.GoquDBWrapper
}

// Transactor is the unit of work: every repository call made with the tx handed to fn
// commits or rolls back together.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	return WithTransaction(ctx, r.GoquDBWrapper, fn)
}

func WithTransaction(ctx context.Context, db *goqu.Database, fn func(tx *goqu.TxDatabase) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return
}

// RetryOnConflict reruns fn while it fails with a ConflictError, up to attempts times.
// fn must open its own unit of work so every attempt re-reads current state.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, custom_error.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// RowsAffected turns a zero-row conditional update into a ConflictError.
func RowsAffected(result sql.Result, resource string, id any) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return custom_error.NewConflictError(resource, id)
	}
	return nil
}
