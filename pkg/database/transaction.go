package database

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, ok := ctx.Value(txKey).(*sqlx.Tx)
	if !ok {
		return nil
	}
	return tx
}

// InTx reports whether ctx already carries an open transaction.
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// RunInTx begins a transaction, binds it to the context handed to fn, and commits
// when fn returns nil. Any error or panic rolls the transaction back. When ctx already
// carries a transaction fn runs inside it and the outermost caller owns commit.
func RunInTx(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("error while beginning transaction")
		return fmt.Errorf("error while beginning transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithContext(ctx).WithError(rbErr).Error("error while rolling back transaction")
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			logger.WithContext(ctx).WithError(cErr).Error("error while committing transaction")
			err = fmt.Errorf("error while committing transaction: %w", cErr)
		}
	}()

	return fn(txCtx)
}
