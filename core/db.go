package core

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// DBTransactor is satisfied by *sql.Tx and *sqlx.Tx.
type DBTransactor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Commit() error
	Rollback() error
}

// FinishTx commits tx when err is nil and rolls it back otherwise.
// The original error is kept when the rollback fails too.
func FinishTx(tx DBTransactor, err error) error {
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// DBOrdering is one ORDER BY term. Field must come from a whitelist, never from raw input.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
