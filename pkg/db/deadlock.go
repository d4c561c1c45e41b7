package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	mysqlDeadlock          = 1213
	mysqlLockWaitTimeout   = 1205
)

// IsDeadlock reports whether err is a lock conflict the database resolved by
// aborting the current transaction. The statement can be retried as a whole.
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerializationFailure
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	return false
}
