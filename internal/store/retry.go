package store

import (
	"context"
	"errors"
	"time"

	"clinic-queue/internal/apperr"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

const maxRetries = 10

// MySQL server error numbers
const (
	mysqlDuplicateEntry = 1062
	mysqlLockWait       = 1205
	mysqlDeadlock       = 1213
)

// IsTransient reports whether err is contention that a fresh attempt of
// the same transaction can resolve.
func IsTransient(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWait
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsDuplicate reports a primary key or unique constraint violation.
func IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, maxRetries)
}

// Retry runs fn until it succeeds, fails with a non-transient error, or
// the retry budget is spent. An exhausted budget surfaces as
// apperr.KindTransient.
func Retry(ctx context.Context, fn func() error) error {
	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newBackOff(), ctx))

	if err != nil && IsTransient(err) {
		return apperr.Transient("database contention, retries exhausted", err)
	}
	return err
}
