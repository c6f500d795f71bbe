package store

import (
	"context"
	"errors"
	"testing"

	"clinic-queue/internal/apperr"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"wrapped", apperr.Internal("commit", &mysql.MySQLError{Number: 1213}), true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicate(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, IsDuplicate(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicate(nil))
}

func TestRetry_RecoversFromContention(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &mysql.MySQLError{Number: mysqlDeadlock}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return apperr.Conflict("taken")
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustedIsTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return &mysql.MySQLError{Number: mysqlLockWait}
	})
	assert.True(t, apperr.Is(err, apperr.KindTransient))
	assert.Equal(t, maxRetries+1, calls)
}
