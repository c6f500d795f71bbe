package counter

import (
	"context"
	"database/sql"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/store"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/rs/zerolog/log"
)

const tableCounters = "counters"

// SQL keeps counters in the counters table. Each allocation is one
// read-increment transaction; deadlocks and lock timeouts restart it.
type SQL struct {
	gq      *goqu.Database
	dialect string
}

func NewSQL(db *sql.DB, dialect string) *SQL {
	return &SQL{gq: goqu.New(dialect, db), dialect: dialect}
}

func (s *SQL) Allocate(ctx context.Context, name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	var value int64
	attempt := 0
	err := store.Retry(ctx, func() error {
		attempt++
		v, err := s.allocateOnce(ctx, name)
		if err != nil {
			if store.IsTransient(err) {
				log.Debug().Str("component", "counter").Str("name", name).
					Int("attempt", attempt).Err(err).Msg("allocation contended, retrying")
			}
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error().Str("component", "counter").Str("name", name).Err(err).Msg("allocation failed")
		}
		return 0, err
	}
	return value, nil
}

func (s *SQL) allocateOnce(ctx context.Context, name string) (int64, error) {
	var opts *sql.TxOptions
	if s.dialect == store.DialectMySQL {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	tx, err := s.gq.BeginTx(ctx, opts)
	if err != nil {
		return 0, apperr.Internal("begin counter transaction", err)
	}

	current, err := s.readIncrement(ctx, tx, name)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Internal("commit counter transaction", err)
	}
	return current, nil
}

// readIncrement initializes the row to 1 when it does not exist yet, then
// writes current+1 and returns current.
func (s *SQL) readIncrement(ctx context.Context, tx *goqu.TxDatabase, name string) (int64, error) {
	_, err := tx.Insert(tableCounters).Prepared(true).
		Rows(goqu.Record{"name": name, "next_value": 1}).
		OnConflict(goqu.DoNothing()).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, apperr.Internal("initialize counter", err)
	}

	sel := tx.From(tableCounters).Prepared(true).Select("next_value").Where(goqu.C("name").Eq(name))
	if s.dialect == store.DialectMySQL {
		sel = sel.ForUpdate(exp.Wait)
	}

	var current int64
	found, err := sel.ScanValContext(ctx, &current)
	if err != nil {
		return 0, apperr.Internal("read counter", err)
	}
	if !found {
		return 0, apperr.Internal("read counter", sql.ErrNoRows)
	}

	_, err = tx.Update(tableCounters).Prepared(true).
		Set(goqu.Record{"next_value": current + 1}).
		Where(goqu.C("name").Eq(name)).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, apperr.Internal("increment counter", err)
	}
	return current, nil
}
