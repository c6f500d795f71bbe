package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/clock"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite3"
)

const (
	tableEntries       = "queue_entries"
	tableActive        = "queue_active_patients"
	tableCalls         = "call_records"
	tableEvents        = "queue_events"
	tableDepartments   = "departments"
	tableProfessionals = "professionals"
	tablePatients      = "patients"
)

// Store - durable collection of queue entries, call records and audit
// events, plus read access to the reference tables.
type Store struct {
	db      *sql.DB
	gq      *goqu.Database
	dialect string
	clock   clock.Clock
}

// New wraps an open database. dialect is DialectMySQL or DialectSQLite.
func New(db *sql.DB, dialect string, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		db:      db,
		gq:      goqu.New(dialect, db),
		dialect: dialect,
		clock:   clk,
	}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() string {
	return s.dialect
}

// Migrate applies the embedded schema for dialect. Every statement is
// idempotent, so it is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	var file string
	switch dialect {
	case DialectMySQL:
		file = "schema/mysql.sql"
	case DialectSQLite:
		file = "schema/sqlite.sql"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	// The MySQL driver refuses multi-statement Exec unless the DSN opts
	// in, so statements are applied one by one.
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// now - store timestamps are UTC with microsecond precision so that
// values read back from DATETIME(6) compare equal to what was written.
func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.dialect == DialectMySQL {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// InTx runs fn inside one transaction. Transient failures (deadlocks,
// lock timeouts, busy database) restart the whole transaction; fn must
// therefore do all of its reads through tx.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return Retry(ctx, func() error {
		gtx, err := s.gq.BeginTx(ctx, s.txOptions())
		if err != nil {
			return apperr.Internal("begin transaction", err)
		}

		tx := &Tx{tx: gtx, dialect: s.dialect, now: s.now()}
		if err := fn(tx); err != nil {
			_ = gtx.Rollback()
			return err
		}

		if err := gtx.Commit(); err != nil {
			return apperr.Internal("commit transaction", err)
		}
		return nil
	})
}

func (s *Store) from(table string) *goqu.SelectDataset {
	return s.gq.From(table).Prepared(true)
}
