// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"clinic-queue/internal/clock"
	"clinic-queue/internal/models"
	"clinic-queue/internal/store"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// Epoch - default start time of the fake clock.
var Epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// OpenDB opens a migrated SQLite database in t.TempDir(). SQLite allows a
// single writer, so the pool is capped at one connection.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(context.Background(), db, store.DialectSQLite))
	return db
}

// Open returns a store on a fresh database and the fake clock driving it.
func Open(t *testing.T) (*store.Store, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(Epoch)
	return store.New(OpenDB(t), store.DialectSQLite, clk), clk
}

// SeedDepartment inserts a reference department.
func SeedDepartment(t *testing.T, s *store.Store, d models.Department) {
	t.Helper()
	insert(t, s, "departments", goqu.Record{"id": d.ID, "name": d.Name, "room_number": d.RoomNumber})
}

// SeedProfessional inserts a reference professional.
func SeedProfessional(t *testing.T, s *store.Store, p models.Professional) {
	t.Helper()
	insert(t, s, "professionals", goqu.Record{"id": p.ID, "name": p.Name, "department_id": p.DepartmentID})
}

// SeedPatient inserts a reference patient.
func SeedPatient(t *testing.T, s *store.Store, p models.Patient) {
	t.Helper()
	insert(t, s, "patients", goqu.Record{"id": p.ID, "name": p.Name})
}

func insert(t *testing.T, s *store.Store, table string, rec goqu.Record) {
	t.Helper()
	_, err := goqu.New(s.Dialect(), s.DB()).Insert(table).Rows(rec).Prepared(true).
		Executor().ExecContext(context.Background())
	require.NoError(t, err)
}
