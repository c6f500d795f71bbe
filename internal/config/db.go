package config

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// MySQLDSN - times are read back as time.Time in UTC, matching how the
// store writes them.
func MySQLDSN(c DatabaseConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// OpenDB opens and pings the configured database. It returns the driver
// name, which doubles as the SQL dialect.
func OpenDB(ctx context.Context, c DatabaseConfig) (*sql.DB, string, error) {
	var (
		db  *sql.DB
		err error
	)

	switch c.Driver {
	case "mysql":
		db, err = sql.Open("mysql", MySQLDSN(c))
		if err != nil {
			return nil, "", err
		}
		db.SetMaxOpenConns(c.MaxOpen)
		db.SetMaxIdleConns(c.MaxIdle)
		db.SetConnMaxLifetime(5 * time.Minute)
	case "sqlite3":
		db, err = sql.Open("sqlite3", c.SQLitePath+"?_busy_timeout=5000&_txlock=immediate")
		if err != nil {
			return nil, "", err
		}
		// single writer
		db.SetMaxOpenConns(1)
	default:
		return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", c.Driver, err)
	}

	log.Info().Str("driver", c.Driver).Msg("database connected")
	return db, c.Driver, nil
}
