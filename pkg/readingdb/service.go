// Package readingdb holds the per-inverter production readings.
// The table is only written to by inverter_capture
// but can be read by any service while capture is running.
package readingdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const mysqlSchema = "CREATE TABLE IF NOT EXISTS `APIV1ProductionInverters` (" +
	"`LastReportDate` TIMESTAMP NOT NULL COMMENT 'lastReportDate (timestamp of the report)', " +
	"`SerialNumber` BIGINT UNSIGNED NOT NULL COMMENT 'serialNumber (12 digits)', " +
	"`Watts` SMALLINT UNSIGNED NOT NULL COMMENT 'lastReportWatts', " +
	"PRIMARY KEY (`LastReportDate`,`SerialNumber`))"

// Postgres has no unsigned integers, the ranges are enforced with checks.
const postgresSchema = `CREATE TABLE IF NOT EXISTS APIV1ProductionInverters (
	LastReportDate TIMESTAMP NOT NULL,
	SerialNumber BIGINT NOT NULL CHECK (SerialNumber >= 0),
	Watts INTEGER NOT NULL CHECK (Watts BETWEEN 0 AND 65535),
	PRIMARY KEY (LastReportDate, SerialNumber)
)`

type Store struct {
	db      *sql.DB
	dialect Dialect
	loc     *time.Location
	log     logrus.FieldLogger
}

// Open connects to the configured backend and makes sure the reading table exists.
func Open(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (*Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return open(ctx, cfg, loc, log)
}

// OpenSQLite opens (or creates) a sqlite reading store at path.
func OpenSQLite(ctx context.Context, path string, loc *time.Location, log logrus.FieldLogger) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	return open(ctx, config.StoreConfig{Driver: string(SQLite), Path: path}, loc, log)
}

func open(ctx context.Context, cfg config.StoreConfig, loc *time.Location, log logrus.FieldLogger) (*Store, error) {
	var err error
	dialect := Dialect(cfg.Driver)
	var db *sql.DB
	switch dialect {
	case SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(cfg.Path))
	case MySQL:
		db, err = sql.Open("mysql", mysqlDSN(cfg, loc))
	case Postgres:
		db, err = sql.Open("postgres", postgresDSN(cfg))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, dialect: dialect, loc: loc, log: log}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s store: %w", dialect, err)
	}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	switch s.dialect {
	case SQLite:
		// Apply migrations
		dbmigrator.SetDatabaseType(dbmigrator.SQLite)
		<-dbmigrator.MigrateUpCh(
			s.db,
			migrationFS,
			"migrations",
		)
	case MySQL:
		if _, err := s.db.ExecContext(ctx, mysqlSchema); err != nil {
			return fmt.Errorf("create mysql schema: %w", err)
		}
	case Postgres:
		if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
			return fmt.Errorf("create postgres schema: %w", err)
		}
	}

	var n int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM APIV1ProductionInverters WHERE 1 = 0")
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return nil
}

// Write-ahead logging lets the analyzer read while capture keeps writing.
func sqliteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
}

func mysqlDSN(cfg config.StoreConfig, loc *time.Location) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = loc
	return mc.FormatDSN()
}

func postgresDSN(cfg config.StoreConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Location() *time.Location {
	return s.loc
}

// Ping reports whether the backend connection is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
