package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the persistence handle shared by every store. Queries are written
// with ? placeholders and passed through Rebind before execution.
type DB struct {
	*sql.DB
	Driver   string
	bindType int
}

// Open opens a SQLite database at the given path and runs migrations.
func Open(dbPath string) (*DB, error) {
	return Connect(DriverSQLite, dbPath)
}

// Connect opens a database for the given driver ("sqlite" or "postgres") and
// runs migrations.
func Connect(driver, dsn string) (*DB, error) {
	db, err := Dial(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate("up"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Dial opens and pings a database without touching its schema.
func Dial(driver, dsn string) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDB, err = sql.Open("sqlite", sqliteDSN(dsn))
	case DriverPostgres:
		sqlDB, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{DB: sqlDB, Driver: driver, bindType: bindTypeFor(driver)}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func bindTypeFor(driver string) int {
	if driver == DriverPostgres {
		return sqlx.BindType("pgx")
	}
	return sqlx.QUESTION
}

// Rebind converts ? placeholders to the driver's bind syntax.
func (db *DB) Rebind(query string) string {
	return sqlx.Rebind(db.bindType, query)
}

func (db *DB) dialect() (string, string) {
	if db.Driver == DriverPostgres {
		return "postgres", "migrations/postgres"
	}
	return "sqlite3", "migrations/sqlite"
}

// Migrate runs a goose command ("up", "down", "status") against the embedded
// migrations for the handle's driver.
func (db *DB) Migrate(command string) error {
	dialect, dir := db.dialect()
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch command {
	case "up":
		if err := goose.Up(db.DB, dir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	case "down":
		if err := goose.Down(db.DB, dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
	case "status":
		if err := goose.Status(db.DB, dir); err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
