package store

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	// Driver registration for the supported engines.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"relmap/internal/sqlutil"
)

// Dialect abstracts the SQL differences between supported engines.
type Dialect interface {
	// DriverName is the database/sql driver to open connections with.
	DriverName() string
	// Placeholder is the squirrel placeholder format for bind parameters.
	Placeholder() sq.PlaceholderFormat
	// QuoteIdent quotes an identifier (table or column name).
	QuoteIdent(name string) string
	// LockSuffix returns the row-lock clause for the given mode.
	LockSuffix(lock Lock) string
}

// Lock selects a row-locking mode for a constrained fetch.
type Lock int

const (
	// LockNone requests no row locks.
	LockNone Lock = iota
	// LockForShare requests shared row locks.
	LockForShare
	// LockForUpdate requests exclusive row locks.
	LockForUpdate
)

// MySQL is the Dialect for MySQL / TiDB.
var MySQL Dialect = mysqlDialect{}

// Postgres is the Dialect for PostgreSQL via the pgx stdlib driver.
var Postgres Dialect = postgresDialect{}

type mysqlDialect struct{}

func (mysqlDialect) DriverName() string                { return "mysql" }
func (mysqlDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (mysqlDialect) QuoteIdent(name string) string     { return sqlutil.QuoteIdentifier(name) }
func (mysqlDialect) LockSuffix(lock Lock) string {
	switch lock {
	case LockForShare:
		return "LOCK IN SHARE MODE"
	case LockForUpdate:
		return "FOR UPDATE"
	default:
		return ""
	}
}

type postgresDialect struct{}

func (postgresDialect) DriverName() string                { return "pgx" }
func (postgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }
func (postgresDialect) QuoteIdent(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}
func (postgresDialect) LockSuffix(lock Lock) string {
	switch lock {
	case LockForShare:
		return "FOR SHARE"
	case LockForUpdate:
		return "FOR UPDATE"
	default:
		return ""
	}
}

// DialectByName maps a config driver name to its Dialect. Unknown names
// fall back to MySQL.
func DialectByName(name string) Dialect {
	switch name {
	case "pgx", "postgres", "postgresql":
		return Postgres
	default:
		return MySQL
	}
}
