package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pressly/migrat-mssql/internal/dialect/dialectquery"
)

// Dialect is the type of database dialect.
type Dialect string

const (
	DialectMSSQL    Dialect = "mssql"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite3  Dialect = "sqlite3"
	DialectTurso    Dialect = "turso"
	DialectVertica  Dialect = "vertica"
)

// ErrUnknownDialect is returned by [ParseDialect] for an unrecognized alias.
var ErrUnknownDialect = errors.New("unknown dialect")

var dialectAliases = map[string]Dialect{
	"mssql":     DialectMSSQL,
	"sqlserver": DialectMSSQL,
	"azuresql":  DialectMSSQL,
	"mysql":     DialectMySQL,
	"mymysql":   DialectMySQL,
	"mariadb":   DialectMySQL,
	"postgres":  DialectPostgres,
	"pgx":       DialectPostgres,
	"sqlite":    DialectSQLite3,
	"sqlite3":   DialectSQLite3,
	"turso":     DialectTurso,
	"libsql":    DialectTurso,
	"vertica":   DialectVertica,
}

// ParseDialect returns the Dialect for a dialect or driver alias, such as "sqlserver" or "pgx".
func ParseDialect(alias string) (Dialect, error) {
	d, ok := dialectAliases[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", ErrUnknownDialect
	}
	return d, nil
}

const maxIdentifierLength = 128

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%s name %q exceeds %d characters", kind, name, maxIdentifierLength)
	}
	if !identifierRegexp.MatchString(name) {
		return fmt.Errorf("%s name %q must contain only letters, digits and underscores, and must not start with a digit", kind, name)
	}
	return nil
}

func newQuerier(dialect Dialect, schema, table string) (dialectquery.Querier, error) {
	switch dialect {
	case DialectMSSQL:
		return &dialectquery.Sqlserver{Schema: schema, Table: table}, nil
	case DialectMySQL:
		return &dialectquery.Mysql{Schema: schema, Table: table}, nil
	case DialectPostgres:
		return &dialectquery.Postgres{Schema: schema, Table: table}, nil
	case DialectSQLite3:
		return &dialectquery.Sqlite3{Schema: schema, Table: table}, nil
	case DialectTurso:
		return &dialectquery.Turso{Sqlite3: dialectquery.Sqlite3{Schema: schema, Table: table}}, nil
	case DialectVertica:
		return &dialectquery.Vertica{Schema: schema, Table: table}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
}
