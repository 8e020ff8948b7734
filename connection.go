package migrat

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/multierr"

	"github.com/pressly/migrat-mssql/database"

	// Init DB drivers.
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "github.com/vertica/vertica-sql-go"
	_ "github.com/ziutek/mymysql/godrv"
	_ "modernc.org/sqlite"
)

var dialectNames = map[database.Dialect]string{
	database.DialectMSSQL:    "SQL Server",
	database.DialectPostgres: "PostgreSQL",
	database.DialectMySQL:    "MySQL",
	database.DialectSQLite3:  "SQLite",
	database.DialectTurso:    "Turso",
	database.DialectVertica:  "Vertica",
}

// Open opens a connection pool for opts and pings it. The returned error matches ErrConnection
// when the database cannot be reached; the pool is closed in that case.
func Open(ctx context.Context, opts *Options) (*sql.DB, error) {
	if err := validateOptions(opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	d, err := opts.dialect()
	if err != nil {
		return nil, err
	}
	db, err := openDB(d, opts)
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %w", ErrConnection, dialectNames[d], err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w to %s: %w", ErrConnection, dialectNames[d], multierr.Append(err, db.Close()))
	}
	return db, nil
}

func openDB(d database.Dialect, opts *Options) (*sql.DB, error) {
	switch d {
	case database.DialectMSSQL:
		connector, err := mssql.NewConnector(sqlserverDSN(opts))
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	case database.DialectPostgres:
		config, err := pgx.ParseConfig(postgresDSN(opts))
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDB(*config), nil
	case database.DialectMySQL:
		if opts.driverAlias() == "mymysql" {
			return sql.Open("mymysql", mymysqlDSN(opts))
		}
		config, err := mysqlConfig(opts)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(config)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	case database.DialectSQLite3:
		dsn := opts.DSN
		if dsn == "" {
			dsn = opts.Database
		}
		return sql.Open("sqlite", dsn)
	case database.DialectTurso:
		return sql.Open("libsql", opts.DSN)
	case database.DialectVertica:
		return sql.Open("vertica", verticaDSN(opts))
	}
	return nil, fmt.Errorf("%w: %q", database.ErrUnknownDialect, d)
}

func hostPort(opts *Options, d database.Dialect) string {
	return net.JoinHostPort(opts.host(), strconv.Itoa(opts.port(d)))
}

func sqlserverDSN(opts *Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	q := url.Values{}
	q.Set("database", opts.Database)
	if opts.Encrypt {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(opts.User, opts.Password),
		Host:     hostPort(opts, database.DialectMSSQL),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func postgresDSN(opts *Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	q := url.Values{}
	if opts.Encrypt {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(opts.User, opts.Password),
		Host:     hostPort(opts, database.DialectPostgres),
		Path:     "/" + opts.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func mysqlConfig(opts *Options) (*mysql.Config, error) {
	if opts.DSN != "" {
		config, err := mysql.ParseDSN(opts.DSN)
		if err != nil {
			return nil, err
		}
		config.ParseTime = true
		return config, nil
	}
	config := mysql.NewConfig()
	config.User = opts.User
	config.Passwd = opts.Password
	config.Net = "tcp"
	config.Addr = hostPort(opts, database.DialectMySQL)
	config.DBName = opts.Database
	config.ParseTime = true
	if opts.Encrypt {
		config.TLSConfig = "true"
	}
	return config, nil
}

func mymysqlDSN(opts *Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	// tcp:ADDR*DBNAME/USER/PASSWD
	return fmt.Sprintf("tcp:%s*%s/%s/%s", hostPort(opts, database.DialectMySQL), opts.Database, opts.User, opts.Password)
}

func verticaDSN(opts *Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	q := url.Values{}
	if opts.Encrypt {
		q.Set("tlsmode", "server")
	} else {
		q.Set("tlsmode", "none")
	}
	u := &url.URL{
		Scheme:   "vertica",
		User:     url.UserPassword(opts.User, opts.Password),
		Host:     hostPort(opts, database.DialectVertica),
		Path:     "/" + opts.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
