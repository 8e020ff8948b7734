// Package testdb starts throwaway databases in docker for integration tests.
package testdb

import "database/sql"

// Sqlserver describes a running SQL Server container.
type Sqlserver struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// NewSqlserver starts a SQL Server docker container. Returns db connection, the connection details
// and a docker cleanup function.
func NewSqlserver(options ...OptionsFunc) (db *sql.DB, info *Sqlserver, cleanup func(), err error) {
	return newSqlserver(options...)
}
