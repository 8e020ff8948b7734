package dialectquery

import "fmt"

type Sqlserver struct {
	Schema string
	Table  string
}

var _ Querier = (*Sqlserver)(nil)

func (s *Sqlserver) SchemaExists() (string, []any) {
	q := `SELECT 1 FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = @p1`
	return q, []any{s.Schema}
}

func (s *Sqlserver) CreateSchema() string {
	// CREATE SCHEMA must be the only statement in its batch, hence the EXEC.
	q := `IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA [%s]')`
	return fmt.Sprintf(q, s.Schema, s.Schema)
}

func (s *Sqlserver) TableExists() (string, []any) {
	q := `SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`
	return q, []any{s.Schema, s.Table}
}

func (s *Sqlserver) CreateTable() string {
	q := `IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (
		migratkey VARCHAR(22) NOT NULL PRIMARY KEY,
		value TEXT NULL
	)`
	return fmt.Sprintf(q, s.name(), s.name())
}

func (s *Sqlserver) GetValue() string {
	q := `SELECT value FROM %s WHERE migratkey = @p1`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) UpdateValue() string {
	q := `UPDATE %s SET value = @p1 WHERE migratkey = @p2`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) InsertValue() string {
	q := `INSERT INTO %s (migratkey, value) SELECT @p1, @p2
	WHERE NOT EXISTS (SELECT 1 FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE migratkey = @p3)`
	return fmt.Sprintf(q, s.name(), s.name())
}

func (s *Sqlserver) SelectLock() string {
	// UPDLOCK+HOLDLOCK takes a key-range lock even when the row is absent, so two concurrent
	// transactions cannot both observe "no lock row" and insert.
	q := `SELECT value FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE migratkey = @p1`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) InsertLock() string {
	q := `INSERT INTO %s (migratkey, value) VALUES (@p1, @p2)`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) DeleteValue() string {
	q := `DELETE FROM %s WHERE migratkey = @p1`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) DeleteValueIf() string {
	// TEXT columns cannot be compared directly.
	q := `DELETE FROM %s WHERE migratkey = @p1 AND CAST(value AS VARCHAR(MAX)) = @p2`
	return fmt.Sprintf(q, s.name())
}

func (s *Sqlserver) name() string {
	return "[" + s.Schema + "].[" + s.Table + "]"
}
