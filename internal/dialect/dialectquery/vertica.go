package dialectquery

import "fmt"

type Vertica struct {
	Schema string
	Table  string
}

var _ Querier = (*Vertica)(nil)

func (v *Vertica) SchemaExists() (string, []any) {
	q := `SELECT 1 FROM v_catalog.schemata WHERE schema_name = ?`
	return q, []any{v.Schema}
}

func (v *Vertica) CreateSchema() string {
	q := `CREATE SCHEMA IF NOT EXISTS %q`
	return fmt.Sprintf(q, v.Schema)
}

func (v *Vertica) TableExists() (string, []any) {
	q := `SELECT 1 FROM v_catalog.tables WHERE table_schema = ? AND table_name = ?`
	return q, []any{v.Schema, v.Table}
}

func (v *Vertica) CreateTable() string {
	// Vertica only enforces primary keys that are explicitly ENABLED.
	q := `CREATE TABLE IF NOT EXISTS %s (
		migratkey VARCHAR(22) NOT NULL PRIMARY KEY ENABLED,
		value LONG VARCHAR
	)`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) GetValue() string {
	q := `SELECT value FROM %s WHERE migratkey = ?`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) UpdateValue() string {
	q := `UPDATE %s SET value = ? WHERE migratkey = ?`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) InsertValue() string {
	q := `INSERT INTO %s (migratkey, value) SELECT ?, ?
	WHERE NOT EXISTS (SELECT 1 FROM %s WHERE migratkey = ?)`
	return fmt.Sprintf(q, v.name(), v.name())
}

func (v *Vertica) SelectLock() string {
	q := `SELECT value FROM %s WHERE migratkey = ? FOR UPDATE`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) InsertLock() string {
	q := `INSERT INTO %s (migratkey, value) VALUES (?, ?)`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) DeleteValue() string {
	q := `DELETE FROM %s WHERE migratkey = ?`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) DeleteValueIf() string {
	q := `DELETE FROM %s WHERE migratkey = ? AND value = ?`
	return fmt.Sprintf(q, v.name())
}

func (v *Vertica) name() string {
	return fmt.Sprintf("%q.%q", v.Schema, v.Table)
}
