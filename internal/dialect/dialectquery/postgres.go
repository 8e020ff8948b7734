package dialectquery

import "fmt"

type Postgres struct {
	Schema string
	Table  string
}

var _ Querier = (*Postgres)(nil)

func (p *Postgres) SchemaExists() (string, []any) {
	q := `SELECT 1 FROM information_schema.schemata WHERE schema_name = $1`
	return q, []any{p.Schema}
}

func (p *Postgres) CreateSchema() string {
	q := `CREATE SCHEMA IF NOT EXISTS %q`
	return fmt.Sprintf(q, p.Schema)
}

func (p *Postgres) TableExists() (string, []any) {
	q := `SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`
	return q, []any{p.Schema, p.Table}
}

func (p *Postgres) CreateTable() string {
	q := `CREATE TABLE IF NOT EXISTS %s (
		migratkey VARCHAR(22) NOT NULL PRIMARY KEY,
		value TEXT
	)`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) GetValue() string {
	q := `SELECT value FROM %s WHERE migratkey = $1`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) UpdateValue() string {
	q := `UPDATE %s SET value = $1 WHERE migratkey = $2`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) InsertValue() string {
	q := `INSERT INTO %s (migratkey, value) SELECT $1, $2
	WHERE NOT EXISTS (SELECT 1 FROM %s WHERE migratkey = $3)`
	return fmt.Sprintf(q, p.name(), p.name())
}

func (p *Postgres) SelectLock() string {
	q := `SELECT value FROM %s WHERE migratkey = $1 FOR UPDATE`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) InsertLock() string {
	q := `INSERT INTO %s (migratkey, value) VALUES ($1, $2)`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) DeleteValue() string {
	q := `DELETE FROM %s WHERE migratkey = $1`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) DeleteValueIf() string {
	q := `DELETE FROM %s WHERE migratkey = $1 AND value = $2`
	return fmt.Sprintf(q, p.name())
}

func (p *Postgres) name() string {
	return fmt.Sprintf("%q.%q", p.Schema, p.Table)
}
