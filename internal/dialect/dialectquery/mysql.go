package dialectquery

import "fmt"

// Mysql is used by both the mysql and mymysql drivers. A MySQL schema is a database.
type Mysql struct {
	Schema string
	Table  string
}

var _ Querier = (*Mysql)(nil)

func (m *Mysql) SchemaExists() (string, []any) {
	q := `SELECT 1 FROM information_schema.schemata WHERE schema_name = ?`
	return q, []any{m.Schema}
}

func (m *Mysql) CreateSchema() string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS `%s`", m.Schema)
}

func (m *Mysql) TableExists() (string, []any) {
	q := `SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`
	return q, []any{m.Schema, m.Table}
}

func (m *Mysql) CreateTable() string {
	q := `CREATE TABLE IF NOT EXISTS %s (
		migratkey VARCHAR(22) NOT NULL PRIMARY KEY,
		value LONGTEXT
	)`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) GetValue() string {
	q := `SELECT value FROM %s WHERE migratkey = ?`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) UpdateValue() string {
	q := `UPDATE %s SET value = ? WHERE migratkey = ?`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) InsertValue() string {
	q := `INSERT INTO %s (migratkey, value) SELECT ?, ? FROM DUAL
	WHERE NOT EXISTS (SELECT 1 FROM %s WHERE migratkey = ?)`
	return fmt.Sprintf(q, m.name(), m.name())
}

func (m *Mysql) SelectLock() string {
	q := `SELECT value FROM %s WHERE migratkey = ? FOR UPDATE`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) InsertLock() string {
	q := `INSERT INTO %s (migratkey, value) VALUES (?, ?)`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) DeleteValue() string {
	q := `DELETE FROM %s WHERE migratkey = ?`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) DeleteValueIf() string {
	q := `DELETE FROM %s WHERE migratkey = ? AND value = ?`
	return fmt.Sprintf(q, m.name())
}

func (m *Mysql) name() string {
	return "`" + m.Schema + "`.`" + m.Table + "`"
}
